package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies what happened to an update.
type Kind int

const (
	StatusChanged Kind = iota
	DownloadProgress
	InstallProgress
	UpdateRemoved
)

var kindNames = [...]string{
	StatusChanged:    "status-changed",
	DownloadProgress: "download-progress",
	InstallProgress:  "install-progress",
	UpdateRemoved:    "update-removed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}

	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid event kind %d", int(k))
	}

	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}

	return fmt.Errorf("unknown event kind %q", b)
}

// Event carries only the update id. Subscribers re-query the orchestrator for state.
type Event struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Bus fans events out to subscribers. Publish never blocks and never drops:
// every subscriber has its own queue drained by a pump goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
}

type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a listener. The returned channel is closed by
// Unsubscribe or Close.
func (b *Bus) Subscribe() (string, <-chan Event) {
	s := &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(s.out)
		return "", s.out
	}

	id := uuid.NewString()
	b.subscribers[id] = s

	go s.pump()

	return id, s.out
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()

	if ok {
		s.stop()
	}
}

// Publish queues ev for every current subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subscribers {
		s.push(ev)
	}
}

// Close stops every subscriber. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()

			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}

		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
