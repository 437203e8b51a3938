package power

import (
	"sync"

	"github.com/NamanBalaji/updater/internal/logger"
)

// Inhibitor keeps the device awake until the returned release func is called.
type Inhibitor interface {
	Inhibit(why string) (release func() error, err error)
}

// Lease is a reference counted hold on an Inhibitor. Acquire and Release
// only count; Sync brings the inhibitor in line with the count. The lease is
// held iff Count() > 0.
type Lease struct {
	mu    sync.Mutex
	count int

	// syncMu serializes Sync. release is only written under both locks.
	syncMu    sync.Mutex
	inhibitor Inhibitor
	release   func() error
	reason    string
}

// NewLease returns a lease backed by inhibitor. A nil inhibitor only counts.
func NewLease(inhibitor Inhibitor, reason string) *Lease {
	if inhibitor == nil {
		inhibitor = Nop{}
	}

	return &Lease{
		inhibitor: inhibitor,
		reason:    reason,
	}
}

// Acquire adds one holder. It never blocks on the inhibitor.
func (l *Lease) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
}

// Release drops one holder. Releasing an idle lease is a no-op.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count > 0 {
		l.count--
	}
}

// Sync takes the inhibitor when there are holders and none is held, and
// drops it when the last holder is gone. A failed Inhibit is retried by the
// next Sync.
func (l *Lease) Sync() {
	l.syncMu.Lock()
	defer l.syncMu.Unlock()

	for {
		l.mu.Lock()
		want := l.count > 0
		release := l.release
		l.mu.Unlock()

		switch {
		case want && release == nil:
			r, err := l.inhibitor.Inhibit(l.reason)
			if err != nil {
				logger.Warnf("Failed to inhibit sleep: %v", err)
				return
			}

			l.mu.Lock()
			l.release = r
			l.mu.Unlock()
		case !want && release != nil:
			l.mu.Lock()
			l.release = nil
			l.mu.Unlock()

			if err := release(); err != nil {
				logger.Warnf("Failed to release sleep inhibitor: %v", err)
			}
		default:
			return
		}
	}
}

// Inhibiting reports whether the inhibitor is currently taken.
func (l *Lease) Inhibiting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.release != nil
}

// Count returns the number of current holders.
func (l *Lease) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Held reports whether any holder remains.
func (l *Lease) Held() bool {
	return l.Count() > 0
}

// Nop is an Inhibitor that does nothing.
type Nop struct{}

func (Nop) Inhibit(string) (func() error, error) {
	return func() error { return nil }, nil
}
