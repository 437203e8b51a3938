package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/installer"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/repository"
	"github.com/NamanBalaji/updater/internal/transfer"
	"github.com/NamanBalaji/updater/internal/update"
)

type fakeClient struct {
	url  string
	dest string
	cb   transfer.Callbacks

	started   atomic.Bool
	resumed   atomic.Bool
	cancelled atomic.Bool
}

func (c *fakeClient) Start(context.Context)  { c.started.Store(true) }
func (c *fakeClient) Resume(context.Context) { c.resumed.Store(true) }
func (c *fakeClient) Cancel()                { c.cancelled.Store(true) }

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	err     error
}

func (f *fakeFactory) New(url, dest string, cb transfer.Callbacks) (transfer.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	c := &fakeClient{url: url, dest: dest, cb: cb}
	f.clients = append(f.clients, c)

	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.clients)
}

func (f *fakeFactory) last(t *testing.T) *fakeClient {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.clients, "no client was built")

	return f.clients[len(f.clients)-1]
}

type fakeVerifier struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (v *fakeVerifier) Verify(_ context.Context, _ string, _ update.Info) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.calls++

	return v.err
}

func (v *fakeVerifier) setErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.err = err
}

type fakeInstaller struct {
	mu          sync.Mutex
	requests    map[string]string
	listener    installer.Listener
	performance bool
	err         error
	watching    chan struct{}
}

func newFakeInstaller() *fakeInstaller {
	return &fakeInstaller{
		requests: make(map[string]string),
		watching: make(chan struct{}),
	}
}

func (f *fakeInstaller) Install(_ context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.requests[id] = path

	return nil
}

func (f *fakeInstaller) IsInstalling(string) bool { return false }
func (f *fakeInstaller) IsWaitingForReboot() bool { return false }

func (f *fakeInstaller) SetPerformanceMode(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.performance = enabled
}

func (f *fakeInstaller) Watch(ctx context.Context, listener installer.Listener) error {
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
	close(f.watching)

	<-ctx.Done()

	return nil
}

func (f *fakeInstaller) report(t *testing.T, s installer.Status) {
	t.Helper()

	select {
	case <-f.watching:
	case <-time.After(time.Second):
		t.Fatal("installer is not being watched")
	}

	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()

	listener(s)
}

type fakeResolver struct {
	set mirror.Set
	err error
}

func (r *fakeResolver) Resolve(context.Context, update.Info, bool) (mirror.Set, error) {
	return r.set, r.err
}

type countingInhibitor struct {
	mu       sync.Mutex
	held     bool
	inhibits int
	gate     chan struct{} // when set, Inhibit waits for it to close
}

func (c *countingInhibitor) Inhibit(string) (func() error, error) {
	if c.gate != nil {
		<-c.gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.held = true
	c.inhibits++

	return func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.held = false

		return nil
	}, nil
}

func (c *countingInhibitor) isHeld() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.held
}

type harness struct {
	o         *Orchestrator
	repo      *repository.BboltRepository
	factory   *fakeFactory
	verifier  *fakeVerifier
	installer *fakeInstaller
	resolver  *fakeResolver
	inhibitor *countingInhibitor
	dir       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()

	repo, err := repository.NewBboltRepository(filepath.Join(root, "test.db"))
	require.NoError(t, err)

	h := &harness{
		repo:      repo,
		factory:   &fakeFactory{},
		verifier:  &fakeVerifier{},
		installer: newFakeInstaller(),
		resolver:  &fakeResolver{},
		inhibitor: &countingInhibitor{},
		dir:       filepath.Join(root, "updates"),
	}

	h.o, err = New(Options{
		DownloadDir: h.dir,
		Updates:     repo,
		Mirrors:     repo,
		Transfers:   h.factory,
		Verifier:    h.verifier,
		Installer:   h.installer,
		Resolver:    h.resolver,
		Inhibitor:   h.inhibitor,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, h.o.Shutdown(ctx))
		_ = repo.Close()
	})

	return h
}

// writePayload creates a file of size bytes in the download directory.
func (h *harness) writePayload(t *testing.T, name string, size int) string {
	t.Helper()

	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))

	return path
}

func (h *harness) get(t *testing.T, id string) *update.Update {
	t.Helper()

	u, err := h.o.Get(id)
	require.NoError(t, err)

	return u
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(t *testing.T, o *Orchestrator) *eventRecorder {
	t.Helper()

	r := &eventRecorder{}
	_, ch := o.Subscribe()

	go func() {
		for ev := range ch {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()

	return r
}

func (r *eventRecorder) count(kind events.Kind, id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && ev.ID == id {
			n++
		}
	}

	return n
}

func info(id string) update.Info {
	return update.Info{
		DownloadID:  id,
		Name:        id + ".zip",
		Version:     "1.0",
		Timestamp:   1700000000,
		DownloadURL: "https://feed.example.com/" + id + ".zip",
	}
}
