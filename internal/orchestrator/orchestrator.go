package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/installer"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/metrics"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/power"
	"github.com/NamanBalaji/updater/internal/progress"
	"github.com/NamanBalaji/updater/internal/repository"
	"github.com/NamanBalaji/updater/internal/status"
	"github.com/NamanBalaji/updater/internal/transfer"
	"github.com/NamanBalaji/updater/internal/update"
	"github.com/NamanBalaji/updater/internal/verify"
)

const defaultProgressInterval = time.Second

// Installer applies verified payloads and reports progress through Watch.
type Installer interface {
	Install(ctx context.Context, id, path string) error
	IsInstalling(id string) bool
	IsWaitingForReboot() bool
	SetPerformanceMode(enabled bool)
	Watch(ctx context.Context, listener installer.Listener) error
}

// MirrorResolver lists the mirrors serving an update.
type MirrorResolver interface {
	Resolve(ctx context.Context, info update.Info, rank bool) (mirror.Set, error)
}

// Options wires the orchestrator's collaborators. Updates, Mirrors, Transfers
// and Verifier are required.
type Options struct {
	DownloadDir      string
	ProgressInterval time.Duration

	Updates   repository.UpdateStore
	Mirrors   repository.MirrorStore
	Transfers transfer.Factory
	Verifier  verify.Verifier
	Installer Installer
	Resolver  MirrorResolver
	Inhibitor power.Inhibitor
	Metrics   *metrics.Metrics
	Bus       *events.Bus
}

type entry struct {
	update  *update.Update
	attempt *attempt
}

// attempt is one Start or Resume. Callbacks carry their attempt so that
// reports from a replaced or paused client can be told apart.
type attempt struct {
	client   transfer.Client
	throttle *progress.Throttle
}

// Orchestrator tracks every known update and drives its download,
// verification and installation.
type Orchestrator struct {
	mu         sync.Mutex
	entries    map[string]*entry
	verifying  map[string]struct{}
	installing string
	active     int
	closed     bool

	downloadDir      string
	progressInterval time.Duration

	updates   repository.UpdateStore
	mirrors   repository.MirrorStore
	transfers transfer.Factory
	verifier  verify.Verifier
	installer Installer
	resolver  MirrorResolver
	metrics   *metrics.Metrics
	bus       *events.Bus
	lease     *power.Lease

	// storeMu orders record writes. It is never taken while holding mu.
	storeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// runTask runs a function in a goroutine tracked by the WaitGroup
func (o *Orchestrator) runTask(task func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		task()
	}()
}

// New creates an orchestrator and starts following the installer, if any.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Updates == nil:
		return nil, fmt.Errorf("%w: update store", ErrNotConfigured)
	case opts.Mirrors == nil:
		return nil, fmt.Errorf("%w: mirror store", ErrNotConfigured)
	case opts.Transfers == nil:
		return nil, fmt.Errorf("%w: transfer factory", ErrNotConfigured)
	case opts.Verifier == nil:
		return nil, fmt.Errorf("%w: verifier", ErrNotConfigured)
	case opts.DownloadDir == "":
		return nil, fmt.Errorf("%w: download directory", ErrNotConfigured)
	}

	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		entries:          make(map[string]*entry),
		verifying:        make(map[string]struct{}),
		downloadDir:      opts.DownloadDir,
		progressInterval: interval,
		updates:          opts.Updates,
		mirrors:          opts.Mirrors,
		transfers:        opts.Transfers,
		verifier:         opts.Verifier,
		installer:        opts.Installer,
		resolver:         opts.Resolver,
		metrics:          opts.Metrics,
		bus:              bus,
		lease:            power.NewLease(opts.Inhibitor, "Downloading system update"),
		ctx:              ctx,
		cancel:           cancel,
	}

	if o.installer != nil {
		o.runTask(func() {
			if err := o.installer.Watch(o.ctx, o.onInstallStatus); err != nil {
				logger.Errorf("Installer watch stopped: %v", err)
			}
		})
	}

	return o, nil
}

// Subscribe returns a channel of events. It is closed by Unsubscribe or Shutdown.
func (o *Orchestrator) Subscribe() (string, <-chan events.Event) {
	return o.bus.Subscribe()
}

func (o *Orchestrator) Unsubscribe(id string) {
	o.bus.Unsubscribe(id)
}

// ActiveTransfers returns the number of transfers in flight.
func (o *Orchestrator) ActiveTransfers() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.active
}

// Shutdown pauses every active transfer, stops background work and waits for
// it until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}

	o.closed = true

	var clients []transfer.Client

	for id, e := range o.entries {
		if e.attempt == nil {
			continue
		}

		clients = append(clients, e.attempt.client)
		o.clearAttemptLocked(e)
		e.update.Status = status.Paused
		e.update.ETA = 0
		e.update.Speed = 0
		o.emit(events.StatusChanged, id)
	}
	o.mu.Unlock()

	o.lease.Sync()

	for _, c := range clients {
		c.Cancel()
	}

	logger.Infof("Shutting down, paused %d transfer(s)", len(clients))
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	defer o.bus.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks still running: %w", ctx.Err())
	}
}

func (o *Orchestrator) emit(kind events.Kind, id string) {
	o.bus.Publish(events.Event{Kind: kind, ID: id})
}

// setAttemptLocked registers a as the entry's transfer and counts it on the
// lease. Callers run lease.Sync once o.mu is released.
func (o *Orchestrator) setAttemptLocked(e *entry, a *attempt) {
	e.attempt = a
	o.active++
	o.lease.Acquire()
	o.metrics.SetActiveTransfers(o.active)
}

func (o *Orchestrator) clearAttemptLocked(e *entry) {
	if e.attempt == nil {
		return
	}

	e.attempt = nil
	o.active--
	o.lease.Release()
	o.metrics.SetActiveTransfers(o.active)
}

// persist saves the current state of id. keep, if set, decides under o.mu
// whether the entry may still be written. The store lock is held from the
// snapshot to the write, so a later delete cannot be overtaken.
func (o *Orchestrator) persist(id string, keep func(*entry) bool) {
	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	o.mu.Lock()
	e, ok := o.entries[id]
	if ok && keep != nil {
		ok = keep(e)
	}

	var snapshot *update.Update
	if ok {
		snapshot = e.update.Clone()
	}
	o.mu.Unlock()

	if snapshot == nil {
		logger.Debugf("Skipping save of %s, no longer current", id)
		return
	}

	o.writeRecord(snapshot)
}

func (o *Orchestrator) writeRecord(u *update.Update) {
	if err := o.updates.Save(u); err != nil {
		logger.WithUpdate(u.DownloadID).Errorf("Failed to save update: %v", err)
	}
}

func (o *Orchestrator) deleteRecord(id string) {
	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	if err := o.updates.Delete(id); err != nil && !errors.Is(err, repository.ErrUpdateNotFound) {
		logger.Errorf("Failed to delete update %s: %v", id, err)
	}
}

func (o *Orchestrator) deletePin(id string) {
	if err := o.mirrors.DeleteMirror(id); err != nil {
		logger.Errorf("Failed to delete mirror for %s: %v", id, err)
	}
}

// removeFileAsync deletes a payload in the background.
func (o *Orchestrator) removeFileAsync(id, path string) {
	if path == "" {
		return
	}

	o.runTask(func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Errorf("Could not delete %s for %s: %v", path, id, err)
		}
	})
}
