package installer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/NamanBalaji/updater/internal/logger"
)

const (
	requestFile = "request.json"
	statusFile  = "status.json"
)

var (
	ErrInstallInProgress = errors.New("another installation is in progress")
	ErrInvalidStatus     = errors.New("invalid installer status")
)

// State is what the install agent reports about the current request.
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateFailed     State = "failed"
	StateReboot     State = "reboot"
)

// Request is written to the spool directory for the install agent to pick up.
type Request struct {
	ID              string    `json:"id"`
	Path            string    `json:"path"`
	PerformanceMode bool      `json:"performanceMode"`
	RequestedAt     time.Time `json:"requestedAt"`
}

// Status is the agent's report, read back from status.json.
type Status struct {
	ID       string `json:"id"`
	State    State  `json:"state"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

func (s Status) validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidStatus)
	}

	switch s.State {
	case StateInstalling, StateInstalled, StateFailed, StateReboot:
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidStatus, s.State)
	}

	if s.Progress < 0 || s.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidStatus, s.Progress)
	}

	return nil
}

// Listener receives every status change reported by the agent.
type Listener func(Status)

// FileInstaller hands install requests to an external agent through a spool
// directory and follows its progress by watching status.json.
type FileInstaller struct {
	dir string

	mu            sync.Mutex
	current       string
	waitingReboot bool
	performance   bool
	// generation counts requests so a repeated report for a new request is
	// not mistaken for the previous one.
	generation uint64
}

// NewFileInstaller creates the spool directory if needed.
func NewFileInstaller(dir string) (*FileInstaller, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	return &FileInstaller{dir: dir}, nil
}

// Install queues path for installation as id. Only one request may be
// outstanding at a time.
func (f *FileInstaller) Install(ctx context.Context, id, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != "" {
		return fmt.Errorf("%w: %s", ErrInstallInProgress, f.current)
	}

	if err := removeIfExists(filepath.Join(f.dir, statusFile)); err != nil {
		logger.Warnf("Failed to remove stale installer status: %v", err)
	}

	req := Request{
		ID:              id,
		Path:            path,
		PerformanceMode: f.performance,
		RequestedAt:     time.Now().UTC(),
	}

	if err := writeJSON(filepath.Join(f.dir, requestFile), req); err != nil {
		return fmt.Errorf("failed to write install request: %w", err)
	}

	f.current = id
	f.waitingReboot = false
	f.generation++
	logger.Infof("Queued installation of %s from %s", id, path)

	return nil
}

func (f *FileInstaller) IsInstalling(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.current != "" && f.current == id
}

func (f *FileInstaller) IsWaitingForReboot() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.waitingReboot
}

// SetPerformanceMode applies to the next request written.
func (f *FileInstaller) SetPerformanceMode(enabled bool) {
	f.mu.Lock()
	f.performance = enabled
	f.mu.Unlock()

	logger.Debugf("Installer performance mode set to %t", enabled)
}

// WriteStatus publishes s as the agent would.
func (f *FileInstaller) WriteStatus(s Status) error {
	if err := s.validate(); err != nil {
		return err
	}

	return writeJSON(filepath.Join(f.dir, statusFile), s)
}

// Watch follows status.json until ctx is done and forwards each valid report
// to listener. A report already present when Watch starts is delivered first.
func (f *FileInstaller) Watch(ctx context.Context, listener Listener) error {
	statusPath := filepath.Join(f.dir, statusFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Warnf("Failed to close installer watcher: %v", err)
		}
	}()

	// The agent replaces the file by rename, so watch the directory.
	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	logger.Infof("Watching installer status in %s", statusPath)

	var (
		last    Status
		lastGen uint64
	)

	deliver := func() {
		s, err := readStatus(statusPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Debugf("Ignoring installer status: %v", err)
			}

			return
		}

		gen := f.currentGeneration()
		if s == last && gen == lastGen {
			return
		}

		last, lastGen = s, gen
		f.apply(s)

		if listener != nil {
			listener(s)
		}
	}

	deliver()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}

			if event.Name != statusPath {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				deliver()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}

			logger.Warnf("Installer watcher error: %v", err)
		}
	}
}

func (f *FileInstaller) currentGeneration() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.generation
}

func (f *FileInstaller) apply(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch s.State {
	case StateInstalling:
		f.current = s.ID
	case StateInstalled, StateFailed:
		f.current = ""
	case StateReboot:
		f.current = ""
		f.waitingReboot = true
	}
}

func readStatus(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, err
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}

	if err := s.validate(); err != nil {
		return Status{}, err
	}

	return s, nil
}

// writeJSON writes v next to path and renames it into place.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			logger.Warnf("Failed to remove temp file %s: %v", tmp, rmErr)
		}

		return err
	}

	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
