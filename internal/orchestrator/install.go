package orchestrator

import (
	"context"
	"fmt"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/installer"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/status"
)

// Install hands the verified payload of id to the installer.
func (o *Orchestrator) Install(ctx context.Context, id string) error {
	if o.installer == nil {
		return fmt.Errorf("%w: installer", ErrNotConfigured)
	}

	o.mu.Lock()

	e, err := o.lookupIdleLocked(id)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	if o.installing != "" {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInstalling, o.installing)
	}

	u := e.update
	if u.Persistent != status.PersistentVerified {
		o.mu.Unlock()
		return ErrNotVerified
	}

	previous := u.Status
	path := u.File

	o.installing = id
	u.Status = status.Installing
	u.InstallProgress = 0
	o.mu.Unlock()

	o.emit(events.StatusChanged, id)

	if err := o.installer.Install(ctx, id, path); err != nil {
		o.mu.Lock()
		if o.installing == id {
			o.installing = ""
		}

		if e, ok := o.entries[id]; ok {
			e.update.Status = previous
		}
		o.mu.Unlock()

		o.emit(events.StatusChanged, id)

		return fmt.Errorf("failed to start installation: %w", err)
	}

	logger.Infof("Installation of %s requested", id)

	return nil
}

// IsInstalling reports whether id is being installed.
func (o *Orchestrator) IsInstalling(id string) bool {
	o.mu.Lock()
	installing := o.installing == id
	o.mu.Unlock()

	return installing || (o.installer != nil && o.installer.IsInstalling(id))
}

func (o *Orchestrator) IsWaitingForReboot() bool {
	return o.installer != nil && o.installer.IsWaitingForReboot()
}

func (o *Orchestrator) SetPerformanceMode(enabled bool) {
	if o.installer == nil {
		return
	}

	o.installer.SetPerformanceMode(enabled)
}

func (o *Orchestrator) onInstallStatus(s installer.Status) {
	o.mu.Lock()

	e, ok := o.entries[s.ID]

	kind := events.StatusChanged

	switch s.State {
	case installer.StateInstalling:
		o.installing = s.ID
		kind = events.InstallProgress

		if ok {
			e.update.Status = status.Installing
			e.update.InstallProgress = s.Progress
		}
	case installer.StateInstalled, installer.StateReboot:
		if o.installing == s.ID {
			o.installing = ""
		}

		if ok {
			e.update.Status = status.Installed
			e.update.InstallProgress = 100
		}
	case installer.StateFailed:
		if o.installing == s.ID {
			o.installing = ""
		}

		if ok {
			e.update.Status = status.InstallationFailed
		}

		logger.Errorf("Installation of %s failed: %s", s.ID, s.Error)
	default:
		logger.Warnf("Ignoring installer state %q for %s", s.State, s.ID)
	}
	o.mu.Unlock()

	if ok {
		o.emit(kind, s.ID)
	}
}
