package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/status"
	"github.com/NamanBalaji/updater/internal/update"
)

// verifyAsyncLocked schedules verification of id's payload unless one is
// already running.
func (o *Orchestrator) verifyAsyncLocked(id string) {
	if o.isVerifyingLocked(id) {
		return
	}

	e, ok := o.entries[id]
	if !ok {
		return
	}

	o.verifying[id] = struct{}{}
	path := e.update.File
	info := e.update.Info

	o.runTask(func() {
		o.verify(id, path, info)
	})
}

func (o *Orchestrator) verify(id, path string, info update.Info) {
	err := checkPayload(path)
	if err == nil {
		err = o.verifier.Verify(o.ctx, path, info)
	}

	if err != nil && errors.Is(err, context.Canceled) && o.ctx.Err() != nil {
		o.abortVerification(id)
		return
	}

	if err == nil {
		if chmodErr := os.Chmod(path, 0o644); chmodErr != nil {
			logger.Warnf("Failed to make %s readable: %v", path, chmodErr)
		}
	} else {
		logger.WithUpdate(id).Errorf("Verification failed: %v", err)

		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Errorf("Could not delete %s: %v", path, rmErr)
		}
	}

	o.mu.Lock()
	delete(o.verifying, id)

	e, ok := o.entries[id]
	if !ok {
		o.mu.Unlock()
		return
	}

	u := e.update
	if err == nil {
		u.Persistent = status.PersistentVerified
		u.Status = status.Verified
	} else {
		u.Persistent = status.PersistentUnknown
		u.Progress = 0
		u.Status = status.VerificationFailed
	}

	o.mu.Unlock()

	if err == nil {
		logger.WithUpdate(id).Info("Verification successful")
		o.persist(id, func(e *entry) bool { return e.update.Persistent == status.PersistentVerified })
	} else {
		o.deleteRecord(id)
	}

	o.metrics.VerificationDone(err == nil)
	o.emit(events.StatusChanged, id)
}

// abortVerification leaves the payload in place when shutdown interrupted the
// check. It is verified again on the next resume.
func (o *Orchestrator) abortVerification(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.verifying, id)

	if e, ok := o.entries[id]; ok {
		e.update.Status = status.Paused
	}

	logger.Debugf("Verification of %s interrupted by shutdown", id)
}

func checkPayload(path string) error {
	if path == "" {
		return ErrFileMissing
	}

	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileMissing, err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrFileMissing, path)
	}

	return nil
}
