package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/progress"
	"github.com/NamanBalaji/updater/internal/status"
	"github.com/NamanBalaji/updater/internal/transfer"
	"github.com/NamanBalaji/updater/internal/update"
)

// lookupIdleLocked returns the entry for id if nothing is running on it.
func (o *Orchestrator) lookupIdleLocked(id string) (*entry, error) {
	if o.closed {
		return nil, ErrShuttingDown
	}

	e, ok := o.entries[id]
	if !ok {
		return nil, ErrUpdateNotFound
	}

	switch {
	case e.attempt != nil:
		return nil, ErrTransferActive
	case o.isVerifyingLocked(id):
		return nil, ErrVerifying
	case o.installing == id:
		return nil, ErrInstalling
	}

	return e, nil
}

// Start downloads the update from scratch into a fresh file.
func (o *Orchestrator) Start(id string) error {
	logger.Debugf("Starting %s", id)

	o.mu.Lock()

	e, err := o.lookupIdleLocked(id)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	u := e.update

	dest := update.Destination(o.downloadDir, u.Name)
	if dest != u.File {
		logger.Debugf("Downloading %s to %s", id, dest)
	}

	u.File = dest
	u.Progress = 0

	client, err := o.newAttemptLocked(id, e)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.mu.Unlock()

	o.lease.Sync()
	client.Start(o.ctx)

	return nil
}

// Resume continues a paused download from the bytes already on disk. A
// payload that is already complete goes straight to verification.
func (o *Orchestrator) Resume(id string) error {
	logger.Debugf("Resuming %s", id)

	o.mu.Lock()

	e, err := o.lookupIdleLocked(id)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	u := e.update

	fi, statErr := os.Stat(u.File)
	if u.File == "" || statErr != nil || fi.IsDir() {
		logger.Errorf("The destination file of %s doesn't exist, can't resume", id)

		u.Status = status.PausedError
		o.mu.Unlock()
		o.emit(events.StatusChanged, id)

		return fmt.Errorf("%w: %q", ErrFileMissing, u.File)
	}

	if u.FileSize > 0 && fi.Size() >= u.FileSize {
		logger.Debugf("File of %s already downloaded, starting verification", id)

		u.Status = status.Verifying
		o.verifyAsyncLocked(id)
		o.mu.Unlock()
		o.emit(events.StatusChanged, id)

		return nil
	}

	client, err := o.newAttemptLocked(id, e)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.mu.Unlock()

	o.lease.Sync()
	client.Resume(o.ctx)

	return nil
}

// newAttemptLocked builds a client for the entry's current URL and file and
// registers it. On failure the update is marked PAUSED_ERROR.
func (o *Orchestrator) newAttemptLocked(id string, e *entry) (transfer.Client, error) {
	u := e.update
	a := &attempt{throttle: progress.NewThrottle(o.progressInterval)}

	client, err := o.transfers.New(u.DownloadURL, u.File, o.callbacks(id, a))
	if err != nil {
		logger.WithUpdate(id).Errorf("Could not build transfer client: %v", err)

		u.Status = status.PausedError
		o.emit(events.StatusChanged, id)

		return nil, fmt.Errorf("failed to create transfer client: %w", err)
	}

	a.client = client
	o.setAttemptLocked(e, a)

	u.Status = status.Starting
	u.ETA = 0
	u.Speed = 0
	o.emit(events.StatusChanged, id)

	return client, nil
}

// Pause cancels the active transfer. The partial payload is kept.
func (o *Orchestrator) Pause(id string) error {
	logger.Debugf("Pausing %s", id)

	o.mu.Lock()

	e, ok := o.entries[id]
	if !ok {
		o.mu.Unlock()
		return ErrUpdateNotFound
	}

	if e.attempt == nil {
		o.mu.Unlock()
		return ErrNoActiveTransfer
	}

	client := e.attempt.client
	o.clearAttemptLocked(e)

	e.update.Status = status.Paused
	e.update.ETA = 0
	e.update.Speed = 0
	o.mu.Unlock()

	o.lease.Sync()
	client.Cancel()
	o.metrics.TransferDone("cancelled")
	o.emit(events.StatusChanged, id)

	return nil
}

// Delete discards the payload and the durable record. Updates still offered
// online stay listed as DELETED; the rest are dropped.
func (o *Orchestrator) Delete(id string) error {
	logger.Debugf("Deleting %s", id)

	o.mu.Lock()

	e, err := o.lookupIdleLocked(id)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	u := e.update
	file := u.File

	u.Status = status.Deleted
	u.Persistent = status.PersistentUnknown
	u.Progress = 0
	u.InstallProgress = 0
	u.File = ""

	removed := !u.AvailableOnline
	if removed {
		delete(o.entries, id)
	}

	o.removeFileAsync(id, file)
	o.mu.Unlock()

	o.deleteRecord(id)

	if removed {
		logger.Debugf("%s no longer available online, removing", id)
		o.deletePin(id)
		o.emit(events.UpdateRemoved, id)

		return nil
	}

	o.emit(events.StatusChanged, id)

	return nil
}

func (o *Orchestrator) callbacks(id string, a *attempt) transfer.Callbacks {
	return transfer.Callbacks{
		OnResponse: func(r transfer.Response) { o.onResponse(id, a, r) },
		OnSuccess:  func() { o.onSuccess(id, a) },
		OnFailure:  func(cancelled bool) { o.onFailure(id, a, cancelled) },
		OnProgress: func(t progress.Tick) { o.onProgress(id, a, t) },
	}
}

// currentLocked returns the entry only while a is its active attempt.
func (o *Orchestrator) currentLocked(id string, a *attempt) (*entry, bool) {
	e, ok := o.entries[id]
	if !ok || e.attempt != a {
		return nil, false
	}

	return e, true
}

func (o *Orchestrator) onResponse(id string, a *attempt, r transfer.Response) {
	o.mu.Lock()

	e, ok := o.currentLocked(id, a)
	if !ok {
		o.mu.Unlock()
		return
	}

	u := e.update
	if r.ContentLength > u.FileSize {
		logger.Debugf("Adopting size %d for %s from response", r.ContentLength, id)
		u.FileSize = r.ContentLength
	}

	u.Status = status.Downloading
	u.Persistent = status.PersistentIncomplete
	o.mu.Unlock()

	o.persist(id, func(e *entry) bool { return e.attempt == a })
	o.emit(events.StatusChanged, id)
}

func (o *Orchestrator) onProgress(id string, a *attempt, t progress.Tick) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.currentLocked(id, a)
	if !ok {
		return
	}

	u := e.update

	pct, ok := t.Percent(u.FileSize)
	if !ok {
		return
	}

	if !a.throttle.Allow(time.Now(), pct) {
		return
	}

	u.Progress = pct
	u.ETA = t.ETA
	u.Speed = t.Speed
	o.emit(events.DownloadProgress, id)
}

func (o *Orchestrator) onSuccess(id string, a *attempt) {
	o.mu.Lock()

	e, ok := o.currentLocked(id, a)
	if !ok {
		o.mu.Unlock()
		return
	}

	logger.Debugf("Download of %s complete", id)

	o.clearAttemptLocked(e)

	e.update.Status = status.Verifying
	e.update.ETA = 0
	e.update.Speed = 0
	o.verifyAsyncLocked(id)
	o.mu.Unlock()

	o.lease.Sync()
	o.metrics.TransferDone("success")
	o.emit(events.StatusChanged, id)
}

// onFailure handles a client that stopped on its own. A client that was
// paused is no longer current, so its cancelled report is dropped here.
func (o *Orchestrator) onFailure(id string, a *attempt, cancelled bool) {
	o.mu.Lock()

	e, ok := o.currentLocked(id, a)
	if !ok {
		o.mu.Unlock()

		if cancelled {
			logger.Debugf("Download of %s cancelled", id)
		}

		return
	}

	o.clearAttemptLocked(e)

	result := "failure"
	if cancelled {
		result = "cancelled"
		e.update.Status = status.Paused
	} else {
		logger.Errorf("Download of %s failed", id)
		e.update.Status = status.PausedError
	}

	e.update.ETA = 0
	e.update.Speed = 0
	o.mu.Unlock()

	o.lease.Sync()
	o.metrics.TransferDone(result)
	o.emit(events.StatusChanged, id)
}
