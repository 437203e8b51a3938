package orchestrator

import "errors"

var (
	// ErrUpdateNotFound is returned when no update is tracked under an id
	ErrUpdateNotFound = errors.New("update not found")

	// ErrTransferActive is returned when an operation needs the update to be idle
	ErrTransferActive = errors.New("transfer already active")

	// ErrNoActiveTransfer is returned when pausing an update that is not downloading
	ErrNoActiveTransfer = errors.New("no active transfer")

	// ErrVerifying is returned while the payload is being verified
	ErrVerifying = errors.New("update is being verified")

	// ErrInstalling is returned while an installation is in progress
	ErrInstalling = errors.New("installation in progress")

	// ErrFileMissing is returned when resuming without a partial payload on disk
	ErrFileMissing = errors.New("update file missing")

	// ErrNotVerified is returned when installing a payload that has not passed verification
	ErrNotVerified = errors.New("update not verified")

	// ErrMirrorNotFound is returned when pinning a label the mirror set does not contain
	ErrMirrorNotFound = errors.New("mirror not found")

	// ErrNotConfigured is returned when an optional collaborator was not provided
	ErrNotConfigured = errors.New("not configured")

	// ErrShuttingDown is returned once Shutdown has been called
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)
