package status

import "fmt"

// Transient is the in-memory lifecycle state of an update. It is never persisted.
type Transient int32

const (
	Unknown Transient = iota
	Starting
	Downloading
	Paused
	PausedError
	Verifying
	Verified
	VerificationFailed
	Installing
	Installed
	InstallationFailed
	Deleted
)

// Persistent is the durable state of an update's payload.
type Persistent int32

const (
	PersistentUnknown Persistent = iota
	PersistentIncomplete
	PersistentVerified
)

var transientNames = [...]string{
	Unknown:            "unknown",
	Starting:           "starting",
	Downloading:        "downloading",
	Paused:             "paused",
	PausedError:        "paused_error",
	Verifying:          "verifying",
	Verified:           "verified",
	VerificationFailed: "verification_failed",
	Installing:         "installing",
	Installed:          "installed",
	InstallationFailed: "installation_failed",
	Deleted:            "deleted",
}

var persistentNames = [...]string{
	PersistentUnknown:    "unknown",
	PersistentIncomplete: "incomplete",
	PersistentVerified:   "verified",
}

func (s Transient) String() string {
	if s < 0 || int(s) >= len(transientNames) {
		return fmt.Sprintf("transient(%d)", int32(s))
	}

	return transientNames[s]
}

// Valid reports whether s is one of the declared values.
func (s Transient) Valid() bool {
	return s >= 0 && int(s) < len(transientNames)
}

// Transferring reports whether s implies a transfer client is running.
func (s Transient) Transferring() bool {
	switch s {
	case Starting, Downloading:
		return true
	case Unknown, Paused, PausedError, Verifying, Verified, VerificationFailed,
		Installing, Installed, InstallationFailed, Deleted:
		return false
	}

	return false
}

func (s Transient) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid transient status %d", int32(s))
	}

	return []byte(s.String()), nil
}

func (s *Transient) UnmarshalText(b []byte) error {
	for i, name := range transientNames {
		if name == string(b) {
			*s = Transient(i)
			return nil
		}
	}

	return fmt.Errorf("unknown transient status %q", b)
}

func (p Persistent) String() string {
	if p < 0 || int(p) >= len(persistentNames) {
		return fmt.Sprintf("persistent(%d)", int32(p))
	}

	return persistentNames[p]
}

// Valid reports whether p is one of the declared values.
func (p Persistent) Valid() bool {
	return p >= 0 && int(p) < len(persistentNames)
}

// HasPayload reports whether a file is expected on disk for p.
func (p Persistent) HasPayload() bool {
	switch p {
	case PersistentIncomplete, PersistentVerified:
		return true
	case PersistentUnknown:
		return false
	}

	return false
}

func (p Persistent) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid persistent status %d", int32(p))
	}

	return []byte(p.String()), nil
}

func (p *Persistent) UnmarshalText(b []byte) error {
	for i, name := range persistentNames {
		if name == string(b) {
			*p = Persistent(i)
			return nil
		}
	}

	return fmt.Errorf("unknown persistent status %q", b)
}
