package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/go-version"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/repository"
	"github.com/NamanBalaji/updater/internal/status"
	"github.com/NamanBalaji/updater/internal/update"
)

// Load admits every durable record. Records whose payload has vanished are
// purged. It returns the number of updates admitted.
func (o *Orchestrator) Load(ctx context.Context) (int, error) {
	records, err := o.updates.FindAll()
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve updates: %w", err)
	}

	loaded := 0

	for _, u := range records {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}

		if o.admit(u, false) {
			loaded++
		}
	}

	logger.Infof("Loaded %d update(s) from repository", loaded)

	return loaded, nil
}

// Merge adds info to the registry, or refreshes the tracked update with the
// same id. It returns true only when a new update was admitted.
func (o *Orchestrator) Merge(info update.Info, availableOnline bool) bool {
	if err := info.Validate(); err != nil {
		logger.Warnf("Skipping update: %v", err)
		return false
	}

	return o.admit(update.New(info), availableOnline)
}

// MergeFeed merges a full feed and marks everything else offline. With purge
// set, offline updates without a payload are dropped.
func (o *Orchestrator) MergeFeed(infos []update.Info, purge bool) (int, error) {
	for _, info := range infos {
		if err := info.Validate(); err != nil {
			return 0, err
		}
	}

	added := 0
	ids := make([]string, 0, len(infos))

	for _, info := range infos {
		if o.admit(update.New(info), true) {
			added++
		}

		ids = append(ids, info.DownloadID)
	}

	o.SetAvailableOnline(ids, purge)

	return added, nil
}

func (o *Orchestrator) admit(u *update.Update, online bool) bool {
	id := u.DownloadID
	pinned := o.pinnedURL(id)

	o.mu.Lock()

	if o.closed {
		o.mu.Unlock()
		return false
	}

	if e, ok := o.entries[id]; ok {
		logger.Debugf("Update %s already tracked", id)

		e.update.AvailableOnline = online && e.update.AvailableOnline
		if pinned != "" {
			e.update.DownloadURL = pinned
		} else {
			e.update.DownloadURL = u.DownloadURL
		}
		o.mu.Unlock()

		return false
	}

	if pinned != "" {
		logger.Debugf("Using pinned mirror %s for %s", pinned, id)
		u.DownloadURL = pinned
	}

	_, valid := update.FixStatus(u)
	if !valid {
		logger.Debugf("Update %s claims a payload at %q that no longer exists", id, u.File)

		file := u.File
		u.Persistent = status.PersistentUnknown
		u.File = ""
		u.Progress = 0

		if !online {
			o.mu.Unlock()
			o.removeFileAsync(id, file)
			o.deleteRecord(id)
			logger.Debugf("%s had an invalid status and is not online", id)

			return false
		}
	}

	u.AvailableOnline = online
	o.entries[id] = &entry{update: u}
	o.mu.Unlock()

	if !valid {
		o.deleteRecord(id)
	}

	o.emit(events.StatusChanged, id)

	return true
}

func (o *Orchestrator) pinnedURL(id string) string {
	m, err := o.mirrors.FindMirror(id)
	if err != nil {
		if !errors.Is(err, repository.ErrMirrorNotFound) {
			logger.Errorf("Failed to read mirror for %s: %v", id, err)
		}

		return ""
	}

	return m.URL
}

// SetAvailableOnline marks exactly the updates in ids as online. With
// purgeIfMissing set, offline updates that have no payload are removed.
func (o *Orchestrator) SetAvailableOnline(ids []string, purgeIfMissing bool) {
	online := make(map[string]bool, len(ids))
	for _, id := range ids {
		online[id] = true
	}

	var removed []string

	o.mu.Lock()
	for id, e := range o.entries {
		e.update.AvailableOnline = online[id]

		if online[id] || !purgeIfMissing || e.update.Persistent != status.PersistentUnknown {
			continue
		}

		if e.attempt != nil || o.isVerifyingLocked(id) || o.installing == id {
			continue
		}

		logger.Debugf("%s no longer available online, removing", id)
		delete(o.entries, id)
		removed = append(removed, id)
	}
	o.mu.Unlock()

	for _, id := range removed {
		o.deletePin(id)
		o.emit(events.UpdateRemoved, id)
	}
}

// SetNotAvailableOnline marks the given updates offline and returns how many
// changed. Unknown ids are skipped.
func (o *Orchestrator) SetNotAvailableOnline(ids []string) int {
	var changed []string

	o.mu.Lock()
	for _, id := range ids {
		if e, ok := o.entries[id]; ok && e.update.AvailableOnline {
			e.update.AvailableOnline = false
			changed = append(changed, id)
		}
	}
	o.mu.Unlock()

	for _, id := range changed {
		o.persist(id, func(e *entry) bool { return e.update.Persistent != status.PersistentUnknown })
		o.emit(events.StatusChanged, id)
	}

	return len(changed)
}

// Get returns a copy of the update tracked under id.
func (o *Orchestrator) Get(id string) (*update.Update, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.entries[id]
	if !ok {
		return nil, ErrUpdateNotFound
	}

	return e.update.Clone(), nil
}

// List returns copies of every update, newest first.
func (o *Orchestrator) List() []*update.Update {
	o.mu.Lock()
	updates := make([]*update.Update, 0, len(o.entries))
	for _, e := range o.entries {
		updates = append(updates, e.update.Clone())
	}
	o.mu.Unlock()

	slices.SortFunc(updates, func(a, b *update.Update) int {
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}

		if c := compareVersions(b.Version, a.Version); c != 0 {
			return c
		}

		return cmp.Compare(a.DownloadID, b.DownloadID)
	})

	return updates
}

// compareVersions orders semantic versions numerically and anything else
// lexically, with parseable versions first.
func compareVersions(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return cmp.Compare(a, b)
	}
}

// IsDownloading reports whether a transfer is in flight for id.
func (o *Orchestrator) IsDownloading(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.entries[id]

	return ok && e.attempt != nil
}

func (o *Orchestrator) IsVerifying(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.isVerifyingLocked(id)
}

func (o *Orchestrator) isVerifyingLocked(id string) bool {
	_, ok := o.verifying[id]
	return ok
}
