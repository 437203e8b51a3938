package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/repository"
)

// ResolveMirrors lists the mirrors for id, ranked by latency when rank is set.
// When no mirror could be listed the set holds only the current download URL
// and the error wraps mirror.ErrNoMirrors.
func (o *Orchestrator) ResolveMirrors(ctx context.Context, id string, rank bool) (mirror.Set, error) {
	if o.resolver == nil {
		return mirror.Set{}, fmt.Errorf("%w: mirror resolver", ErrNotConfigured)
	}

	u, err := o.Get(id)
	if err != nil {
		return mirror.Set{}, err
	}

	return o.resolver.Resolve(ctx, u.Info, rank)
}

// PinMirror resolves the mirrors for id and makes the one labelled label the
// download source for every later transfer.
func (o *Orchestrator) PinMirror(ctx context.Context, id, label string) error {
	set, err := o.ResolveMirrors(ctx, id, false)
	if err != nil && !errors.Is(err, mirror.ErrNoMirrors) {
		return err
	}

	return o.PinMirrorFrom(id, set, label)
}

// PinMirrorFrom pins label from an already resolved set. A transfer in
// flight keeps its current source.
func (o *Orchestrator) PinMirrorFrom(id string, set mirror.Set, label string) error {
	m, ok := set.Lookup(label)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMirrorNotFound, label)
	}

	o.mu.Lock()
	e, ok := o.entries[id]
	if !ok {
		o.mu.Unlock()
		return ErrUpdateNotFound
	}

	e.update.DownloadURL = m.URL
	o.mu.Unlock()

	if err := o.mirrors.SaveMirror(id, repository.Mirror{Label: m.Label, URL: m.URL}); err != nil {
		return fmt.Errorf("failed to save mirror: %w", err)
	}

	logger.Infof("Mirror for %s set to %s (%s)", id, m.Label, m.URL)
	o.emit(events.StatusChanged, id)

	return nil
}
