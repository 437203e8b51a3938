package repository

import "github.com/NamanBalaji/updater/internal/update"

// UpdateStore persists the fields needed to rebuild an update after restart.
type UpdateStore interface {
	Save(u *update.Update) error
	Delete(id string) error
	FindAll() ([]*update.Update, error)
}

// MirrorStore keeps at most one pinned mirror per update.
type MirrorStore interface {
	SaveMirror(id string, m Mirror) error
	FindMirror(id string) (Mirror, error)
	DeleteMirror(id string) error
}

var (
	_ UpdateStore = (*BboltRepository)(nil)
	_ MirrorStore = (*BboltRepository)(nil)
)
