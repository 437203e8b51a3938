package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/updater/internal/status"
	"github.com/NamanBalaji/updater/internal/update"
)

const (
	updatesBucket  = "updates"
	mirrorsBucket  = "mirrors"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

var (
	// ErrUpdateNotFound is returned when an update record cannot be found
	ErrUpdateNotFound = errors.New("update not found")

	// ErrMirrorNotFound is returned when no mirror is pinned for an update
	ErrMirrorNotFound = errors.New("mirror not found")
)

// Mirror is the mirror pinned for one update.
type Mirror struct {
	Label string `msgpack:"label" json:"label"`
	URL   string `msgpack:"url" json:"url"`
}

// record holds only what is needed to rebuild an update after a restart.
type record struct {
	Info       update.Info `msgpack:"info"`
	File       string      `msgpack:"file"`
	Persistent int32       `msgpack:"persistent"`
}

// BboltRepository stores update records and mirror pins in a single bbolt file.
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{updatesBucket, mirrorsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}

		metadataBucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		err = metadataBucket.Put([]byte("schema_version"), versionBytes)
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save upserts the durable part of an update.
func (r *BboltRepository) Save(u *update.Update) error {
	if u == nil {
		return errors.New("cannot save nil update")
	}

	if u.DownloadID == "" {
		return errors.New("update ID cannot be empty")
	}

	data, err := msgpack.Marshal(&record{
		Info:       u.Info,
		File:       u.File,
		Persistent: int32(u.Persistent),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(updatesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", updatesBucket)
		}

		err = bucket.Put([]byte(u.DownloadID), data)
		if err != nil {
			return fmt.Errorf("failed to save update: %w", err)
		}

		return nil
	})
}

// Find retrieves an update by ID
func (r *BboltRepository) Find(id string) (*update.Update, error) {
	if id == "" {
		return nil, errors.New("update ID cannot be empty")
	}

	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(updatesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", updatesBucket)
		}

		v := bucket.Get([]byte(id))
		if v == nil {
			return ErrUpdateNotFound
		}

		data = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return decodeUpdate(data)
}

// FindAll retrieves all updates
func (r *BboltRepository) FindAll() ([]*update.Update, error) {
	var updates []*update.Update

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(updatesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", updatesBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			u, err := decodeUpdate(v)
			if err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}

			updates = append(updates, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return updates, nil
}

// Delete removes an update record
func (r *BboltRepository) Delete(id string) error {
	if id == "" {
		return errors.New("update ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(updatesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", updatesBucket)
		}

		if bucket.Get([]byte(id)) == nil {
			return ErrUpdateNotFound
		}

		return bucket.Delete([]byte(id))
	})
}

// SaveMirror pins a mirror for id, replacing any earlier pin.
func (r *BboltRepository) SaveMirror(id string, m Mirror) error {
	if id == "" {
		return errors.New("update ID cannot be empty")
	}

	data, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(mirrorsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", mirrorsBucket)
		}

		return bucket.Put([]byte(id), data)
	})
}

// FindMirror returns the mirror pinned for id.
func (r *BboltRepository) FindMirror(id string) (Mirror, error) {
	var m Mirror

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(mirrorsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", mirrorsBucket)
		}

		v := bucket.Get([]byte(id))
		if v == nil {
			return ErrMirrorNotFound
		}

		if err := msgpack.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("failed to unmarshal mirror: %w", err)
		}

		return nil
	})

	return m, err
}

// DeleteMirror drops the pin for id. Deleting a missing pin is not an error.
func (r *BboltRepository) DeleteMirror(id string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(mirrorsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", mirrorsBucket)
		}

		return bucket.Delete([]byte(id))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}

func decodeUpdate(data []byte) (*update.Update, error) {
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal update: %w", err)
	}

	u := update.New(rec.Info)
	u.File = rec.File
	u.Persistent = status.Persistent(rec.Persistent)

	if !u.Persistent.Valid() {
		u.Persistent = status.PersistentUnknown
	}

	return u, nil
}
