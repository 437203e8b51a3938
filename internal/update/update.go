package update

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NamanBalaji/updater/internal/status"
)

// Info is an update as advertised by a feed or a local import.
type Info struct {
	DownloadID  string `json:"downloadId" msgpack:"id"`
	Name        string `json:"name" msgpack:"name"`
	Version     string `json:"version,omitempty" msgpack:"version"`
	Type        string `json:"type,omitempty" msgpack:"type"`
	Timestamp   int64  `json:"timestamp,omitempty" msgpack:"ts"`
	DownloadURL string `json:"downloadUrl" msgpack:"url"`
	FileSize    int64  `json:"fileSize,omitempty" msgpack:"size"`
	Checksum    string `json:"checksum,omitempty" msgpack:"checksum"`
}

// Update is a tracked update together with its runtime state.
type Update struct {
	Info

	File            string            `json:"file,omitempty"`
	AvailableOnline bool              `json:"availableOnline"`
	Progress        int               `json:"progress"`
	ETA             time.Duration     `json:"eta"`
	Speed           int64             `json:"speed"`
	InstallProgress int               `json:"installProgress"`
	Status          status.Transient  `json:"status"`
	Persistent      status.Persistent `json:"persistentStatus"`
}

// New returns an Update for info with every runtime field at its zero value.
func New(info Info) *Update {
	return &Update{Info: info}
}

// Clone returns a copy of u safe to hand out of the registry.
func (u *Update) Clone() *Update {
	if u == nil {
		return nil
	}

	c := *u

	return &c
}

// Validate checks the fields every tracked update needs.
func (i Info) Validate() error {
	if strings.TrimSpace(i.DownloadID) == "" {
		return fmt.Errorf("%w: empty download id", ErrInvalidInfo)
	}

	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: empty name for %s", ErrInvalidInfo, i.DownloadID)
	}

	if strings.ContainsAny(i.Name, `/\`) {
		return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidInfo, i.Name)
	}

	return nil
}

// FixStatus reconciles u with the file on disk. It is run whenever a record is
// admitted to the registry and only reads file metadata. The returned bool is
// false when the record claims a payload that no longer exists.
func FixStatus(u *Update) (status.Transient, bool) {
	if !u.Persistent.HasPayload() {
		return u.Status, true
	}

	if u.File == "" {
		u.Status = status.Unknown
		return u.Status, false
	}

	fi, err := os.Stat(u.File)
	if err != nil || fi.IsDir() {
		u.Status = status.Unknown
		return u.Status, false
	}

	if u.FileSize > 0 {
		u.Status = status.Paused
		u.Progress = Percent(fi.Size(), u.FileSize)
	}

	return u.Status, true
}

// Percent returns floor(n*100/total) clamped to 0..100.
func Percent(n, total int64) int {
	if total <= 0 || n <= 0 {
		return 0
	}

	p := n * 100 / total
	if p > 100 {
		p = 100
	}

	return int(p)
}

// Destination returns dir/name, or dir/name-N.ext for the first N that does
// not exist yet.
func Destination(dir, name string) string {
	dest := filepath.Join(dir, name)
	if !exists(dest) {
		return dest
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 1; ; i++ {
		dest = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
		if !exists(dest) {
			return dest
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
