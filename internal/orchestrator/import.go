package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/status"
	"github.com/NamanBalaji/updater/internal/update"
)

const localType = "local"

// Import copies a payload from path into the download directory, tracks it
// as an offline update under a new id and verifies it.
func (o *Orchestrator) Import(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileMissing, err)
	}

	if fi.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrFileMissing, path)
	}

	info := update.Info{
		DownloadID: uuid.NewString(),
		Name:       filepath.Base(path),
		Type:       localType,
		Timestamp:  fi.ModTime().Unix(),
		FileSize:   fi.Size(),
	}

	if err := info.Validate(); err != nil {
		return "", err
	}

	dest := update.Destination(o.downloadDir, info.Name)
	if err := copyFile(path, dest); err != nil {
		return "", fmt.Errorf("failed to copy %s: %w", path, err)
	}

	u := update.New(info)
	u.File = dest
	u.Persistent = status.PersistentIncomplete

	if !o.admit(u, false) {
		if err := os.Remove(dest); err != nil {
			logger.Warnf("Failed to remove %s: %v", dest, err)
		}

		return "", ErrShuttingDown
	}

	o.persist(info.DownloadID, nil)

	o.mu.Lock()
	if e, ok := o.entries[info.DownloadID]; ok {
		e.update.Status = status.Verifying
		o.verifyAsyncLocked(info.DownloadID)
	}
	o.mu.Unlock()

	logger.Infof("Imported %s as %s", path, info.DownloadID)
	o.emit(events.StatusChanged, info.DownloadID)

	return info.DownloadID, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)

		return err
	}

	return out.Close()
}
