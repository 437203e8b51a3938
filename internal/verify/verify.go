package verify

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2s"

	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/update"
)

var (
	ErrEmptyPayload      = errors.New("payload is empty")
	ErrSizeMismatch      = errors.New("payload size mismatch")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrUnsupportedDigest = errors.New("unsupported checksum algorithm")
	ErrCorruptArchive    = errors.New("corrupt archive")
)

// Verifier checks a downloaded payload before it is offered for install.
type Verifier interface {
	Verify(ctx context.Context, path string, info update.Info) error
}

// PackageVerifier checks size, optional checksum and, for zip payloads, the
// archive directory.
type PackageVerifier struct{}

func NewPackageVerifier() *PackageVerifier {
	return &PackageVerifier{}
}

func (v *PackageVerifier) Verify(ctx context.Context, path string, info update.Info) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat payload: %w", err)
	}

	if fi.Size() == 0 {
		return ErrEmptyPayload
	}

	if info.FileSize > 0 && fi.Size() != info.FileSize {
		return fmt.Errorf("%w: have %d, want %d", ErrSizeMismatch, fi.Size(), info.FileSize)
	}

	if info.Checksum != "" {
		if err := verifyChecksum(ctx, path, info.Checksum); err != nil {
			return err
		}
	}

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		if err := verifyArchive(path); err != nil {
			return err
		}
	}

	logger.Debugf("Verified payload %s", path)

	return nil
}

// verifyChecksum compares the file digest with "algo:hex".
func verifyChecksum(ctx context.Context, path, checksum string) error {
	algo, want, ok := strings.Cut(checksum, ":")
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDigest, checksum)
	}

	var h hash.Hash

	switch strings.ToLower(algo) {
	case "sha256":
		h = sha256.New()
	case "blake2s":
		b, err := blake2s.New256(nil)
		if err != nil {
			return fmt.Errorf("create blake2s: %w", err)
		}
		h = b
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDigest, algo)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return fmt.Errorf("hash payload: %w", err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w: %s got %s", ErrChecksumMismatch, algo, got)
	}

	return nil
}

func verifyArchive(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	defer r.Close()

	if len(r.File) == 0 {
		return fmt.Errorf("%w: no entries", ErrCorruptArchive)
	}

	return nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
