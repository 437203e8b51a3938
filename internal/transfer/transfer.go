package transfer

import (
	"context"
	"net/http"

	"github.com/NamanBalaji/updater/internal/progress"
)

// Response describes the server reply that started the body transfer.
type Response struct {
	StatusCode int
	URL        string
	// ContentLength is the full payload size, or -1 when unknown.
	ContentLength int64
	Header        http.Header
}

// Callbacks are invoked from the client's own goroutine. Exactly one of
// OnSuccess or OnFailure is called per Start or Resume.
type Callbacks struct {
	OnResponse func(Response)
	OnSuccess  func()
	OnFailure  func(cancelled bool)
	OnProgress func(progress.Tick)
}

// Client moves one payload to one destination file.
type Client interface {
	Start(ctx context.Context)
	Resume(ctx context.Context)
	Cancel()
}

// Factory builds clients bound to a source URL and destination path.
type Factory interface {
	New(url, dest string, cb Callbacks) (Client, error)
}

func (cb Callbacks) response(r Response) {
	if cb.OnResponse != nil {
		cb.OnResponse(r)
	}
}

func (cb Callbacks) success() {
	if cb.OnSuccess != nil {
		cb.OnSuccess()
	}
}

func (cb Callbacks) failure(cancelled bool) {
	if cb.OnFailure != nil {
		cb.OnFailure(cancelled)
	}
}

func (cb Callbacks) progress(t progress.Tick) {
	if cb.OnProgress != nil {
		cb.OnProgress(t)
	}
}
