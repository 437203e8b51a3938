package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/progress"
	httpPkg "github.com/NamanBalaji/updater/pkg/http"
)

var (
	ErrInvalidURL            = errors.New("invalid transfer URL")
	ErrDirectoryCreateFailed = errors.New("directory create failed")
	ErrFileOpenFailed        = errors.New("file open failed")
	ErrFileWriteFailed       = errors.New("file write failed")
	ErrShortBody             = errors.New("body shorter than announced length")
	ErrAlreadyStarted        = errors.New("transfer already started")
)

// HTTPFactory builds single stream HTTP clients.
type HTTPFactory struct {
	config *Config
}

// NewHTTPFactory returns a factory using opts over the defaults.
func NewHTTPFactory(opts ...ConfigOption) *HTTPFactory {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpPkg.NewClient()
	}

	return &HTTPFactory{config: cfg}
}

func (f *HTTPFactory) New(rawURL, dest string, cb Callbacks) (Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryCreateFailed, err)
	}

	return &httpClient{
		url:    rawURL,
		dest:   dest,
		cb:     cb,
		config: f.config,
	}, nil
}

type httpClient struct {
	url    string
	dest   string
	cb     Callbacks
	config *Config

	started atomic.Bool
	written atomic.Int64
	total   atomic.Int64

	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
}

func (c *httpClient) Start(ctx context.Context) {
	c.run(ctx, false)
}

func (c *httpClient) Resume(ctx context.Context) {
	c.run(ctx, true)
}

// Cancel stops the transfer. The client reports OnFailure(true) once its
// goroutine has exited.
func (c *httpClient) Cancel() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()

	c.cancelled = true
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *httpClient) isCancelled() bool {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()

	return c.cancelled
}

func (c *httpClient) run(ctx context.Context, resume bool) {
	if !c.started.CompareAndSwap(false, true) {
		logger.Warnf("Transfer to %s: %v", c.dest, ErrAlreadyStarted)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.cancelMu.Lock()
	c.cancel = cancel
	if c.cancelled {
		cancel()
	}
	c.cancelMu.Unlock()

	go func() {
		defer cancel()

		err := c.transfer(runCtx, resume)
		c.finish(err)
	}()
}

func (c *httpClient) finish(err error) {
	switch {
	case c.isCancelled() || errors.Is(err, context.Canceled):
		logger.Debugf("Transfer to %s cancelled", c.dest)
		c.cb.failure(true)
	case err != nil:
		logger.Errorf("Transfer to %s failed: %v", c.dest, err)
		c.cb.failure(false)
	default:
		logger.Debugf("Transfer to %s finished, %d bytes", c.dest, c.written.Load())
		c.cb.success()
	}
}

func (c *httpClient) transfer(ctx context.Context, resume bool) error {
	var offset int64

	if resume {
		if fi, err := os.Stat(c.dest); err == nil {
			offset = fi.Size()
		}
	}

	resp, offset, err := c.open(ctx, offset)
	if errors.Is(err, httpPkg.ErrRangeNotSatisfiable) && offset > 0 {
		logger.Debugf("Server has nothing past byte %d for %s, treating as complete", offset, c.dest)

		c.written.Store(offset)
		c.total.Store(offset)
		c.cb.response(Response{StatusCode: http.StatusRequestedRangeNotSatisfiable, URL: c.url, ContentLength: offset})
		c.cb.progress(progress.Tick{BytesRead: offset, ContentLength: offset, Done: true})

		return nil
	}

	if err != nil {
		return err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close body for %s: %v", c.dest, err)
		}
	}()

	total := contentLength(resp, offset)
	c.total.Store(total)
	c.written.Store(offset)

	c.cb.response(Response{
		StatusCode:    resp.StatusCode,
		URL:           resp.Request.URL.String(),
		ContentLength: total,
		Header:        resp.Header,
	})

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(c.dest, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileOpenFailed, err)
	}

	defer func() {
		if err := f.Close(); err != nil {
			logger.Errorf("Failed to close %s: %v", c.dest, err)
		}
	}()

	trackCtx, stopTracking := context.WithCancel(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.trackProgress(trackCtx)
	}()

	err = c.copy(f, resp.Body)

	stopTracking()
	wg.Wait()

	if err != nil {
		return err
	}

	written := c.written.Load()
	if total > 0 && written < total {
		return fmt.Errorf("%w: %d of %d", ErrShortBody, written, total)
	}

	c.cb.progress(progress.Tick{BytesRead: written, ContentLength: total, Done: true})

	return nil
}

// open issues the request for offset, retrying transient failures. The
// returned offset is 0 when the server ignored the range.
func (c *httpClient) open(ctx context.Context, offset int64) (*http.Response, int64, error) {
	var resp *http.Response

	operation := func() error {
		var err error

		if offset > 0 {
			resp, err = c.config.HTTPClient.Range(ctx, c.url, offset, nil)
			if errors.Is(err, httpPkg.ErrRangesNotSupported) {
				logger.Warnf("Restarting %s from zero, server ignored the range", c.dest)

				offset = 0
				resp, err = c.config.HTTPClient.Get(ctx, c.url, nil)
			}
		} else {
			resp, err = c.config.HTTPClient.Get(ctx, c.url, nil)
		}

		if err != nil && (ctx.Err() != nil || !httpPkg.IsRetryable(err)) {
			return backoff.Permanent(err)
		}

		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryDelay

	notify := func(err error, wait time.Duration) {
		logger.Warnf("Connecting to %s failed, retrying in %s: %v", c.url, wait, err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.config.MaxRetries), ctx), notify)
	if err != nil {
		return nil, offset, err
	}

	return resp, offset, nil
}

func (c *httpClient) copy(dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyBufferSize)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("%w: %w", ErrFileWriteFailed, err)
			}

			c.written.Add(int64(n))
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}

		if readErr != nil {
			return httpPkg.ClassifyError(readErr)
		}
	}
}

func (c *httpClient) trackProgress(ctx context.Context) {
	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	meter := progress.NewMeter(smoothingWindow)

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			written := c.written.Load()
			total := c.total.Load()
			speed, eta := meter.Observe(now, written, total)

			c.cb.progress(progress.Tick{
				BytesRead:     written,
				ContentLength: total,
				Speed:         speed,
				ETA:           eta,
			})
		}
	}
}

// contentLength returns the full payload size implied by resp.
func contentLength(resp *http.Response, offset int64) int64 {
	if resp.StatusCode == http.StatusPartialContent {
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			return total
		}

		if resp.ContentLength >= 0 {
			return offset + resp.ContentLength
		}

		return -1
	}

	return resp.ContentLength
}

// parseContentRangeTotal reads the total from "bytes a-b/total".
func parseContentRangeTotal(header string) (int64, bool) {
	i := strings.LastIndexByte(header, '/')
	if i < 0 || i == len(header)-1 {
		return 0, false
	}

	total, err := strconv.ParseInt(strings.TrimSpace(header[i+1:]), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}

	return total, true
}
