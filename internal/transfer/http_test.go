package transfer_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/updater/internal/progress"
	"github.com/NamanBalaji/updater/internal/transfer"
)

type recorder struct {
	mu        sync.Mutex
	responses []transfer.Response
	ticks     []progress.Tick
	outcome   chan string
}

func newRecorder() *recorder {
	return &recorder{outcome: make(chan string, 2)}
}

func (r *recorder) callbacks() transfer.Callbacks {
	return transfer.Callbacks{
		OnResponse: func(resp transfer.Response) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.responses = append(r.responses, resp)
		},
		OnProgress: func(t progress.Tick) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ticks = append(r.ticks, t)
		},
		OnSuccess: func() { r.outcome <- "success" },
		OnFailure: func(cancelled bool) {
			if cancelled {
				r.outcome <- "cancelled"
				return
			}
			r.outcome <- "failure"
		},
	}
}

func (r *recorder) wait(t *testing.T) string {
	t.Helper()

	select {
	case o := <-r.outcome:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish")
	}

	return ""
}

func (r *recorder) lastTick() progress.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ticks) == 0 {
		return progress.Tick{}
	}

	return r.ticks[len(r.ticks)-1]
}

func createTestServer(t *testing.T, data []byte, supportRanges bool) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if supportRanges && strings.HasPrefix(rangeHeader, "bytes=") {
			start, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-"))
			if err != nil {
				http.Error(w, "bad range", http.StatusBadRequest)
				return
			}

			if start >= len(data) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}

			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(data)-1, len(data)))
			w.Header().Set("Content-Length", strconv.Itoa(len(data)-start))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(data[start:])

			return
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	return server
}

func newFactory() *transfer.HTTPFactory {
	return transfer.NewHTTPFactory(
		transfer.WithTickInterval(10*time.Millisecond),
		transfer.WithRetryDelay(5*time.Millisecond),
		transfer.WithMaxRetries(1),
	)
}

func TestStartDownloadsWholeFile(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100_000)
	server := createTestServer(t, data, true)
	dest := filepath.Join(t.TempDir(), "sub", "os.zip")

	rec := newRecorder()
	client, err := newFactory().New(server.URL+"/os.zip", dest, rec.callbacks())
	require.NoError(t, err)

	client.Start(context.Background())
	assert.Equal(t, "success", rec.wait(t))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.Len(t, rec.responses, 1)
	assert.Equal(t, http.StatusOK, rec.responses[0].StatusCode)
	assert.Equal(t, int64(len(data)), rec.responses[0].ContentLength)

	last := rec.lastTick()
	assert.True(t, last.Done)
	assert.Equal(t, int64(len(data)), last.BytesRead)
}

func TestResumeAppendsFromExistingSize(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	server := createTestServer(t, data, true)
	dest := filepath.Join(t.TempDir(), "os.zip")
	require.NoError(t, os.WriteFile(dest, data[:7], 0o644))

	rec := newRecorder()
	client, err := newFactory().New(server.URL, dest, rec.callbacks())
	require.NoError(t, err)

	client.Resume(context.Background())
	assert.Equal(t, "success", rec.wait(t))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.Len(t, rec.responses, 1)
	assert.Equal(t, http.StatusPartialContent, rec.responses[0].StatusCode)
	assert.Equal(t, int64(len(data)), rec.responses[0].ContentLength, "total comes from Content-Range")
}

func TestResumeWithoutRangeSupportRestarts(t *testing.T) {
	data := []byte("0123456789")
	server := createTestServer(t, data, false)
	dest := filepath.Join(t.TempDir(), "os.zip")
	require.NoError(t, os.WriteFile(dest, []byte("garbage"), 0o644))

	rec := newRecorder()
	client, err := newFactory().New(server.URL, dest, rec.callbacks())
	require.NoError(t, err)

	client.Resume(context.Background())
	assert.Equal(t, "success", rec.wait(t))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestResumeCompleteFileIsSuccess(t *testing.T) {
	data := []byte("0123456789")
	server := createTestServer(t, data, true)
	dest := filepath.Join(t.TempDir(), "os.zip")
	require.NoError(t, os.WriteFile(dest, data, 0o644))

	rec := newRecorder()
	client, err := newFactory().New(server.URL, dest, rec.callbacks())
	require.NoError(t, err)

	client.Resume(context.Background())
	assert.Equal(t, "success", rec.wait(t))
}

func TestFailureStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error after retries", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			rec := newRecorder()
			client, err := newFactory().New(server.URL, filepath.Join(t.TempDir(), "os.zip"), rec.callbacks())
			require.NoError(t, err)

			client.Start(context.Background())
			assert.Equal(t, "failure", rec.wait(t))
		})
	}
}

func TestCancelReportsCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 10))
		w.(http.Flusher).Flush()

		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	rec := newRecorder()
	client, err := newFactory().New(server.URL, filepath.Join(t.TempDir(), "os.zip"), rec.callbacks())
	require.NoError(t, err)

	client.Start(context.Background())

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.responses) == 1
	}, 2*time.Second, 5*time.Millisecond)

	client.Cancel()
	assert.Equal(t, "cancelled", rec.wait(t))
}

func TestCancelBeforeStart(t *testing.T) {
	server := createTestServer(t, []byte("data"), true)

	rec := newRecorder()
	client, err := newFactory().New(server.URL, filepath.Join(t.TempDir(), "os.zip"), rec.callbacks())
	require.NoError(t, err)

	client.Cancel()
	client.Start(context.Background())
	assert.Equal(t, "cancelled", rec.wait(t))
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/a", "not a url", "https://"} {
		_, err := newFactory().New(raw, filepath.Join(t.TempDir(), "a"), transfer.Callbacks{})
		assert.ErrorIs(t, err, transfer.ErrInvalidURL, raw)
	}
}

func TestShortBodyFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, buf, err := hj.Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nshort")
		_ = buf.Flush()
	}))
	defer server.Close()

	rec := newRecorder()
	client, err := transfer.NewHTTPFactory(transfer.WithMaxRetries(0)).New(server.URL, filepath.Join(t.TempDir(), "os.zip"), rec.callbacks())
	require.NoError(t, err)

	client.Start(context.Background())
	assert.Equal(t, "failure", rec.wait(t))
}
