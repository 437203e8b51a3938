package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	httpmod "github.com/NamanBalaji/updater/pkg/http"
)

func TestClient_Range(t *testing.T) {
	payload := "0123456789"

	rangeHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == "bytes=4-" {
			w.WriteHeader(http.StatusPartialContent)
			_, _ = io.WriteString(w, payload[4:])
			return
		}
		_, _ = io.WriteString(w, payload)
	}
	noRangeHandler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, payload)
	}
	unsatisfiableHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}

	ts := httptest.NewServer(http.HandlerFunc(rangeHandler))
	defer ts.Close()
	tsNoRange := httptest.NewServer(http.HandlerFunc(noRangeHandler))
	defer tsNoRange.Close()
	ts416 := httptest.NewServer(http.HandlerFunc(unsatisfiableHandler))
	defer ts416.Close()

	client := httpmod.NewClient()

	t.Run("Range supported", func(t *testing.T) {
		resp, err := client.Range(context.Background(), ts.URL, 4, nil)
		if err != nil {
			t.Fatalf("Range() error = %v; want nil", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(body) != "456789" {
			t.Errorf("Range() body = %q; want %q", body, "456789")
		}
	})

	t.Run("Range not supported", func(t *testing.T) {
		_, err := client.Range(context.Background(), tsNoRange.URL, 4, nil)
		if !errors.Is(err, httpmod.ErrRangesNotSupported) {
			t.Errorf("Range() error = %v; want ErrRangesNotSupported", err)
		}
	})

	t.Run("Range not satisfiable", func(t *testing.T) {
		_, err := client.Range(context.Background(), ts416.URL, 10, nil)
		if !errors.Is(err, httpmod.ErrRangeNotSatisfiable) {
			t.Errorf("Range() error = %v; want ErrRangeNotSatisfiable", err)
		}
	})
}

func TestClient_Get(t *testing.T) {
	okHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != httpmod.DefaultUserAgent {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-Test") != "value" {
			http.Error(w, "missing header", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, "hello")
	}
	notFoundHandler := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}

	tsOK := httptest.NewServer(http.HandlerFunc(okHandler))
	defer tsOK.Close()
	ts404 := httptest.NewServer(http.HandlerFunc(notFoundHandler))
	defer ts404.Close()

	client := httpmod.NewClient()

	t.Run("Get success keeps body readable", func(t *testing.T) {
		resp, err := client.Get(context.Background(), tsOK.URL, map[string]string{"X-Test": "value"})
		if err != nil {
			t.Fatalf("Get() error = %v; want nil", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(body) != "hello" {
			t.Errorf("Get() body = %q; want hello", body)
		}
	})

	t.Run("Get 404", func(t *testing.T) {
		_, err := client.Get(context.Background(), ts404.URL, nil)
		if !errors.Is(err, httpmod.ErrNotFound) {
			t.Errorf("Get() error = %v; want ErrNotFound", err)
		}
	})

	t.Run("Get cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Get(ctx, tsOK.URL, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Get() error = %v; want context.Canceled", err)
		}
	})
}

func TestNewRequest_InvalidURL(t *testing.T) {
	_, err := httpmod.NewRequest(context.Background(), http.MethodGet, "http://[::1]:named", nil, nil)
	if !errors.Is(err, httpmod.ErrRequestCreation) {
		t.Errorf("NewRequest() error = %v; want ErrRequestCreation", err)
	}
}
