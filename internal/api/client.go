package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/update"
	httpPkg "github.com/NamanBalaji/updater/pkg/http"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client talks to a running orchestrator over its HTTP API.
type Client struct {
	base string
	http *httpPkg.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: httpPkg.NewClient(),
	}
}

func (c *Client) List(ctx context.Context) ([]*update.Update, error) {
	var out []*update.Update
	err := c.do(ctx, http.MethodGet, "/updates", nil, &out)

	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (*update.Update, error) {
	var out update.Update
	if err := c.do(ctx, http.MethodGet, "/updates/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Submit merges a feed into the registry and returns how many entries were added.
func (c *Client) Submit(ctx context.Context, infos []update.Info, purge bool) (int, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/updates", SubmitRequest{Updates: infos, Purge: purge}, &out)

	return out.Added, err
}

func (c *Client) Import(ctx context.Context, path string) (string, error) {
	var out ImportResponse
	err := c.do(ctx, http.MethodPost, "/updates/import", ImportRequest{Path: path}, &out)

	return out.ID, err
}

// Action runs start, pause, resume or install on an update.
func (c *Client) Action(ctx context.Context, id, action string) (*update.Update, error) {
	var out update.Update
	if err := c.do(ctx, http.MethodPost, "/updates/"+url.PathEscape(id)+"/"+action, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/updates/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Mirrors(ctx context.Context, id string, rank bool) (mirror.Set, error) {
	var out mirror.Set
	path := fmt.Sprintf("/updates/%s/mirrors?rank=%t", url.PathEscape(id), rank)
	err := c.do(ctx, http.MethodGet, path, nil, &out)

	return out, err
}

func (c *Client) Pin(ctx context.Context, id, label string) (*update.Update, error) {
	var out update.Update
	if err := c.do(ctx, http.MethodPut, "/updates/"+url.PathEscape(id)+"/mirror", PinRequest{Label: label}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// MarkOffline flags ids as no longer served online and returns how many changed.
func (c *Client) MarkOffline(ctx context.Context, ids []string) (int, error) {
	var out OfflineResponse
	err := c.do(ctx, http.MethodPost, "/updates/offline", OfflineRequest{IDs: ids}, &out)

	return out.Changed, err
}

func (c *Client) SetPerformanceMode(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPut, "/performance-mode", PerformanceModeRequest{Enabled: enabled}, nil)
}

// Watch streams events to fn until ctx ends or the server closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(events.Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/events"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.CloseNow()

	for {
		var ev events.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}

			return err
		}

		fn(ev)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader

	headers := map[string]string{"Accept": "application/json"}

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}

		body = bytes.NewReader(b)
		headers["Content-Type"] = "application/json"
	}

	req, err := httpPkg.NewRequest(ctx, method, c.base+path, body, headers)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return httpPkg.ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
			return &APIError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}

		return &APIError{Code: resp.StatusCode, Message: e.Message}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
