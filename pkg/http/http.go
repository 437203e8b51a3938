package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/NamanBalaji/updater/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	maxIdleConns          = 100
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxConnsPerHost       = 16

	DefaultUserAgent = "updater/1.0"
)

type Client struct {
	*http.Client
}

// NewClient creates a new HTTP client with custom transport settings. Only
// connection setup and response headers are bounded; bodies stream for as
// long as the request context allows.
func NewClient() *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultConnectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		ResponseHeaderTimeout: defaultConnectTimeout,
		DisableCompression:    true,
		MaxConnsPerHost:       maxConnsPerHost,
	}

	return &Client{
		&http.Client{
			Transport: transport,
		},
	}
}

// Range performs an open-ended Range GET starting at the given byte. A server
// that answers with the whole body yields ErrRangesNotSupported.
func (c *Client) Range(ctx context.Context, urlStr string, start int64, headers map[string]string) (*http.Response, error) {
	req, err := NewRequest(ctx, http.MethodGet, urlStr, nil, headers)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	logger.Debugf("Sending Range GET request to %s from byte %d", urlStr, start)

	resp, err := c.Do(req)
	if err != nil {
		logger.Errorf("Range GET request failed for %s: %v", urlStr, err)
		return nil, ClassifyError(err)
	}

	logger.Debugf("Range GET response for %s: status=%d", urlStr, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		drain(resp)
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusPartialContent {
		logger.Warnf("Server doesn't support ranges for %s (status: %d)", urlStr, resp.StatusCode)
		drain(resp)

		return nil, ErrRangesNotSupported
	}

	return resp, nil
}

// Get performs a GET request to the specified URL. The caller owns the body.
func (c *Client) Get(ctx context.Context, urlStr string, headers map[string]string) (*http.Response, error) {
	req, err := NewRequest(ctx, http.MethodGet, urlStr, nil, headers)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Sending GET request to %s", urlStr)

	resp, err := c.Do(req)
	if err != nil {
		logger.Errorf("GET request failed for %s: %v", urlStr, err)
		return nil, ClassifyError(err)
	}

	logger.Debugf("GET response for %s: status=%d", urlStr, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		logger.Errorf("GET request returned error status %d for %s", resp.StatusCode, urlStr)
		drain(resp)

		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	return resp, nil
}

// NewRequest creates a new HTTP request with the default user agent and the
// given headers.
func NewRequest(ctx context.Context, method, urlStr string, body io.Reader, headers map[string]string) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		logger.Errorf("Failed to create %s request for %s: %v", method, urlStr, err)
		return nil, fmt.Errorf("%w: %w", ErrRequestCreation, err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if err := resp.Body.Close(); err != nil {
		logger.Warnf("Failed to close response body: %v", err)
	}
}
