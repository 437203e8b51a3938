package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

var (
	ErrRangesNotSupported  = errors.New("server ignored the byte range")
	ErrRangeNotSatisfiable = errors.New("nothing past the requested offset")
	ErrRequestCreation     = errors.New("failed to create request")

	ErrNotFound    = errors.New("payload not found")
	ErrRateLimited = errors.New("rate limited by server")
	ErrServer      = errors.New("server failure")
	ErrRejected    = errors.New("request rejected")

	ErrTimeout   = errors.New("timed out")
	ErrNetwork   = errors.New("network failure")
	ErrTruncated = errors.New("body ended early")
	ErrUnknown   = errors.New("unknown transfer error")
)

// StatusError is an error response from a mirror or the daemon. It unwraps to
// the class sentinel for its code.
type StatusError struct {
	Code  int
	class error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v (%d)", e.class, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.class
}

// ClassifyHTTPError returns nil for codes below 400.
func ClassifyHTTPError(code int) error {
	var class error

	switch {
	case code == http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSatisfiable
	case code == http.StatusNotFound, code == http.StatusGone:
		class = ErrNotFound
	case code == http.StatusTooManyRequests:
		class = ErrRateLimited
	case code >= http.StatusInternalServerError:
		class = ErrServer
	case code >= http.StatusBadRequest:
		class = ErrRejected
	default:
		return nil
	}

	return &StatusError{Code: code, class: class}
}

// ClassifyError maps a transport or read error onto a sentinel. Cancellation
// passes through unchanged.
func ClassifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncated
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}

		return ErrNetwork
	}

	return fmt.Errorf("%w: %w", ErrUnknown, err)
}

// IsRetryable reports whether another attempt against the same URL may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrTruncated)
}
