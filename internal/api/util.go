package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/orchestrator"
	"github.com/NamanBalaji/updater/internal/update"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// writeJSONObject writes obj to the response in JSON format
func writeJSONObject(w http.ResponseWriter, obj any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(obj); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(msg string, httpStatus int, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(httpStatus)

	err := json.NewEncoder(w).Encode(&ErrorResponse{
		Message: msg,
		Code:    httpStatus,
	})
	if err != nil {
		http.Error(w, "failed handling request", http.StatusInternalServerError)
	}
}

// writeError maps orchestrator errors to status codes.
func writeError(err error, w http.ResponseWriter) {
	httpStatus := statusFor(err)
	if httpStatus >= http.StatusInternalServerError {
		logger.Errorf("Handler error: %v", err)
	} else {
		logger.Debugf("Request refused: %v", err)
	}

	writeErrorResponse(err.Error(), httpStatus, w)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrUpdateNotFound),
		errors.Is(err, orchestrator.ErrMirrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrTransferActive),
		errors.Is(err, orchestrator.ErrNoActiveTransfer),
		errors.Is(err, orchestrator.ErrVerifying),
		errors.Is(err, orchestrator.ErrInstalling),
		errors.Is(err, orchestrator.ErrFileMissing),
		errors.Is(err, orchestrator.ErrNotVerified):
		return http.StatusConflict
	case errors.Is(err, update.ErrInvalidInfo):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, mirror.ErrNoMirrors):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
