package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"

	"github.com/NamanBalaji/updater/internal/events"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/update"
)

// Service is the part of the orchestrator exposed over HTTP.
type Service interface {
	List() []*update.Update
	Get(id string) (*update.Update, error)
	MergeFeed(infos []update.Info, purge bool) (int, error)
	Import(path string) (string, error)
	Start(id string) error
	Pause(id string) error
	Resume(id string) error
	Delete(id string) error
	Install(ctx context.Context, id string) error
	ResolveMirrors(ctx context.Context, id string, rank bool) (mirror.Set, error)
	PinMirror(ctx context.Context, id, label string) error
	SetNotAvailableOnline(ids []string) int
	SetPerformanceMode(enabled bool)
	Subscribe() (string, <-chan events.Event)
	Unsubscribe(id string)
}

// SubmitRequest carries a feed of updates.
type SubmitRequest struct {
	Updates []update.Info `json:"updates"`
	Purge   bool          `json:"purge"`
}

type SubmitResponse struct {
	Added int `json:"added"`
}

type ImportRequest struct {
	Path string `json:"path"`
}

type ImportResponse struct {
	ID string `json:"id"`
}

// OfflineRequest lists updates the feed no longer serves.
type OfflineRequest struct {
	IDs []string `json:"ids"`
}

type OfflineResponse struct {
	Changed int `json:"changed"`
}

type PinRequest struct {
	Label string `json:"label"`
}

type PerformanceModeRequest struct {
	Enabled bool `json:"enabled"`
}

// Handler serves the orchestrator's REST and event stream endpoints.
type Handler struct {
	service Service
	metrics http.Handler
}

// NewHandler builds the router. metricsHandler may be nil.
func NewHandler(service Service, metricsHandler http.Handler) http.Handler {
	h := &Handler{
		service: service,
		metrics: metricsHandler,
	}

	router := mux.NewRouter()
	router.HandleFunc("/updates", h.listUpdates).Methods(http.MethodGet)
	router.HandleFunc("/updates", h.submitUpdates).Methods(http.MethodPost)
	router.HandleFunc("/updates/import", h.importUpdate).Methods(http.MethodPost)
	router.HandleFunc("/updates/offline", h.markOffline).Methods(http.MethodPost)
	router.HandleFunc("/updates/{id}", h.getUpdate).Methods(http.MethodGet)
	router.HandleFunc("/updates/{id}", h.deleteUpdate).Methods(http.MethodDelete)
	router.HandleFunc("/updates/{id}/{action:start|pause|resume|install}", h.updateAction).Methods(http.MethodPost)
	router.HandleFunc("/updates/{id}/mirrors", h.listMirrors).Methods(http.MethodGet)
	router.HandleFunc("/updates/{id}/mirror", h.pinMirror).Methods(http.MethodPut)
	router.HandleFunc("/performance-mode", h.setPerformanceMode).Methods(http.MethodPut)
	router.HandleFunc("/events", h.streamEvents).Methods(http.MethodGet)

	if h.metrics != nil {
		router.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}

	return router
}

func (h *Handler) listUpdates(w http.ResponseWriter, _ *http.Request) {
	writeJSONObject(w, h.service.List())
}

func (h *Handler) getUpdate(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(err, w)
		return
	}

	writeJSONObject(w, u)
}

func (h *Handler) submitUpdates(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	added, err := h.service.MergeFeed(req.Updates, req.Purge)
	if err != nil {
		writeError(err, w)
		return
	}

	writeJSONObject(w, SubmitResponse{Added: added})
}

func (h *Handler) importUpdate(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeErrorResponse("path is required", http.StatusBadRequest, w)
		return
	}

	id, err := h.service.Import(req.Path)
	if err != nil {
		writeError(err, w)
		return
	}

	writeJSONObject(w, ImportResponse{ID: id})
}

func (h *Handler) markOffline(w http.ResponseWriter, r *http.Request) {
	var req OfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeErrorResponse("ids are required", http.StatusBadRequest, w)
		return
	}

	writeJSONObject(w, OfflineResponse{Changed: h.service.SetNotAvailableOnline(req.IDs)})
}

func (h *Handler) deleteUpdate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(mux.Vars(r)["id"]); err != nil {
		writeError(err, w)
		return
	}

	writeJSONObject(w, struct{}{})
}

func (h *Handler) updateAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var err error

	switch vars["action"] {
	case "start":
		err = h.service.Start(id)
	case "pause":
		err = h.service.Pause(id)
	case "resume":
		err = h.service.Resume(id)
	case "install":
		err = h.service.Install(r.Context(), id)
	}

	if err != nil {
		writeError(err, w)
		return
	}

	u, err := h.service.Get(id)
	if err != nil {
		writeError(err, w)
		return
	}

	writeJSONObject(w, u)
}

func (h *Handler) listMirrors(w http.ResponseWriter, r *http.Request) {
	rank := false

	if v := r.URL.Query().Get("rank"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeErrorResponse("rank must be a boolean", http.StatusBadRequest, w)
			return
		}

		rank = parsed
	}

	set, err := h.service.ResolveMirrors(r.Context(), mux.Vars(r)["id"], rank)
	if err != nil && !(errors.Is(err, mirror.ErrNoMirrors) && set.Fallback) {
		writeError(err, w)
		return
	}

	writeJSONObject(w, set)
}

func (h *Handler) pinMirror(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Label == "" {
		writeErrorResponse("label is required", http.StatusBadRequest, w)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.service.PinMirror(r.Context(), id, req.Label); err != nil {
		writeError(err, w)
		return
	}

	u, err := h.service.Get(id)
	if err != nil {
		writeError(err, w)
		return
	}

	writeJSONObject(w, u)
}

func (h *Handler) setPerformanceMode(w http.ResponseWriter, r *http.Request) {
	var req PerformanceModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	h.service.SetPerformanceMode(req.Enabled)
	writeJSONObject(w, req)
}

// streamEvents forwards every orchestrator event to a websocket client as JSON.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Errorf("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	defer func() {
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			logger.Debugf("Failed to close WebSocket: %v", err)
		}
	}()

	subID, ch := h.service.Subscribe()
	defer h.service.Unsubscribe(subID)

	// Reads are only used to notice the client going away.
	ctx := conn.CloseRead(r.Context())

	logger.Debugf("Event stream opened for %s", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}

			if err := wsjson.Write(ctx, conn, ev); err != nil {
				logger.Debugf("Event stream to %s closed: %v", r.RemoteAddr, err)
				return
			}
		}
	}
}
