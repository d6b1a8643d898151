package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lei/pipehost/internal/controller"
	"github.com/lei/pipehost/internal/pipeline"
	"github.com/lei/pipehost/internal/transport"
)

// Handlers contains HTTP handler functions
type Handlers struct {
	ctrl *controller.Controller
	pipe pipeline.Pipeline
	hub  *transport.Hub
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *controller.Controller, pipe pipeline.Pipeline, hub *transport.Hub) *Handlers {
	return &Handlers{ctrl: ctrl, pipe: pipe, hub: hub}
}

// Health handles health check requests
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Schema handles GET /v1/schema: the pipeline's metadata, action names, and
// opaque layout tree for the session to render.
func (h *Handlers) Schema(w http.ResponseWriter, r *http.Request) {
	var layout map[string]any
	if lp, ok := h.pipe.(pipeline.LayoutProvider); ok {
		layout = lp.Layout()
	}
	actions := []string{}
	if ap, ok := h.pipe.(pipeline.ActionProvider); ok {
		for name := range ap.Actions() {
			actions = append(actions, name)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"layout": layout,
		"config": map[string]any{
			"name":     h.pipe.Meta().Name,
			"title":    h.pipe.Meta().Title,
			"subtitle": h.pipe.Meta().Subtitle,
			"actions":  actions,
		},
	})
}

// StartRun handles POST /v1/run
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	var req struct {
		Parameters map[string]any `json:"parameters"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if logger != nil {
				logger.Warn("invalid request body", "error", err)
			}
			respondError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	run, err := h.ctrl.Start(pipeline.Params(req.Parameters))
	if err != nil {
		handleControllerError(w, r, err)
		return
	}

	if logger != nil {
		logger.Info("run started", "run_id", run.RunID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"run": run})
}

// GetRun handles GET /v1/run
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ctrl.Snapshot())
}

// CancelRun handles POST /v1/run/cancel
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	if logger != nil {
		logger.Info("cancel requested")
	}
	h.ctrl.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// PollLogs handles GET /v1/run/logs?offset=N — the catch-up primitive. The
// response carries the buffer suffix from the offset plus the new total
// length, so the poll channel works even when every push was lost.
func (h *Handlers) PollLogs(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = parsed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ctrl.Poll(offset))
}

// TriggerAction handles POST /v1/actions/{action}
func (h *Handlers) TriggerAction(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	action := chi.URLParam(r, "action")

	if logger != nil {
		logger.Info("action triggered", "action", action)
	}

	if err := h.ctrl.RunAction(action); err != nil {
		handleControllerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Download handles GET /v1/run/download: the host-native fallback that
// serves the last materialized archive directly, independent of the
// size-capped data-URI path.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	path := h.ctrl.DownloadPath()
	if path == "" {
		respondError(w, r, http.StatusNotFound, "no result archive available")
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// handleControllerError maps controller errors to HTTP responses
func handleControllerError(w http.ResponseWriter, r *http.Request, err error) {
	logger := GetLogger(r.Context())
	if logger != nil {
		logger.Warn("request rejected", "error", err.Error())
	}

	switch {
	case errors.Is(err, controller.ErrBusy):
		respondError(w, r, http.StatusConflict, "a run is already in progress")
	case errors.Is(err, controller.ErrUnknownAction):
		respondError(w, r, http.StatusNotFound, err.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// respondError writes a JSON error response with logging
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("returning error response",
			"status", status,
			"message", message,
			"request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}
