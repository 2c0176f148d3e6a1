// Package api exposes the sync manager over HTTP: job submission, job
// status, and persisted sync history.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tms-sync/internal/domain"
	"tms-sync/internal/sync"
)

// Handler serves the status API on top of the sync service.
type Handler struct {
	service *sync.Service
	logger  *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(service *sync.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type runRequest struct {
	SyncType string `json:"sync_type"`
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
}

type runResponse struct {
	JobID string `json:"job_id"`
}

// RunSync accepts a sync job and returns 202 with its id. The job runs
// asynchronously; poll JobStatus for progress.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	req := domain.SubmitRequest{SyncType: domain.SyncType(body.SyncType)}
	var err error
	if req.DateFrom, err = parseDate(body.DateFrom, "date_from"); err != nil {
		h.writeError(w, err)
		return
	}
	if req.DateTo, err = parseDate(body.DateTo, "date_to"); err != nil {
		h.writeError(w, err)
		return
	}

	jobID, err := h.service.Submit(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, runResponse{JobID: jobID})
}

// JobStatus returns the live snapshot of one job.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetStatus(chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// History lists persisted sync log entries, most recent first. Supports
// ?sync_type= and ?limit= filters.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	filter := domain.HistoryFilter{Limit: domain.DefaultHistoryLimit}

	if raw := r.URL.Query().Get("sync_type"); raw != "" {
		st, err := domain.ParseSyncType(raw)
		if err != nil {
			h.writeError(w, err)
			return
		}
		filter.SyncType = &st
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, domain.ErrValidation("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}

	entries, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.SyncLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseDate(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, domain.ErrValidation("%s must be YYYY-MM-DD, got %q", field, s)
	}
	return &ts, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response failed", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		queueFull  *domain.QueueFullError
	)
	switch {
	case errors.As(err, &notFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &validation):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &queueFull):
		w.Header().Set("Retry-After", "30")
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("internal error", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
