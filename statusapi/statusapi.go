// Package statusapi exposes the queue's state over HTTP for a local
// status UI: read-only job snapshots plus the one user-visible mutation,
// manual retry of a failed job.
package statusapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	uplink "github.com/phrazzld/uplink"
	"github.com/phrazzld/uplink/store"
)

// Handler serves the status API for one queue.
type Handler struct {
	queue  *uplink.Queue
	logger *slog.Logger
}

// NewHandler creates a status API handler around a queue.
func NewHandler(queue *uplink.Queue, logger *slog.Logger) *Handler {
	return &Handler{
		queue:  queue,
		logger: logger.With("component", "status_api"),
	}
}

// Router builds the chi router for the status API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/jobs", h.listJobs)
	r.Get("/jobs/{id}", h.getJob)
	r.Post("/jobs/{id}/retry", h.retryJob)
	r.Get("/deadletters", h.listDeadLetters)

	return r
}

// errorResponse defines the standard error response structure.
type errorResponse struct {
	Error string `json:"error"`
}

// respondWithJSON writes a JSON response with the given status code and
// data.
func (h *Handler) respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondWithError writes a JSON error response with the given status
// code and message.
func (h *Handler) respondWithError(w http.ResponseWriter, status int, message string) {
	h.respondWithJSON(w, status, errorResponse{Error: message})
}

// listJobs returns a snapshot of all jobs in submission order.
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondWithJSON(w, http.StatusOK, jobs)
}

// getJob returns one job by ID.
func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	j, err := h.queue.GetJob(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			h.respondWithError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get job", "job_id", id, "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondWithJSON(w, http.StatusOK, j)
}

// retryJob resets a failed job for a fresh round of attempts.
func (h *Handler) retryJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	j, err := h.queue.Retry(r.Context(), id)
	if err != nil {
		switch {
		case store.IsNotFound(err):
			h.respondWithError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, uplink.ErrJobNotRetryable):
			h.respondWithError(w, http.StatusConflict, "job is not in a failed state")
		default:
			h.logger.Error("failed to retry job", "job_id", id, "error", err)
			h.respondWithError(w, http.StatusInternalServerError, "failed to retry job")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, j)
}

// listDeadLetters returns records quarantined during store load.
func (h *Handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := h.queue.DeadLetters(r.Context())
	if err != nil {
		h.logger.Error("failed to list dead letters", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	h.respondWithJSON(w, http.StatusOK, letters)
}
