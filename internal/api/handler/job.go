package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// JobStore reads the in-memory submission queue.
type JobStore interface {
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)
	ListPending(ctx context.Context) ([]*domain.Job, error)
}

// JobHandler exposes accepted submissions that have not finished yet.
// Finished jobs leave the queue; failures show up in the task ledger.
type JobHandler struct {
	jobs   JobStore
	logger *slog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs JobStore, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// JobResponse represents a queued or running job.
type JobResponse struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	OriginatorID string    `json:"originator_id,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toJobResponse(j *domain.Job) JobResponse {
	return JobResponse{
		ID:           j.ID.String(),
		URL:          j.URL,
		OriginatorID: j.OriginatorID,
		Status:       string(j.Status),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListPending(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  resp,
		"total": len(resp),
	})
}

// Get handles GET /api/v1/jobs/{jobID}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job, err := h.jobs.Get(r.Context(), domain.JobID(id))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found or already finished")
			return
		}
		h.logger.Error("failed to get job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}
