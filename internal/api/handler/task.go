package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/scheduler"
)

// TaskStore reads the failed-task ledger.
type TaskStore interface {
	GetTask(ctx context.Context, id domain.TaskID) (*domain.FailedTask, error)
	ListTasks(ctx context.Context, status *domain.TaskStatus, limit int) ([]*domain.FailedTask, error)
}

// Sweeper triggers an immediate retry sweep.
type Sweeper interface {
	SweepNow(ctx context.Context) (*scheduler.SweepReport, error)
}

// TaskHandler exposes the failed-task ledger.
type TaskHandler struct {
	tasks   TaskStore
	sweeper Sweeper
	logger  *slog.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(tasks TaskStore, sweeper Sweeper, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, sweeper: sweeper, logger: logger}
}

// TaskResponse represents a failed task.
type TaskResponse struct {
	ID           string     `json:"id"`
	SourceURL    string     `json:"source_url"`
	OriginatorID string     `json:"originator_id,omitempty"`
	Stage        string     `json:"stage"`
	Message      string     `json:"message"`
	RetryCount   int        `json:"retry_count"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
}

// TaskListResponse contains a page of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int            `json:"total"`
	Limit int            `json:"limit"`
}

func toTaskResponse(t *domain.FailedTask) TaskResponse {
	return TaskResponse{
		ID:           t.ID.String(),
		SourceURL:    t.SourceURL,
		OriginatorID: t.OriginatorID,
		Stage:        string(t.Stage),
		Message:      t.Message,
		RetryCount:   t.RetryCount,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt,
		LastRetryAt:  t.LastRetryAt,
	}
}

// List handles GET /api/v1/tasks?status=pending&limit=50
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *domain.TaskStatus
	switch s := domain.TaskStatus(r.URL.Query().Get("status")); s {
	case "":
	case domain.TaskStatusPending, domain.TaskStatusSucceeded, domain.TaskStatusAbandoned:
		status = &s
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	tasks, err := h.tasks.ListTasks(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("failed to list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks)), Total: len(tasks), Limit: limit}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/tasks/{taskID}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing task ID")
		return
	}

	task, err := h.tasks.GetTask(r.Context(), domain.TaskID(id))
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("failed to get task", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// Sweep handles POST /api/v1/tasks/sweep
func (h *TaskHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abandon a half-finished sweep.
	report, err := h.sweeper.SweepNow(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, scheduler.ErrSweepInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("manual sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
