package repository

import (
	"context"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// TaskRepository persists the failed-task ledger.
type TaskRepository interface {
	// LoadPendingTasks returns pending tasks with fewer than maxRetries
	// attempts, oldest first.
	LoadPendingTasks(ctx context.Context, maxRetries int) ([]*domain.FailedTask, error)

	// UpsertTask inserts or replaces a task by ID.
	UpsertTask(ctx context.Context, task *domain.FailedTask) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, id domain.TaskID) (*domain.FailedTask, error)

	// ListTasks returns tasks, newest first, optionally filtered by status.
	ListTasks(ctx context.Context, status *domain.TaskStatus, limit int) ([]*domain.FailedTask, error)

	// CountTasks returns the number of tasks with the given status.
	CountTasks(ctx context.Context, status domain.TaskStatus) (int, error)

	// FindPendingTask returns the newest pending task for url, or nil.
	FindPendingTask(ctx context.Context, url string) (*domain.FailedTask, error)
}

// ProcessedURLRepository records URLs that completed the pipeline.
type ProcessedURLRepository interface {
	// FindProcessedURL returns the record for url, or nil when the URL was
	// never processed.
	FindProcessedURL(ctx context.Context, url string) (*domain.ProcessedURLRecord, error)

	// RecordProcessedURL stores rec. An existing record is left untouched.
	RecordProcessedURL(ctx context.Context, rec *domain.ProcessedURLRecord) error
}

// JobRepository manages the job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next queued job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// ListPending returns all queued jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
