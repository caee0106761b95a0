package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// SQLiteTaskRepository implements TaskRepository on sqlite.
type SQLiteTaskRepository struct {
	db *DB
}

// NewSQLiteTaskRepository creates a task repository.
func NewSQLiteTaskRepository(db *DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

const taskColumns = `id, source_url, originator_id, stage, message, retry_count, created_at, last_retry_at, status`

// LoadPendingTasks returns pending tasks with retry budget left, oldest first.
func (r *SQLiteTaskRepository) LoadPendingTasks(ctx context.Context, maxRetries int) ([]*domain.FailedTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM failed_tasks
		WHERE status = ? AND retry_count < ?
		ORDER BY created_at ASC
	`, domain.TaskStatusPending, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// UpsertTask inserts or replaces a task by ID.
func (r *SQLiteTaskRepository) UpsertTask(ctx context.Context, task *domain.FailedTask) error {
	var lastRetry sql.NullString
	if task.LastRetryAt != nil {
		lastRetry = sql.NullString{String: formatTime(*task.LastRetryAt), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO failed_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			stage = excluded.stage,
			message = excluded.message,
			retry_count = excluded.retry_count,
			last_retry_at = excluded.last_retry_at,
			status = excluded.status
	`,
		task.ID, task.SourceURL, task.OriginatorID, task.Stage, task.Message,
		task.RetryCount, formatTime(task.CreatedAt), lastRetry, task.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (r *SQLiteTaskRepository) GetTask(ctx context.Context, id domain.TaskID) (*domain.FailedTask, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM failed_tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, domain.ErrTaskNotFound
	}
	return tasks[0], nil
}

// ListTasks returns tasks newest first.
func (r *SQLiteTaskRepository) ListTasks(ctx context.Context, status *domain.TaskStatus, limit int) ([]*domain.FailedTask, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + taskColumns + ` FROM failed_tasks`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// CountTasks returns the number of tasks with the given status.
func (r *SQLiteTaskRepository) CountTasks(ctx context.Context, status domain.TaskStatus) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_tasks WHERE status = ?`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// FindPendingTask returns the newest pending task for url, or nil.
func (r *SQLiteTaskRepository) FindPendingTask(ctx context.Context, url string) (*domain.FailedTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM failed_tasks
		WHERE source_url = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, url, domain.TaskStatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending task: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

func scanTasks(rows *sql.Rows) ([]*domain.FailedTask, error) {
	tasks := make([]*domain.FailedTask, 0)
	for rows.Next() {
		var (
			t         domain.FailedTask
			createdAt string
			lastRetry sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.SourceURL, &t.OriginatorID, &t.Stage, &t.Message,
			&t.RetryCount, &createdAt, &lastRetry, &t.Status); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}

		var err error
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if lastRetry.Valid {
			ts, err := parseTime(lastRetry.String)
			if err != nil {
				return nil, err
			}
			t.LastRetryAt = &ts
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
