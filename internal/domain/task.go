package domain

import (
	"time"
)

// TaskID is a unique identifier for a failed task.
type TaskID string

// String returns the string representation of the TaskID.
func (id TaskID) String() string {
	return string(id)
}

// Stage is the pipeline stage where a run failed.
type Stage string

const (
	StageDownload   Stage = "download"
	StageTranscribe Stage = "transcribe"
	StageSummarize  Stage = "summarize"
	StagePublish    Stage = "publish"
)

// TaskStatus represents the state of a failed task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusAbandoned TaskStatus = "abandoned"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusAbandoned
}

// FailedTask is a pipeline run that failed and awaits retry. It is never
// deleted, only moved to a terminal status.
type FailedTask struct {
	ID           TaskID
	SourceURL    string
	OriginatorID string
	Stage        Stage
	Message      string
	RetryCount   int
	CreatedAt    time.Time
	LastRetryAt  *time.Time
	Status       TaskStatus
}

// NewFailedTask creates a pending task from a first failure.
func NewFailedTask(id TaskID, sourceURL, originatorID string, stage Stage, message string) *FailedTask {
	return &FailedTask{
		ID:           id,
		SourceURL:    sourceURL,
		OriginatorID: originatorID,
		Stage:        stage,
		Message:      message,
		CreatedAt:    time.Now(),
		Status:       TaskStatusPending,
	}
}

// Retryable reports whether the scheduler should sweep this task.
func (t *FailedTask) Retryable(maxRetries int) bool {
	return t.Status == TaskStatusPending && t.RetryCount < maxRetries
}

// BeginRetry records a retry attempt.
func (t *FailedTask) BeginRetry(now time.Time) error {
	if t.Status.IsTerminal() {
		return ErrTaskTerminal
	}
	t.RetryCount++
	t.LastRetryAt = &now
	return nil
}

// InterruptRetry gives back the attempt recorded by BeginRetry when the run
// was cut short by shutdown rather than failing on its own.
func (t *FailedTask) InterruptRetry() {
	if t.Status.IsTerminal() || t.RetryCount == 0 {
		return
	}
	t.RetryCount--
}

// MarkSucceeded moves the task to its terminal success state.
func (t *FailedTask) MarkSucceeded() error {
	if t.Status.IsTerminal() {
		return ErrTaskTerminal
	}
	t.Status = TaskStatusSucceeded
	return nil
}

// MarkAbandoned moves the task to its terminal abandoned state.
func (t *FailedTask) MarkAbandoned(stage Stage, message string) error {
	if t.Status.IsTerminal() {
		return ErrTaskTerminal
	}
	t.Stage = stage
	t.Message = message
	t.Status = TaskStatusAbandoned
	return nil
}

// MarkFailedAgain records a failed retry. The task is abandoned once the
// retry budget is spent, otherwise it stays pending.
func (t *FailedTask) MarkFailedAgain(stage Stage, message string, maxRetries int) error {
	if t.RetryCount >= maxRetries {
		return t.MarkAbandoned(stage, message)
	}
	if t.Status.IsTerminal() {
		return ErrTaskTerminal
	}
	t.Stage = stage
	t.Message = message
	return nil
}

// ProcessedURLRecord marks a URL as fully processed. Created once, never mutated.
type ProcessedURLRecord struct {
	URL         string
	Kind        OutcomeKind
	Title       string
	ProcessedAt time.Time
}
