package domain

import (
	"time"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is an accepted submission waiting for a worker.
type Job struct {
	ID           JobID
	URL          string
	OriginatorID string
	Status       JobStatus
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewJob creates a queued job for a submitted URL.
func NewJob(id JobID, url, originatorID string) *Job {
	now := time.Now()
	return &Job{
		ID:           id,
		URL:          url,
		OriginatorID: originatorID,
		Status:       JobStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkProcessing updates the job status to processing.
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkCompleted updates the job status to completed.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.UpdatedAt = time.Now()
}

// MarkFailed updates the job status to failed with an error message. Failed
// jobs are not re-queued; recovery belongs to the failed-task ledger.
func (j *Job) MarkFailed(err string) {
	j.LastError = err
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
}
