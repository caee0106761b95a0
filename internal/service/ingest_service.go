package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/threadgrabba/internal/dedup"
	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/links"
	"github.com/iconidentify/threadgrabba/internal/repository"
)

// Notifier delivers a message to whoever submitted a link.
type Notifier interface {
	Notify(ctx context.Context, originatorID, text string) error
}

// Runner runs the pipeline for one URL.
type Runner interface {
	Run(ctx context.Context, url string) (*RunResult, error)
}

// AckStatus tells a front-end what happened to a submission.
type AckStatus string

const (
	AckQueued           AckStatus = "queued"
	AckAlreadyProcessed AckStatus = "already_processed"
	AckInProgress       AckStatus = "in_progress"
	AckRetryPending     AckStatus = "retry_pending"
	AckUnsupported      AckStatus = "unsupported"
)

// Ack is returned by Submit.
type Ack struct {
	Status      AckStatus    `json:"status"`
	URL         string       `json:"url"`
	JobID       domain.JobID `json:"job_id,omitempty"`
	Title       string       `json:"title,omitempty"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	Message     string       `json:"message"`
}

// IngestService accepts submissions and runs queued jobs.
type IngestService struct {
	runner    Runner
	jobs      repository.JobRepository
	tasks     repository.TaskRepository
	processed repository.ProcessedURLRepository
	recent    dedup.Filter
	notifier  Notifier
	logger    *slog.Logger
}

// NewIngestService creates an ingest service.
func NewIngestService(
	runner Runner,
	jobs repository.JobRepository,
	tasks repository.TaskRepository,
	processed repository.ProcessedURLRepository,
	recent dedup.Filter,
	notifier Notifier,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		runner:    runner,
		jobs:      jobs,
		tasks:     tasks,
		processed: processed,
		recent:    recent,
		notifier:  notifier,
		logger:    logger,
	}
}

// NormalizeURL maps every pasted form of a post (host aliases, www, query,
// fragment, trailing slash, handle casing) to one ledger key. Unsupported
// links are only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if link, err := links.Parse(raw); err == nil {
		return link.URL
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "/")
}

// Submit validates url and queues it for processing. A URL that already
// completed short-circuits with its recorded title; the extractor is never
// consulted here.
func (s *IngestService) Submit(ctx context.Context, url, originatorID string) (*Ack, error) {
	url = NormalizeURL(url)
	if links.PlatformOf(url) == "" {
		return &Ack{
			Status:  AckUnsupported,
			URL:     url,
			Message: FailureMessage(url, domain.ErrUnsupportedURL),
		}, nil
	}

	fresh, err := s.recent.TryAdd(ctx, url)
	if err != nil {
		s.logger.Warn("recent filter unavailable", "error", err)
		fresh = true
	}

	rec, err := s.processed.FindProcessedURL(ctx, url)
	if err != nil {
		// Undo the filter entry so a later retry of this submission is accepted.
		s.forget(ctx, url)
		return nil, fmt.Errorf("check processed url: %w", err)
	}
	if rec != nil {
		processedAt := rec.ProcessedAt
		return &Ack{
			Status:      AckAlreadyProcessed,
			URL:         url,
			Title:       rec.Title,
			ProcessedAt: &processedAt,
			Message:     fmt.Sprintf("Already processed on %s: %s", rec.ProcessedAt.Format("2006-01-02 15:04"), rec.Title),
		}, nil
	}

	task, err := s.tasks.FindPendingTask(ctx, url)
	if err != nil {
		s.forget(ctx, url)
		return nil, fmt.Errorf("check pending task: %w", err)
	}
	if task != nil {
		// The ledger already owns this link; the filter entry is not needed.
		s.forget(ctx, url)
		return &Ack{
			Status:  AckRetryPending,
			URL:     url,
			Message: "This link failed earlier and is queued for an automatic retry.",
		}, nil
	}

	if !fresh {
		return &Ack{
			Status:  AckInProgress,
			URL:     url,
			Message: "This link was just submitted and is still being processed.",
		}, nil
	}

	job := domain.NewJob(domain.JobID(uuid.New().String()), url, originatorID)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.forget(ctx, url)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("submission queued", "url", url, "job_id", job.ID, "originator", originatorID)
	return &Ack{
		Status:  AckQueued,
		URL:     url,
		JobID:   job.ID,
		Message: "Queued for processing.",
	}, nil
}

// HandleJob runs the pipeline for a dequeued job and takes care of the
// outcome: success is recorded and reported, terminal failures are reported
// once, anything else goes to the failed-task ledger. Once the run ends the
// link leaves the recent filter; from then on the ledgers answer resubmits.
// A run cut short by shutdown is still written to the failed-task ledger.
func (s *IngestService) HandleJob(ctx context.Context, job *domain.Job) error {
	logger := s.logger.With("job_id", job.ID, "url", job.URL)

	s.notify(ctx, job.OriginatorID, ProcessingMessage(job.URL))

	res, err := s.runner.Run(ctx, job.URL)

	persistCtx := context.WithoutCancel(ctx)
	defer s.forget(persistCtx, job.URL)

	if err == nil {
		s.recordProcessed(persistCtx, res, logger)
		s.notify(persistCtx, job.OriginatorID, ResultMessage(res))
		return nil
	}

	if domain.IsTerminal(err) {
		logger.Info("terminal extraction failure", "error", err)
		s.notify(persistCtx, job.OriginatorID, FailureMessage(job.URL, err))
		return err
	}

	task := domain.NewFailedTask(domain.TaskID(uuid.New().String()), job.URL, job.OriginatorID, domain.StageOf(err), err.Error())
	if upsertErr := s.tasks.UpsertTask(persistCtx, task); upsertErr != nil {
		logger.Error("failed to record failed task", "error", upsertErr)
	}
	logger.Warn("pipeline failed, queued for retry",
		"task_id", task.ID,
		"stage", task.Stage,
		"error", err,
	)

	if errors.Is(err, domain.ErrPublishFailed) && res != nil && res.Summary != nil {
		s.notify(persistCtx, job.OriginatorID, PublishFailedMessage(res, err, true))
	} else {
		s.notify(persistCtx, job.OriginatorID, FailureMessage(job.URL, err))
	}
	return err
}

// PendingTasks returns how many failed tasks await retry.
func (s *IngestService) PendingTasks(ctx context.Context) (int, error) {
	return s.tasks.CountTasks(ctx, domain.TaskStatusPending)
}

func (s *IngestService) recordProcessed(ctx context.Context, res *RunResult, logger *slog.Logger) {
	rec := &domain.ProcessedURLRecord{
		URL:         res.URL,
		Kind:        res.Kind,
		ProcessedAt: time.Now(),
	}
	if res.Summary != nil {
		rec.Title = res.Summary.Title
	}
	if err := s.processed.RecordProcessedURL(ctx, rec); err != nil {
		logger.Error("failed to record processed url", "error", err)
	}
}

func (s *IngestService) notify(ctx context.Context, originatorID, text string) {
	if s.notifier == nil || originatorID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, originatorID, text); err != nil {
		s.logger.Warn("notification failed", "originator", originatorID, "error", err)
	}
}

func (s *IngestService) forget(ctx context.Context, url string) {
	if err := s.recent.Forget(ctx, url); err != nil {
		s.logger.Warn("recent filter forget failed", "error", err)
	}
}
