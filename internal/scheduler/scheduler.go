// Package scheduler retries failed pipeline runs on a fixed interval until
// they succeed or run out of attempts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/repository"
	"github.com/iconidentify/threadgrabba/internal/service"
)

// ErrSweepInProgress is returned by SweepNow while another sweep runs.
var ErrSweepInProgress = errors.New("retry sweep already in progress")

// Config holds scheduler settings.
type Config struct {
	Interval   time.Duration
	MaxRetries int
}

// SweepReport summarizes one pass over the pending tasks.
type SweepReport struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Swept         int           `json:"swept"`
	Succeeded     int           `json:"succeeded"`
	StillFailing  int           `json:"still_failing"`
	Abandoned     int           `json:"abandoned"`
	Interrupted   int           `json:"interrupted"`
	PersistErrors int           `json:"persist_errors"`
}

// RetryScheduler owns every FailedTask transition after creation.
type RetryScheduler struct {
	cfg       Config
	tasks     repository.TaskRepository
	processed repository.ProcessedURLRepository
	runner    service.Runner
	notifier  service.Notifier
	logger    *slog.Logger
	now       func() time.Time

	cron    *cron.Cron
	running sync.Mutex

	mu   sync.Mutex
	last *SweepReport
}

// New creates a retry scheduler. notifier may be nil.
func New(
	cfg Config,
	tasks repository.TaskRepository,
	processed repository.ProcessedURLRepository,
	runner service.Runner,
	notifier service.Notifier,
	logger *slog.Logger,
) *RetryScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &RetryScheduler{
		cfg:       cfg,
		tasks:     tasks,
		processed: processed,
		runner:    runner,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules a sweep every Interval. Sweeps run with ctx and never overlap.
func (s *RetryScheduler) Start(ctx context.Context) error {
	cl := cronLogger{s.logger}
	s.cron = cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	spec := "@every " + s.cfg.Interval.String()
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.SweepNow(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.logger.Error("retry sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule retry sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("retry scheduler started", "interval", s.cfg.Interval, "max_retries", s.cfg.MaxRetries)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (s *RetryScheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("retry scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("retry scheduler stop timed out")
	}
}

// Interval returns the sweep interval.
func (s *RetryScheduler) Interval() time.Duration { return s.cfg.Interval }

// MaxRetries returns the retry budget per task.
func (s *RetryScheduler) MaxRetries() int { return s.cfg.MaxRetries }

// LastSweep returns the most recent sweep report, or nil.
func (s *RetryScheduler) LastSweep() *SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// SweepNow retries every pending task with budget left, one at a time.
func (s *RetryScheduler) SweepNow(ctx context.Context) (*SweepReport, error) {
	if !s.running.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.running.Unlock()

	tasks, err := s.tasks.LoadPendingTasks(ctx, s.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("load pending tasks: %w", err)
	}

	report := &SweepReport{StartedAt: s.now()}
	if len(tasks) > 0 {
		s.logger.Info("retry sweep started", "tasks", len(tasks))
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		report.Swept++
		status := s.retry(ctx, task)
		if status == domain.TaskStatusPending && ctx.Err() != nil {
			report.Interrupted++
			continue
		}
		switch status {
		case domain.TaskStatusSucceeded:
			report.Succeeded++
		case domain.TaskStatusAbandoned:
			report.Abandoned++
		case domain.TaskStatusPending:
			report.StillFailing++
		default:
			report.PersistErrors++
		}
	}
	report.Duration = s.now().Sub(report.StartedAt)

	if report.Swept > 0 {
		s.logger.Info("retry sweep finished",
			"swept", report.Swept,
			"succeeded", report.Succeeded,
			"still_failing", report.StillFailing,
			"abandoned", report.Abandoned,
		)
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	return report, ctx.Err()
}

// retry runs one attempt and returns the task's resulting status, or "" when
// the attempt could not be recorded.
func (s *RetryScheduler) retry(ctx context.Context, task *domain.FailedTask) domain.TaskStatus {
	logger := s.logger.With("task_id", task.ID, "url", task.SourceURL)

	if !task.Retryable(s.cfg.MaxRetries) {
		return task.Status
	}
	if err := task.BeginRetry(s.now()); err != nil {
		logger.Warn("cannot retry task", "error", err)
		return task.Status
	}
	// Persist the attempt first so a crash mid-run still spends budget.
	if err := s.tasks.UpsertTask(ctx, task); err != nil {
		logger.Error("failed to persist retry attempt", "error", err)
		return ""
	}

	logger.Info("retrying task", "attempt", task.RetryCount, "max_retries", s.cfg.MaxRetries, "last_stage", task.Stage)
	res, runErr := s.runner.Run(ctx, task.SourceURL)

	// Ledger writes and notices outlive shutdown.
	persistCtx := context.WithoutCancel(ctx)

	if runErr != nil && ctx.Err() != nil {
		task.InterruptRetry()
		if err := s.tasks.UpsertTask(persistCtx, task); err != nil {
			logger.Error("failed to persist interrupted retry", "error", err)
			return ""
		}
		logger.Info("retry interrupted by shutdown, left pending", "error", runErr)
		return task.Status
	}

	var msg string
	switch {
	case runErr == nil:
		task.MarkSucceeded()
		s.recordProcessed(persistCtx, res, logger)
		msg = service.ResultMessage(res)
		logger.Info("retry succeeded", "attempt", task.RetryCount)

	case domain.IsTerminal(runErr):
		task.MarkAbandoned(domain.StageOf(runErr), runErr.Error())
		msg = service.FailureMessage(task.SourceURL, runErr)
		logger.Info("retry hit terminal failure, abandoning", "error", runErr)

	default:
		task.MarkFailedAgain(domain.StageOf(runErr), runErr.Error(), s.cfg.MaxRetries)
		summaryReady := errors.Is(runErr, domain.ErrPublishFailed) && res != nil && res.Summary != nil
		if task.Status == domain.TaskStatusAbandoned {
			msg = service.AbandonedMessage(task, s.cfg.MaxRetries)
			if summaryReady {
				msg = service.PublishFailedMessage(res, runErr, false) + "\n\n" + msg
			}
			logger.Warn("retry budget exhausted, task abandoned", "stage", task.Stage, "error", runErr)
		} else {
			if summaryReady {
				msg = service.PublishFailedMessage(res, runErr, true)
			}
			logger.Warn("retry failed", "attempt", task.RetryCount, "stage", task.Stage, "error", runErr)
		}
	}

	if err := s.tasks.UpsertTask(persistCtx, task); err != nil {
		logger.Error("failed to persist task transition", "status", task.Status, "error", err)
	}
	if msg != "" {
		s.notify(persistCtx, task.OriginatorID, msg)
	}
	return task.Status
}

func (s *RetryScheduler) recordProcessed(ctx context.Context, res *service.RunResult, logger *slog.Logger) {
	if res == nil {
		return
	}
	rec := &domain.ProcessedURLRecord{URL: res.URL, Kind: res.Kind, ProcessedAt: s.now()}
	if res.Summary != nil {
		rec.Title = res.Summary.Title
	}
	if err := s.processed.RecordProcessedURL(ctx, rec); err != nil {
		logger.Error("failed to record processed url", "error", err)
	}
}

func (s *RetryScheduler) notify(ctx context.Context, originatorID, text string) {
	if s.notifier == nil || originatorID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, originatorID, text); err != nil {
		s.logger.Warn("notification failed", "originator", originatorID, "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
