package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/repository"
	"github.com/iconidentify/threadgrabba/internal/scheduler"
	"github.com/iconidentify/threadgrabba/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	stats    *repository.QueueStats
	statsErr error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{stats: &repository.QueueStats{}}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error { return nil }

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error { return nil }

func (m *mockJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	return nil, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// mockTaskRepository is a test implementation of repository.TaskRepository.
type mockTaskRepository struct {
	mu        sync.Mutex
	tasks     []*domain.FailedTask
	err       error
	lastLimit int
}

func (m *mockTaskRepository) LoadPendingTasks(ctx context.Context, maxRetries int) ([]*domain.FailedTask, error) {
	return nil, nil
}

func (m *mockTaskRepository) UpsertTask(ctx context.Context, task *domain.FailedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockTaskRepository) GetTask(ctx context.Context, id domain.TaskID) (*domain.FailedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (m *mockTaskRepository) ListTasks(ctx context.Context, status *domain.TaskStatus, limit int) ([]*domain.FailedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.FailedTask
	for _, t := range m.tasks {
		if status == nil || t.Status == *status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTaskRepository) CountTasks(ctx context.Context, status domain.TaskStatus) (int, error) {
	list, err := m.ListTasks(ctx, &status, 0)
	return len(list), err
}

func (m *mockTaskRepository) FindPendingTask(ctx context.Context, url string) (*domain.FailedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.SourceURL == url && t.Status == domain.TaskStatusPending {
			return t, nil
		}
	}
	return nil, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error { return m.err }

type mockSubmitter struct {
	ack *service.Ack
	err error
	url string
	org string
}

func (m *mockSubmitter) Submit(ctx context.Context, url, originatorID string) (*service.Ack, error) {
	m.url, m.org = url, originatorID
	return m.ack, m.err
}

type mockSweeper struct {
	report *scheduler.SweepReport
	err    error
	calls  int
}

func (m *mockSweeper) SweepNow(ctx context.Context) (*scheduler.SweepReport, error) {
	m.calls++
	return m.report, m.err
}

func (m *mockSweeper) LastSweep() *scheduler.SweepReport {
	return m.report
}
