package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iconidentify/threadgrabba/internal/api/handler"
	"github.com/iconidentify/threadgrabba/internal/dedup"
	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/repository"
	"github.com/iconidentify/threadgrabba/internal/scheduler"
	"github.com/iconidentify/threadgrabba/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopRunner struct{}

func (nopRunner) Run(ctx context.Context, url string) (*service.RunResult, error) {
	return &service.RunResult{URL: url}, nil
}

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	jobs := repository.NewInMemoryJobRepository()
	tasks := repository.NewSQLiteTaskRepository(db)
	processed := repository.NewSQLiteProcessedURLRepository(db)
	tasks.UpsertTask(ctx, domain.NewFailedTask("t1", "https://threads.net/t/A", "", domain.StageDownload, "x"))

	logger := testLogger()
	ingest := service.NewIngestService(nopRunner{}, jobs, tasks, processed, dedup.NewRecentSet(10), nil, logger)
	sched := scheduler.New(scheduler.Config{}, tasks, processed, nopRunner{}, nil, logger)

	return NewRouter(
		handler.NewHealthHandler(jobs, tasks, db, sched, t.TempDir()),
		handler.NewSubmissionHandler(ingest, logger),
		handler.NewTaskHandler(tasks, sched, logger),
		handler.NewJobHandler(jobs, logger),
		apiKey,
	)
}

func TestRouter(t *testing.T) {
	r := newTestRouter(t, "secret")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		key        string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", "", http.StatusOK},
		{"double slash", http.MethodGet, "//ready", "", "", http.StatusOK},
		{"tasks without key", http.MethodGet, "/api/v1/tasks", "", "", http.StatusUnauthorized},
		{"tasks", http.MethodGet, "/api/v1/tasks", "", "secret", http.StatusOK},
		{"task", http.MethodGet, "/api/v1/tasks/t1", "", "secret", http.StatusOK},
		{"stats", http.MethodGet, "/api/v1/stats", "", "secret", http.StatusOK},
		{"submit", http.MethodPost, "/api/v1/submissions", `{"url":"https://www.threads.net/@a/post/B"}`, "secret", http.StatusAccepted},
		{"submit unsupported", http.MethodPost, "/api/v1/submissions", `{"url":"https://x.com/a"}`, "secret", http.StatusUnprocessableEntity},
		{"jobs", http.MethodGet, "/api/v1/jobs", "", "secret", http.StatusOK},
		{"unknown job", http.MethodGet, "/api/v1/jobs/nope", "", "secret", http.StatusNotFound},
		{"sweep", http.MethodPost, "/api/v1/tasks/sweep", "", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_NoAPIKeyDisablesAPI(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
