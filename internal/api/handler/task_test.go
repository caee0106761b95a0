package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/scheduler"
)

func newTaskFixture() (*TaskHandler, *mockTaskRepository, *mockSweeper) {
	tasks := &mockTaskRepository{}
	ctx := context.Background()
	pending := domain.NewFailedTask("t1", "https://threads.net/t/A", "42", domain.StageSummarize, "summarize [grok]: timeout")
	abandoned := domain.NewFailedTask("t2", "https://threads.net/t/B", "42", domain.StageDownload, "extract: exhausted")
	abandoned.Status = domain.TaskStatusAbandoned
	abandoned.RetryCount = 3
	tasks.UpsertTask(ctx, pending)
	tasks.UpsertTask(ctx, abandoned)

	sweeper := &mockSweeper{report: &scheduler.SweepReport{Swept: 1, Succeeded: 1}}
	return NewTaskHandler(tasks, sweeper, testLogger()), tasks, sweeper
}

func TestTaskHandler_List(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantTotal  int
		wantLimit  int
	}{
		{"", http.StatusOK, 2, 50},
		{"?status=pending", http.StatusOK, 1, 50},
		{"?status=abandoned&limit=10", http.StatusOK, 1, 10},
		{"?status=bogus", http.StatusBadRequest, 0, 0},
		{"?limit=-1", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			h, repo, _ := newTaskFixture()
			w := httptest.NewRecorder()
			h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp TaskListResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Total != tt.wantTotal || len(resp.Tasks) != tt.wantTotal {
				t.Errorf("total = %d, tasks = %d, want %d", resp.Total, len(resp.Tasks), tt.wantTotal)
			}
			if repo.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", repo.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestTaskHandler_List_RepoError(t *testing.T) {
	h, repo, _ := newTaskFixture()
	repo.err = errors.New("db locked")

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTaskHandler_Get(t *testing.T) {
	tests := []struct {
		id         string
		wantStatus int
	}{
		{"t2", http.StatusOK},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			h, _, _ := newTaskFixture()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+tt.id, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("taskID", tt.id)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()
			h.Get(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp TaskResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Status != "abandoned" || resp.RetryCount != 3 || resp.Stage != "download" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestTaskHandler_Sweep(t *testing.T) {
	h, _, sweeper := newTaskFixture()

	w := httptest.NewRecorder()
	h.Sweep(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks/sweep", nil))
	if w.Code != http.StatusOK || sweeper.calls != 1 {
		t.Fatalf("status = %d, calls = %d", w.Code, sweeper.calls)
	}
	var report scheduler.SweepReport
	json.NewDecoder(w.Body).Decode(&report)
	if report.Swept != 1 || report.Succeeded != 1 {
		t.Errorf("report = %+v", report)
	}

	sweeper.err = scheduler.ErrSweepInProgress
	w = httptest.NewRecorder()
	h.Sweep(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks/sweep", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}

	sweeper.err = errors.New("load pending tasks: db locked")
	w = httptest.NewRecorder()
	h.Sweep(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks/sweep", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
