package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/summarizer"
	"github.com/iconidentify/threadgrabba/pkg/whisper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testURL = "https://www.threads.net/@alice/post/ABC123"

type fakeExtractor struct {
	mu      sync.Mutex
	outcome domain.ExtractionOutcome
	calls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) domain.ExtractionOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.outcome
}

// fakeAcquirer writes one real file per ref so Release can be observed.
type fakeAcquirer struct {
	dir      string
	err      error
	partial  bool
	withAud  bool
	manifest *domain.DownloadManifest
	refs     []domain.MediaRef
}

func (f *fakeAcquirer) Acquire(ctx context.Context, refs []domain.MediaRef) (*domain.DownloadManifest, bool, error) {
	f.refs = refs
	if f.err != nil {
		return nil, false, f.err
	}
	m := &domain.DownloadManifest{}
	for i, ref := range refs {
		path := filepath.Join(f.dir, string(ref.Kind)+string(rune('a'+i)))
		os.WriteFile(path, []byte("x"), 0644)
		if ref.Kind == domain.MediaKindVideo {
			m.VideoPaths = append(m.VideoPaths, path)
			if f.withAud {
				aud := path + ".mp3"
				os.WriteFile(aud, []byte("x"), 0644)
				m.AudioPaths = append(m.AudioPaths, aud)
			}
		} else {
			m.ImagePaths = append(m.ImagePaths, path)
		}
	}
	f.manifest = m
	return m, f.partial, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*whisper.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &whisper.Transcript{Text: f.text, Language: "en"}, nil
}

type fakeVisual struct {
	calls int
}

func (f *fakeVisual) Describe(ctx context.Context, m *domain.DownloadManifest) string {
	f.calls++
	return "Image 1/1:\na chart"
}

type fakeSummarizer struct {
	mu    sync.Mutex
	err   error
	input summarizer.Input
	calls int
}

func (f *fakeSummarizer) Name() string { return "fake" }

func (f *fakeSummarizer) Summarize(ctx context.Context, in summarizer.Input) (*summarizer.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &summarizer.Summary{
		Markdown:     "## Summary\nAlice on notes.",
		ShortSummary: "Alice on notes.",
		Bullets:      []string{"Inbox", "Review"},
		Title:        "Note habits",
	}, nil
}

type fakePublisher struct {
	err      error
	markdown string
	media    []string
	title    string
}

func (f *fakePublisher) Publish(ctx context.Context, markdown string, media []string, title string) (string, error) {
	f.markdown, f.media, f.title = markdown, media, title
	if f.err != nil {
		return "", f.err
	}
	return "/notes/Note_habits.md", nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, originatorID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, originatorID+": "+text)
	return f.err
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[domain.TaskID]*domain.FailedTask
	err   error
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[domain.TaskID]*domain.FailedTask)}
}

func (f *fakeTaskRepo) LoadPendingTasks(ctx context.Context, maxRetries int) ([]*domain.FailedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.FailedTask
	for _, t := range f.tasks {
		if t.Retryable(maxRetries) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) UpsertTask(ctx context.Context, task *domain.FailedTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *task
	f.tasks[task.ID] = &cp
	return nil
}

func (f *fakeTaskRepo) GetTask(ctx context.Context, id domain.TaskID) (*domain.FailedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeTaskRepo) ListTasks(ctx context.Context, status *domain.TaskStatus, limit int) ([]*domain.FailedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.FailedTask
	for _, t := range f.tasks {
		if status == nil || t.Status == *status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) CountTasks(ctx context.Context, status domain.TaskStatus) (int, error) {
	list, _ := f.ListTasks(ctx, &status, 0)
	return len(list), nil
}

func (f *fakeTaskRepo) FindPendingTask(ctx context.Context, url string) (*domain.FailedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.SourceURL == url && t.Status == domain.TaskStatusPending {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTaskRepo) only() *domain.FailedTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		return t
	}
	return nil
}

type fakeProcessedRepo struct {
	mu      sync.Mutex
	records map[string]*domain.ProcessedURLRecord
	findErr error
}

func newFakeProcessedRepo() *fakeProcessedRepo {
	return &fakeProcessedRepo{records: make(map[string]*domain.ProcessedURLRecord)}
}

func (f *fakeProcessedRepo) FindProcessedURL(ctx context.Context, url string) (*domain.ProcessedURLRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.records[url], nil
}

func (f *fakeProcessedRepo) RecordProcessedURL(ctx context.Context, rec *domain.ProcessedURLRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.URL]; !ok {
		f.records[rec.URL] = rec
	}
	return nil
}

// stubRunner returns a scripted result.
type stubRunner struct {
	mu    sync.Mutex
	res   *RunResult
	err   error
	calls int
}

func (s *stubRunner) Run(ctx context.Context, url string) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.res, s.err
}

func alicePost(media ...domain.MediaRef) domain.Post {
	return domain.Post{ID: "1", Code: "ABC123", AuthorHandle: "alice", Text: "How I take notes", Media: media}
}
