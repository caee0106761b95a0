package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/pkg/threads"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testURL = "https://www.threads.net/@alice/post/ABC123"

// fakeTier returns a fixed outcome and counts calls.
type fakeTier struct {
	name string
	out  domain.ExtractionOutcome

	mu    sync.Mutex
	calls int
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) Fetch(ctx context.Context, ref threads.PostRef) domain.ExtractionOutcome {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.out
}

func (f *fakeTier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failing(name, reason string, kind error) *fakeTier {
	return &fakeTier{name: name, out: domain.FailureOutcome(name, reason, kind)}
}

func succeeding(name string, p domain.Post) *fakeTier {
	return &fakeTier{name: name, out: domain.SinglePostOutcome(p)}
}

func tiers(ts ...*fakeTier) []Tier {
	out := make([]Tier, len(ts))
	for i, t := range ts {
		out[i] = t
	}
	return out
}

func TestExtract_StopsAtFirstSuccess(t *testing.T) {
	t1 := failing("api", "session rejected", domain.ErrCredentialsRejected)
	t2 := succeeding("crawler", domain.Post{ID: "1", AuthorHandle: "alice", Text: "hi"})
	t3 := succeeding("scrape", domain.Post{ID: "1", AuthorHandle: "alice", Text: "other"})

	d := NewDispatcher(tiers(t1, t2, t3), nil, Config{}, testLogger())
	out := d.Extract(context.Background(), testURL)

	p, ok := out.Post()
	if !ok || p.Text != "hi" {
		t.Fatalf("Extract() = %v, want crawler's post", out.Kind())
	}
	if t1.callCount() != 1 || t2.callCount() != 1 {
		t.Errorf("calls = %d, %d; want 1, 1", t1.callCount(), t2.callCount())
	}
	if t3.callCount() != 0 {
		t.Errorf("scrape tier called %d times, want 0", t3.callCount())
	}
}

func TestExtract_UnsupportedURLRunsNoTier(t *testing.T) {
	t1 := succeeding("api", domain.Post{ID: "1"})
	d := NewDispatcher(tiers(t1), nil, Config{}, testLogger())

	out := d.Extract(context.Background(), "https://example.com/@alice/post/ABC")

	if !errors.Is(out.Err(), domain.ErrUnsupportedURL) {
		t.Fatalf("Err() = %v, want ErrUnsupportedURL", out.Err())
	}
	if errors.Is(out.Err(), domain.ErrExtractionExhausted) {
		t.Error("unsupported URL must not look like an exhausted extraction")
	}
	if t1.callCount() != 0 {
		t.Error("no tier should run for an unsupported URL")
	}
}

func TestExtract_NotFoundShortCircuits(t *testing.T) {
	t1 := failing("api", "media not found", domain.ErrNotFound)
	t2 := succeeding("crawler", domain.Post{ID: "1"})

	d := NewDispatcher(tiers(t1, t2), nil, Config{}, testLogger())
	out := d.Extract(context.Background(), testURL)

	if !errors.Is(out.Err(), domain.ErrNotFound) {
		t.Fatalf("Err() = %v, want ErrNotFound", out.Err())
	}
	if t2.callCount() != 0 {
		t.Error("no tier should run after an explicit not found")
	}
}

func TestExtract_AllFail(t *testing.T) {
	tests := []struct {
		name     string
		tiers    []*fakeTier
		wantKind error
	}{
		{
			name: "transient everywhere",
			tiers: []*fakeTier{
				failing("api", "timeout", nil),
				failing("crawler", "no payload", nil),
				failing("scrape", "nothing found", nil),
			},
			wantKind: domain.ErrExtractionExhausted,
		},
		{
			name: "credential failure is not a content classification",
			tiers: []*fakeTier{
				failing("api", "login required", domain.ErrCredentialsRejected),
				failing("crawler", "no payload", nil),
				failing("scrape", "nothing found", nil),
			},
			wantKind: domain.ErrExtractionExhausted,
		},
		{
			name: "private from a render tier",
			tiers: []*fakeTier{
				failing("api", "login required", domain.ErrCredentialsRejected),
				failing("crawler", "login wall", domain.ErrPrivateOrAuthRequired),
				failing("scrape", "rate limited", domain.ErrRateLimited),
			},
			wantKind: domain.ErrPrivateOrAuthRequired,
		},
		{
			name: "rate limited first wins",
			tiers: []*fakeTier{
				failing("api", "slow down", domain.ErrRateLimited),
				failing("crawler", "login wall", domain.ErrPrivateOrAuthRequired),
				failing("scrape", "nothing", nil),
			},
			wantKind: domain.ErrRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tiers(tt.tiers...), nil, Config{}, testLogger())
			out := d.Extract(context.Background(), testURL)

			f, ok := out.Failure()
			if !ok {
				t.Fatalf("Kind() = %s, want failure", out.Kind())
			}
			if !errors.Is(f.Kind, tt.wantKind) {
				t.Errorf("Kind = %v, want %v", f.Kind, tt.wantKind)
			}
			for _, ft := range tt.tiers {
				if ft.callCount() != 1 {
					t.Errorf("tier %s called %d times, want 1", ft.name, ft.callCount())
				}
				if !strings.Contains(f.Reason, ft.name+": ") {
					t.Errorf("Reason %q missing tier %s", f.Reason, ft.name)
				}
			}
			if strings.Count(f.Reason, "; ") != 2 {
				t.Errorf("Reason = %q, want three joined reasons", f.Reason)
			}
		})
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	t1 := succeeding("api", domain.Post{ID: "1"})
	d := NewDispatcher(tiers(t1), nil, Config{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := d.Extract(ctx, testURL)
	if out.OK() {
		t.Fatal("Extract() should fail on a cancelled context")
	}
	if t1.callCount() != 0 {
		t.Error("no tier should run on a cancelled context")
	}
}

type fakeReplies struct {
	replies []domain.Post
	err     error
}

func (f *fakeReplies) FetchReplies(ctx context.Context, ref threads.PostRef) ([]domain.Post, error) {
	return f.replies, f.err
}

func TestExtract_Conversation(t *testing.T) {
	parent := domain.Post{ID: "1", AuthorHandle: "alice", Text: "question"}
	replies := []domain.Post{{ID: "2", AuthorHandle: "bob", Text: "answer"}}

	tests := []struct {
		name     string
		cfg      Config
		fetcher  *fakeReplies
		wantKind domain.OutcomeKind
	}{
		{"enabled with replies", Config{FetchReplies: true}, &fakeReplies{replies: replies}, domain.OutcomeConversation},
		{"disabled", Config{}, &fakeReplies{replies: replies}, domain.OutcomeSinglePost},
		{"no replies", Config{FetchReplies: true}, &fakeReplies{}, domain.OutcomeSinglePost},
		{"fetch error keeps post", Config{FetchReplies: true}, &fakeReplies{err: errors.New("boom")}, domain.OutcomeSinglePost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tiers(succeeding("api", parent)), tt.fetcher, tt.cfg, testLogger())
			out := d.Extract(context.Background(), testURL)
			if out.Kind() != tt.wantKind {
				t.Fatalf("Kind() = %s, want %s", out.Kind(), tt.wantKind)
			}
			if c, ok := out.Conversation(); ok {
				if c.Parent.ID != "1" || len(c.Replies) != 1 || c.Replies[0].AuthorHandle != "bob" {
					t.Errorf("conversation = %+v", c)
				}
			}
		})
	}
}

func TestExtract_PreferRicherThread(t *testing.T) {
	single := domain.Post{ID: "1", Code: "ABC123", AuthorHandle: "alice", Text: "one"}
	thread, err := domain.NewThread([]domain.Post{single, {ID: "2", AuthorHandle: "alice", Text: "two"}})
	if err != nil {
		t.Fatal(err)
	}
	richer := &fakeTier{name: "crawler", out: domain.SelfThreadOutcome(thread)}

	d := NewDispatcher(tiers(succeeding("api", single), richer), nil, Config{}, testLogger())
	if out := d.Extract(context.Background(), testURL); out.Kind() != domain.OutcomeSinglePost {
		t.Errorf("default: Kind() = %s, want first success", out.Kind())
	}
	if richer.callCount() != 0 {
		t.Error("default: later tier should not run")
	}

	d = NewDispatcher(tiers(succeeding("api", single), richer), nil, Config{PreferRicherThread: true}, testLogger())
	if out := d.Extract(context.Background(), testURL); out.Kind() != domain.OutcomeSelfThread {
		t.Errorf("prefer richer: Kind() = %s, want self_thread", out.Kind())
	}
}

// The queried post by alice and one reply by bob in the crawler payload,
// after the authenticated API rejects the session.
func TestExtract_AuthErrorThenCrawlerWithReply(t *testing.T) {
	markup := `<html><body>
<script type="application/json">{"thread_items":[{"post":{"pk":"1","code":"ABC123","user":{"username":"alice"},"caption":{"text":"what alice said"}}}]}</script>
<script type="application/json">{"thread_items":[{"post":{"pk":"2","code":"BOB999","user":{"username":"bob"},"caption":{"text":"bob replies"}}}]}</script>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, markup)
	}))
	defer srv.Close()

	client := threads.NewClient(threads.Config{WebBaseURL: srv.URL, APIBaseURL: srv.URL}, testLogger())
	api := failing("api", "login required", domain.ErrCredentialsRejected)
	scrape := failing("scrape", "unused", nil)

	d := NewDispatcher([]Tier{api, threads.NewCrawlerTier(client), scrape}, nil, Config{}, testLogger())
	out := d.Extract(context.Background(), testURL)

	p, ok := out.Post()
	if !ok {
		t.Fatalf("Kind() = %s, want single_post (err %v)", out.Kind(), out.Err())
	}
	if p.AuthorHandle != "alice" || p.Text != "what alice said" {
		t.Errorf("post = %+v", p)
	}
	if len(out.Media()) != 0 {
		t.Errorf("Media() = %v, want none", out.Media())
	}
	if scrape.callCount() != 0 {
		t.Error("scrape tier should not run after the crawler succeeded")
	}
}
