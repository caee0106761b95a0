package summarizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/threadgrabba/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCompleter returns a canned reply and records the prompts it saw.
type fakeCompleter struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system, f.user = system, user
	return f.reply, f.err
}

// stubSummarizer is a scripted Summarizer.
type stubSummarizer struct {
	name  string
	err   error
	calls int
}

func (s *stubSummarizer) Name() string { return s.name }

func (s *stubSummarizer) Summarize(ctx context.Context, in Input) (*Summary, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Summary{ShortSummary: "from " + s.name}, nil
}

const sampleNote = `## Source
- Link: [original post](https://www.threads.net/@alice/post/ABC)

## Summary
Alice explains how she automates her notes.
She uses two tools.

## Key Points
- Capture everything in one inbox
• Review weekly
1. Archive aggressively
* Tag by project

## Tools
- Obsidian`

func TestParse_MarkdownSections(t *testing.T) {
	s := Parse(sampleNote)

	if s.ShortSummary != "Alice explains how she automates her notes. She uses two tools." {
		t.Errorf("ShortSummary = %q", s.ShortSummary)
	}
	want := []string{"Capture everything in one inbox", "Review weekly", "Archive aggressively", "Tag by project"}
	if len(s.Bullets) != len(want) {
		t.Fatalf("Bullets = %q, want %q", s.Bullets, want)
	}
	for i := range want {
		if s.Bullets[i] != want[i] {
			t.Errorf("Bullets[%d] = %q, want %q", i, s.Bullets[i], want[i])
		}
	}
	if s.Markdown != sampleNote {
		t.Error("Markdown should be the full note")
	}
}

func TestParse_BracketMarkers(t *testing.T) {
	s := Parse("【摘要】\n這是一段摘要內容。\n【重點】\n• 第一個重點\n- 第二個重點")

	if s.ShortSummary != "這是一段摘要內容。" {
		t.Errorf("ShortSummary = %q", s.ShortSummary)
	}
	if len(s.Bullets) != 2 || s.Bullets[0] != "第一個重點" || s.Bullets[1] != "第二個重點" {
		t.Errorf("Bullets = %q", s.Bullets)
	}
}

func TestParse_Fallbacks(t *testing.T) {
	text := "This post has no headings at all. It still says something useful about testing. Short."
	s := Parse(text)

	if s.ShortSummary != text {
		t.Errorf("ShortSummary = %q, want whole text", s.ShortSummary)
	}
	if len(s.Bullets) != 2 {
		t.Fatalf("Bullets = %q, want the two long sentences", s.Bullets)
	}
	if s.Bullets[0] != "This post has no headings at all." {
		t.Errorf("Bullets[0] = %q", s.Bullets[0])
	}
}

func TestParse_FallbackBulletsCapped(t *testing.T) {
	text := strings.Repeat("這是一個足夠長的句子用來測試。", 8)
	if got := len(Parse(text).Bullets); got != maxFallbackBullets {
		t.Errorf("len(Bullets) = %d, want %d", got, maxFallbackBullets)
	}
}

func TestBuildPrompt(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)
	p := BuildPrompt(Input{
		Text:      "[Main post] @alice\nhello",
		SourceURL: "https://www.threads.net/@alice/post/ABC",
	}, now)

	for _, want := range []string{
		"[Main post] @alice\nhello",
		"- Link: https://www.threads.net/@alice/post/ABC",
		"- Title: (untitled)",
		"## Visual content\n(none)",
		"- Processed: 2026-03-04 05:06",
		"## Key Points",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestChatSummarizer_Summarize(t *testing.T) {
	fc := &fakeCompleter{reply: sampleNote}
	s := newChatSummarizer("fake", fc, time.Second, testLogger())

	got, err := s.Summarize(context.Background(), Input{
		Text:              "post text",
		VisualDescription: "Image 1/1:\na chart",
		SourceURL:         "https://www.threads.net/@alice/post/ABC",
		Title:             "Note automation",
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.Title != "Note automation" || len(got.Bullets) != 4 {
		t.Errorf("summary = %+v", got)
	}
	if fc.system != systemPrompt || !strings.Contains(fc.user, "Image 1/1:\na chart") {
		t.Error("prompts not passed through")
	}
}

func TestChatSummarizer_DerivedTitle(t *testing.T) {
	s := newChatSummarizer("fake", &fakeCompleter{reply: "# Weekly review habits\n\n## Summary\nx"}, 0, testLogger())
	got, err := s.Summarize(context.Background(), Input{Text: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Weekly review habits" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestChatSummarizer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		fc    *fakeCompleter
		input Input
		want  error
	}{
		{"empty input", &fakeCompleter{reply: "x"}, Input{Text: "  "}, ErrNothingToSummarize},
		{"backend error", &fakeCompleter{err: errors.New("503")}, Input{Text: "t"}, nil},
		{"empty reply", &fakeCompleter{reply: "   "}, Input{Text: "t"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newChatSummarizer("fake", tt.fc, time.Second, testLogger()).Summarize(context.Background(), tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFallbackSummarizer(t *testing.T) {
	t.Run("primary ok", func(t *testing.T) {
		p, f := &stubSummarizer{name: "p"}, &stubSummarizer{name: "f"}
		s := &fallbackSummarizer{primary: p, fallback: f, logger: testLogger()}
		got, err := s.Summarize(context.Background(), Input{Text: "t"})
		if err != nil || got.ShortSummary != "from p" || f.calls != 0 {
			t.Errorf("got %+v, %v, fallback calls %d", got, err, f.calls)
		}
	})

	t.Run("primary fails", func(t *testing.T) {
		p, f := &stubSummarizer{name: "p", err: errors.New("down")}, &stubSummarizer{name: "f"}
		s := &fallbackSummarizer{primary: p, fallback: f, logger: testLogger()}
		got, err := s.Summarize(context.Background(), Input{Text: "t"})
		if err != nil || got.ShortSummary != "from f" {
			t.Errorf("got %+v, %v", got, err)
		}
		if s.Name() != "p+f" {
			t.Errorf("Name() = %q", s.Name())
		}
	})

	t.Run("both fail", func(t *testing.T) {
		e1, e2 := errors.New("one"), errors.New("two")
		s := &fallbackSummarizer{
			primary:  &stubSummarizer{name: "p", err: e1},
			fallback: &stubSummarizer{name: "f", err: e2},
			logger:   testLogger(),
		}
		_, err := s.Summarize(context.Background(), Input{Text: "t"})
		if !errors.Is(err, e1) || !errors.Is(err, e2) {
			t.Errorf("err = %v, want both causes", err)
		}
	})

	t.Run("nothing to summarize is not retried", func(t *testing.T) {
		f := &stubSummarizer{name: "f"}
		s := &fallbackSummarizer{primary: &stubSummarizer{name: "p", err: ErrNothingToSummarize}, fallback: f, logger: testLogger()}
		if _, err := s.Summarize(context.Background(), Input{}); !errors.Is(err, ErrNothingToSummarize) || f.calls != 0 {
			t.Errorf("err = %v, fallback calls = %d", err, f.calls)
		}
	})
}

func TestNew(t *testing.T) {
	grokCfg := config.GrokConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "grok-3-mini"}
	ctx := context.Background()

	t.Run("grok only", func(t *testing.T) {
		s, err := New(ctx, config.SummarizerConfig{Backend: "grok", Fallback: "grok"}, grokCfg, testLogger())
		if err != nil || s.Name() != "grok" {
			t.Errorf("New() = %v, %v", s, err)
		}
	})

	t.Run("missing cli falls back", func(t *testing.T) {
		s, err := New(ctx, config.SummarizerConfig{Backend: "cli", Fallback: "grok", CLIPath: "definitely-not-a-real-binary"}, grokCfg, testLogger())
		if err != nil || s.Name() != "grok" {
			t.Errorf("New() = %v, %v", s, err)
		}
	})

	t.Run("missing cli without fallback", func(t *testing.T) {
		_, err := New(ctx, config.SummarizerConfig{Backend: "cli", CLIPath: "definitely-not-a-real-binary"}, grokCfg, testLogger())
		if !errors.Is(err, ErrCLIUnavailable) {
			t.Errorf("err = %v, want ErrCLIUnavailable", err)
		}
	})

	t.Run("openai with grok fallback", func(t *testing.T) {
		s, err := New(ctx, config.SummarizerConfig{Backend: "openai", Fallback: "grok", OpenAIKey: "sk", OpenAIModel: "gpt-4o-mini"}, grokCfg, testLogger())
		if err != nil || s.Name() != "openai+grok" {
			t.Errorf("New() = %v, %v", s, err)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := New(ctx, config.SummarizerConfig{Backend: "llama"}, grokCfg, testLogger()); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCLICompleter(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cli")
	body := "#!/bin/sh\n" +
		"input=$(cat)\n" +
		"case \"$input\" in *'hello from stdin'*) ;; *) echo 'prompt missing' >&2; exit 3;; esac\n" +
		"echo '## Summary'\n" +
		"echo \"args: $*\"\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	c, err := newCLICompleter(script, "sonnet")
	if err != nil {
		t.Fatalf("newCLICompleter() error = %v", err)
	}
	out, err := c.Complete(context.Background(), "system", "hello from stdin")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(out, "## Summary") || !strings.Contains(out, "args: -p - --model sonnet") {
		t.Errorf("output = %q", out)
	}

	failing := filepath.Join(dir, "failing-cli")
	os.WriteFile(failing, []byte("#!/bin/sh\necho 'quota exceeded' >&2\nexit 1\n"), 0755)
	c, _ = newCLICompleter(failing, "")
	if _, err := c.Complete(context.Background(), "", "x"); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want stderr in message", err)
	}
}
