// Package summarizer turns extracted post content into a markdown note using
// one of several model backends.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrNothingToSummarize is returned when the input carries no text.
var ErrNothingToSummarize = errors.New("nothing to summarize")

// Input is everything a backend gets to see about a post.
type Input struct {
	Text              string // formatted post or thread, plus transcript
	VisualDescription string
	SourceURL         string
	Title             string
}

// Summary is a generated note.
type Summary struct {
	Markdown     string
	ShortSummary string
	Bullets      []string
	Title        string
}

// Summarizer produces a summary note.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, in Input) (*Summary, error)
}

// Completer is a single-turn text model call.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const systemPrompt = `You are a note-taking assistant. You receive the content of a social media post and produce a Markdown note.

Rules:
1. Output Markdown only, with no preamble and no questions.
2. Separate sections with ## level-two headings.
3. Use - for list items.
4. Stay factual and neutral. Keep steps in their original order.
5. Only list tools or technologies that actually appear in the content.`

const userPromptTemplate = `Write a Markdown note for the post below.

## Post information
- Link: %s
- Title: %s
- Processed: %s

## Post content
%s

## Visual content
%s

Use exactly this structure:

## Source
- Link: [original post](%s)
- Processed: %s

## Summary
(two or three sentences)

## Key Points
- point one
- point two
- point three

Add "## Tools" or "## Steps" sections only when the content calls for them.`

// BuildPrompt renders the user prompt for in at the given time.
func BuildPrompt(in Input, now time.Time) string {
	processed := now.Format("2006-01-02 15:04")
	title := in.Title
	if title == "" {
		title = "(untitled)"
	}
	visual := strings.TrimSpace(in.VisualDescription)
	if visual == "" {
		visual = "(none)"
	}
	return fmt.Sprintf(userPromptTemplate,
		in.SourceURL, title, processed,
		strings.TrimSpace(in.Text),
		visual,
		in.SourceURL, processed,
	)
}

// chatSummarizer drives any Completer with the note prompt.
type chatSummarizer struct {
	name      string
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger
}

func newChatSummarizer(name string, c Completer, timeout time.Duration, logger *slog.Logger) *chatSummarizer {
	return &chatSummarizer{
		name:      name,
		completer: c,
		timeout:   timeout,
		logger:    logger.With("backend", name),
	}
}

func (s *chatSummarizer) Name() string {
	return s.name
}

func (s *chatSummarizer) Summarize(ctx context.Context, in Input) (*Summary, error) {
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.VisualDescription) == "" {
		return nil, ErrNothingToSummarize
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := s.completer.Complete(ctx, systemPrompt, BuildPrompt(in, start))
	if err != nil {
		return nil, fmt.Errorf("%s summarize: %w", s.name, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%s summarize: empty response", s.name)
	}

	s.logger.Info("summary generated", "duration", time.Since(start).Round(time.Millisecond), "chars", len(content))

	summary := Parse(content)
	summary.Title = in.Title
	if summary.Title == "" {
		summary.Title = deriveTitle(summary)
	}
	return summary, nil
}
