package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/summarizer"
	"github.com/iconidentify/threadgrabba/pkg/threads"
	"github.com/iconidentify/threadgrabba/pkg/whisper"
)

// Extractor turns a post URL into an extraction outcome.
type Extractor interface {
	Extract(ctx context.Context, url string) domain.ExtractionOutcome
}

// MediaAcquirer materializes remote media locally.
type MediaAcquirer interface {
	Acquire(ctx context.Context, refs []domain.MediaRef) (*domain.DownloadManifest, bool, error)
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*whisper.Transcript, error)
}

// VisualDescriber renders a text description of acquired images and videos.
type VisualDescriber interface {
	Describe(ctx context.Context, manifest *domain.DownloadManifest) string
}

// Publisher stores a finished note.
type Publisher interface {
	Publish(ctx context.Context, markdown string, mediaPaths []string, title string) (string, error)
}

// RunResult is what a pipeline run produced. On a publish failure the
// summary is still populated so it can be delivered.
type RunResult struct {
	URL          string
	Kind         domain.OutcomeKind
	Summary      *summarizer.Summary
	NotePath     string
	PartialMedia bool
	Transcripts  int
	Duration     time.Duration
}

// Pipeline runs one post URL through every stage, strictly in sequence.
type Pipeline struct {
	extractor   Extractor
	acquirer    MediaAcquirer
	transcriber Transcriber
	visual      VisualDescriber
	summarizer  summarizer.Summarizer
	publisher   Publisher
	logger      *slog.Logger
}

// PipelineDeps groups the pipeline's collaborators. Transcriber and Visual
// may be nil to skip those stages.
type PipelineDeps struct {
	Extractor   Extractor
	Acquirer    MediaAcquirer
	Transcriber Transcriber
	Visual      VisualDescriber
	Summarizer  summarizer.Summarizer
	Publisher   Publisher
}

// NewPipeline creates a pipeline.
func NewPipeline(deps PipelineDeps, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		extractor:   deps.Extractor,
		acquirer:    deps.Acquirer,
		transcriber: deps.Transcriber,
		visual:      deps.Visual,
		summarizer:  deps.Summarizer,
		publisher:   deps.Publisher,
		logger:      logger,
	}
}

// Run executes extract, acquire, transcribe, analyze, summarize and publish.
// Errors are *domain.StageError values. Acquired media is always removed
// before Run returns.
func (p *Pipeline) Run(ctx context.Context, url string) (*RunResult, error) {
	start := time.Now()
	logger := p.logger.With("url", url)
	result := &RunResult{URL: url}

	// Extract
	outcome := p.extractor.Extract(ctx, url)
	if err := outcome.Err(); err != nil {
		return nil, domain.NewStageError(domain.StageDownload, "extract", err)
	}
	result.Kind = outcome.Kind()
	if !hasContent(outcome) {
		return nil, domain.NewStageError(domain.StageDownload, "extract", domain.ErrNoContent)
	}

	// Acquire
	manifest, partial, err := p.acquirer.Acquire(ctx, outcome.Media())
	if err != nil {
		return nil, domain.NewStageError(domain.StageDownload, "acquire", fmt.Errorf("%w: %v", domain.ErrDownloadFailed, err))
	}
	defer func() {
		if err := manifest.Release(); err != nil {
			logger.Warn("failed to release media", "error", err)
		}
	}()
	result.PartialMedia = partial

	// Transcribe
	transcripts, err := p.transcribe(ctx, manifest.AudioPaths, logger)
	if err != nil {
		return nil, err
	}
	result.Transcripts = len(transcripts)

	// Analyze
	var visual string
	if p.visual != nil && !manifest.Empty() {
		visual = p.visual.Describe(ctx, manifest)
	}

	// Summarize
	summary, err := p.summarizer.Summarize(ctx, summarizer.Input{
		Text:              buildSummaryText(outcome, transcripts),
		VisualDescription: visual,
		SourceURL:         url,
	})
	if err != nil {
		return nil, domain.NewStageError(domain.StageSummarize, p.summarizer.Name(), fmt.Errorf("%w: %v", domain.ErrSummarizeFailed, err))
	}
	result.Summary = summary

	// Publish
	path, err := p.publisher.Publish(ctx, noteMarkdown(summary.Markdown, url), noteMedia(manifest), summary.Title)
	if err != nil {
		result.Duration = time.Since(start)
		return result, domain.NewStageError(domain.StagePublish, "publish", fmt.Errorf("%w: %v", domain.ErrPublishFailed, err))
	}
	result.NotePath = path
	result.Duration = time.Since(start)

	logger.Info("pipeline completed",
		"kind", result.Kind,
		"title", summary.Title,
		"partial_media", partial,
		"transcripts", len(transcripts),
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

func (p *Pipeline) transcribe(ctx context.Context, audioPaths []string, logger *slog.Logger) ([]*whisper.Transcript, error) {
	if p.transcriber == nil || len(audioPaths) == 0 {
		return nil, nil
	}

	var out []*whisper.Transcript
	for _, path := range audioPaths {
		t, err := p.transcriber.Transcribe(ctx, path)
		if errors.Is(err, whisper.ErrNoSpeech) {
			logger.Info("no speech in audio track", "path", path)
			continue
		}
		if err != nil {
			return nil, domain.NewStageError(domain.StageTranscribe, "transcribe", fmt.Errorf("%w: %v", domain.ErrTranscribeFailed, err))
		}
		out = append(out, t)
	}
	return out, nil
}

func hasContent(o domain.ExtractionOutcome) bool {
	for _, p := range o.Posts() {
		if p.HasContent() {
			return true
		}
	}
	return false
}

func buildSummaryText(o domain.ExtractionOutcome, transcripts []*whisper.Transcript) string {
	var b strings.Builder
	b.WriteString(threads.FormatForSummary(o))
	for i, t := range transcripts {
		fmt.Fprintf(&b, "\n\n[Video transcript %d", i+1)
		if t.Language != "" {
			fmt.Fprintf(&b, " (%s)", t.Language)
		}
		b.WriteString("]\n")
		b.WriteString(t.Text)
	}
	return b.String()
}

// noteMedia lists the files worth keeping with a note; extracted audio is not.
func noteMedia(m *domain.DownloadManifest) []string {
	paths := make([]string, 0, len(m.ImagePaths)+len(m.VideoPaths))
	paths = append(paths, m.ImagePaths...)
	return append(paths, m.VideoPaths...)
}

// noteMarkdown appends the source appendix to a summary.
func noteMarkdown(summary, url string) string {
	return strings.TrimSpace(summary) + "\n\n---\n\n## Appendix\n\n### Source\n\n- [" + url + "](" + url + ")\n"
}
