package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/threadgrabba/internal/config"
	"github.com/iconidentify/threadgrabba/pkg/grok"
)

// Backend names accepted in configuration.
const (
	BackendGrok   = "grok"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendCLI    = "cli"
)

// New builds the configured summarizer. When a fallback backend is set and
// differs from the primary, a primary failure is retried once on the
// fallback. A CLI primary whose binary is missing is replaced by the fallback.
func New(ctx context.Context, cfg config.SummarizerConfig, grokCfg config.GrokConfig, logger *slog.Logger) (Summarizer, error) {
	primary, err := build(ctx, cfg.Backend, cfg, grokCfg, logger)
	if err != nil && !errors.Is(err, ErrCLIUnavailable) {
		return nil, err
	}
	if err != nil {
		logger.Warn("summarizer CLI unavailable, using fallback", "cli", cfg.CLIPath, "fallback", cfg.Fallback)
	}

	if cfg.Fallback == "" || cfg.Fallback == cfg.Backend {
		if primary == nil {
			return nil, err
		}
		return primary, nil
	}

	fallback, ferr := build(ctx, cfg.Fallback, cfg, grokCfg, logger)
	if ferr != nil {
		if primary == nil {
			return nil, fmt.Errorf("build fallback summarizer: %w", ferr)
		}
		logger.Warn("fallback summarizer unavailable", "backend", cfg.Fallback, "error", ferr)
		return primary, nil
	}
	if primary == nil {
		return fallback, nil
	}
	return &fallbackSummarizer{primary: primary, fallback: fallback, logger: logger}, nil
}

func build(ctx context.Context, backend string, cfg config.SummarizerConfig, grokCfg config.GrokConfig, logger *slog.Logger) (Summarizer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	switch backend {
	case BackendGrok:
		return newChatSummarizer(BackendGrok, grok.NewClient(grokCfg), timeout, logger), nil
	case BackendOpenAI:
		return newChatSummarizer(BackendOpenAI, newOpenAICompleter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), timeout, logger), nil
	case BackendGemini:
		c, err := newGeminiCompleter(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return newChatSummarizer(BackendGemini, c, timeout, logger), nil
	case BackendCLI:
		c, err := newCLICompleter(cfg.CLIPath, cfg.CLIModel)
		if err != nil {
			return nil, err
		}
		return newChatSummarizer(BackendCLI, c, timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown summarizer backend %q", backend)
	}
}

// fallbackSummarizer tries primary, then fallback.
type fallbackSummarizer struct {
	primary  Summarizer
	fallback Summarizer
	logger   *slog.Logger
}

func (f *fallbackSummarizer) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *fallbackSummarizer) Summarize(ctx context.Context, in Input) (*Summary, error) {
	summary, err := f.primary.Summarize(ctx, in)
	if err == nil {
		return summary, nil
	}
	if ctx.Err() != nil || errors.Is(err, ErrNothingToSummarize) {
		return nil, err
	}

	f.logger.Warn("primary summarizer failed, trying fallback",
		"primary", f.primary.Name(),
		"fallback", f.fallback.Name(),
		"error", err,
	)
	summary, ferr := f.fallback.Summarize(ctx, in)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return summary, nil
}
