package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/summarizer"
)

// User-facing notification texts.

// ProcessingMessage is the single progress notification of a run.
func ProcessingMessage(url string) string {
	return "Processing " + url + " ..."
}

// ResultMessage renders a finished run.
func ResultMessage(res *RunResult) string {
	var b strings.Builder
	writeSummary(&b, res.Summary)
	if res.NotePath != "" {
		b.WriteString("\n\nSaved to: " + res.NotePath)
	}
	if res.PartialMedia {
		b.WriteString("\n(Some media could not be downloaded.)")
	}
	return b.String()
}

// PublishFailedMessage delivers a summary whose note could not be saved.
func PublishFailedMessage(res *RunResult, err error, willRetry bool) string {
	var b strings.Builder
	writeSummary(&b, res.Summary)
	b.WriteString("\n\nPublishing failed: " + rootMessage(err))
	if willRetry {
		b.WriteString("\nThe note will be published again automatically.")
	}
	return b.String()
}

// FailureMessage renders the one notification sent when a fresh run fails.
// Terminal kinds say the content is unavailable; everything else announces
// the automatic retry.
func FailureMessage(url string, err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedURL):
		return "Not a supported post link: " + url
	case errors.Is(err, domain.ErrNotFound):
		return "Content unavailable: the post was not found or has been deleted.\n" + url
	case errors.Is(err, domain.ErrPrivateOrAuthRequired):
		return "Content unavailable: the post is private or requires login.\n" + url
	case errors.Is(err, domain.ErrRateLimited):
		return "Rate limited by the platform, try again later. The link has been queued for automatic retry.\n" + url
	default:
		return fmt.Sprintf("Processing failed at the %s stage: %s\nIt will be retried automatically.\n%s",
			domain.StageOf(err), rootMessage(err), url)
	}
}

// AbandonedMessage is the terminal notification after the retry budget is spent.
func AbandonedMessage(task *domain.FailedTask, maxRetries int) string {
	return fmt.Sprintf("Gave up after %d retries.\nURL: %s\nLast error: %s\nPlease resubmit manually.",
		maxRetries, task.SourceURL, task.Message)
}

func writeSummary(b *strings.Builder, s *summarizer.Summary) {
	if s == nil {
		return
	}
	if s.Title != "" {
		b.WriteString(s.Title + "\n\n")
	}
	b.WriteString(s.ShortSummary)
	for _, bullet := range s.Bullets {
		b.WriteString("\n• " + bullet)
	}
}

// rootMessage drops the stage prefix from a StageError.
func rootMessage(err error) string {
	var se *domain.StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}
