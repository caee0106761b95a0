package domain

import "errors"

// Domain errors.
var (
	// ErrUnsupportedURL is returned when a URL is not a recognized post link.
	ErrUnsupportedURL = errors.New("not a supported post link")

	// ErrNotFound is returned when the post does not exist or was deleted.
	ErrNotFound = errors.New("post not found")

	// ErrPrivateOrAuthRequired is returned when the post is private or requires login.
	ErrPrivateOrAuthRequired = errors.New("post is private or requires login")

	// ErrRateLimited is returned when rate limited by external services.
	ErrRateLimited = errors.New("rate limited")

	// ErrExtractionExhausted is returned when every extraction tier failed for a non-terminal reason.
	ErrExtractionExhausted = errors.New("all extraction tiers failed")

	// ErrDownloadFailed is returned when media could not be acquired.
	ErrDownloadFailed = errors.New("media download failed")

	// ErrTranscribeFailed is returned when audio transcription fails.
	ErrTranscribeFailed = errors.New("transcription failed")

	// ErrSummarizeFailed is returned when summary generation fails.
	ErrSummarizeFailed = errors.New("summary generation failed")

	// ErrPublishFailed is returned when the note could not be published.
	ErrPublishFailed = errors.New("publish failed")

	// ErrNoContent is returned when a post has neither text nor media.
	ErrNoContent = errors.New("post has no text or media")

	// ErrCredentialsRejected is returned when stored session credentials are missing or refused.
	ErrCredentialsRejected = errors.New("session credentials rejected")

	// ErrTaskNotFound is returned when a failed task cannot be found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTerminal is returned when transitioning a task that already reached a terminal status.
	ErrTaskTerminal = errors.New("task already in terminal status")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// IsTerminal reports whether err means retrying cannot help.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPrivateOrAuthRequired) ||
		errors.Is(err, ErrUnsupportedURL)
}

// StageError wraps an error with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	if e.Op != "" {
		return string(e.Stage) + " [" + e.Op + "]: " + e.Err.Error()
	}
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage Stage, op string, err error) *StageError {
	return &StageError{
		Stage: stage,
		Op:    op,
		Err:   err,
	}
}

// StageOf returns the stage recorded in err, defaulting to StageDownload for
// failures raised before any media was touched.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageDownload
}
