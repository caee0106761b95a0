// Package media materializes a post's remote media on local disk for the
// transcription and analysis stages.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iconidentify/threadgrabba/internal/config"
	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/downloader"
)

// AudioProcessor probes videos and pulls their audio track.
type AudioProcessor interface {
	HasAudioTrack(ctx context.Context, videoPath string) (bool, error)
	ExtractAudio(ctx context.Context, videoPath, outputPath string) error
}

// Config controls acquisition.
type Config struct {
	TempDir      string
	ImageTimeout time.Duration
	VideoTimeout time.Duration
	Retry        downloader.RetryConfig
}

// ConfigFrom builds an acquisition config from the application config.
// Unset retry fields keep downloader.DefaultRetryConfig values.
func ConfigFrom(storage config.StorageConfig, dl config.DownloadConfig) Config {
	retry := downloader.DefaultRetryConfig()
	if dl.MaxAttempts > 0 {
		retry.MaxAttempts = dl.MaxAttempts
	}
	if dl.RetryDelay > 0 {
		retry.InitialDelay = dl.RetryDelay
	}
	if dl.MaxRetryDelay > 0 {
		retry.MaxDelay = dl.MaxRetryDelay
	}
	return Config{
		TempDir:      storage.TempPath,
		ImageTimeout: dl.ImageTimeout,
		VideoTimeout: dl.VideoTimeout,
		Retry:        retry,
	}
}

// Acquirer downloads media refs into the temp directory.
type Acquirer struct {
	dl       downloader.Downloader
	audio    AudioProcessor
	cfg      Config
	activity *ActivityLog
	logger   *slog.Logger
}

// NewAcquirer creates an acquirer. audio may be nil when ffmpeg is not
// installed; videos are then kept without an audio track.
func NewAcquirer(dl downloader.Downloader, audio AudioProcessor, cfg Config, activity *ActivityLog, logger *slog.Logger) *Acquirer {
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 30 * time.Second
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 60 * time.Second
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Acquirer{
		dl:       dl,
		audio:    audio,
		cfg:      cfg,
		activity: activity,
		logger:   logger,
	}
}

// Acquire downloads every ref. Refs that still fail after retrying are
// dropped and reported through partial. The error is non-nil only when ctx
// is done or the temp directory is unusable; in both cases nothing is left
// on disk and the manifest is nil.
func (a *Acquirer) Acquire(ctx context.Context, refs []domain.MediaRef) (*domain.DownloadManifest, bool, error) {
	if err := os.MkdirAll(a.cfg.TempDir, 0755); err != nil {
		return nil, false, fmt.Errorf("create temp dir: %w", err)
	}

	manifest := &domain.DownloadManifest{}
	event := ActivityEvent{Requested: len(refs)}
	partial := false

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, false, a.abort(manifest, event, err)
		}

		id := shortID()
		logger := a.logger.With("url", ref.URL, "kind", ref.Kind)

		switch ref.Kind {
		case domain.MediaKindImage:
			path := filepath.Join(a.cfg.TempDir, "threads_img_"+id+".jpg")
			n, err := a.fetch(ctx, ref.URL, path, a.cfg.ImageTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return nil, false, a.abort(manifest, event, ctx.Err())
				}
				logger.Warn("image download failed", "error", err)
				partial = true
				event.FailedURLs = append(event.FailedURLs, ref.URL)
				continue
			}
			manifest.ImagePaths = append(manifest.ImagePaths, path)
			event.TotalBytes += n

		case domain.MediaKindVideo:
			path := filepath.Join(a.cfg.TempDir, "threads_vid_"+id+".mp4")
			n, err := a.fetch(ctx, ref.URL, path, a.cfg.VideoTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return nil, false, a.abort(manifest, event, ctx.Err())
				}
				logger.Warn("video download failed", "error", err)
				partial = true
				event.FailedURLs = append(event.FailedURLs, ref.URL)
				continue
			}
			manifest.VideoPaths = append(manifest.VideoPaths, path)
			event.TotalBytes += n

			audioPath := filepath.Join(a.cfg.TempDir, "threads_aud_"+id+".mp3")
			extracted, err := a.extractAudio(ctx, path, audioPath, logger)
			if err != nil {
				if ctx.Err() != nil {
					return nil, false, a.abort(manifest, event, ctx.Err())
				}
				logger.Warn("audio extraction failed", "error", err)
				partial = true
				continue
			}
			if extracted {
				manifest.AudioPaths = append(manifest.AudioPaths, audioPath)
				if stat, err := os.Stat(audioPath); err == nil {
					event.TotalBytes += stat.Size()
				}
			}

		default:
			logger.Warn("skipping media with unknown kind")
			partial = true
			event.FailedURLs = append(event.FailedURLs, ref.URL)
		}
	}

	event.Images = len(manifest.ImagePaths)
	event.Videos = len(manifest.VideoPaths)
	event.AudioTracks = len(manifest.AudioPaths)
	event.Partial = partial
	a.record(event)

	a.logger.Info("media acquired",
		"images", event.Images,
		"videos", event.Videos,
		"audio", event.AudioTracks,
		"size", humanize.Bytes(uint64(event.TotalBytes)),
		"partial", partial,
	)
	return manifest, partial, nil
}

// fetch downloads url into path with bounded retries, each attempt limited by timeout.
func (a *Acquirer) fetch(ctx context.Context, url, path string, timeout time.Duration) (int64, error) {
	return downloader.RetryWithCheck(ctx, a.cfg.Retry, func() (int64, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return a.dl.SaveToFile(attemptCtx, url, path)
	}, func(err error) bool {
		return ctx.Err() == nil && downloader.IsRetryable(err)
	})
}

// extractAudio reports whether an audio file was written. A silent video is
// not an error. A failed probe is treated as "audio present".
func (a *Acquirer) extractAudio(ctx context.Context, videoPath, audioPath string, logger *slog.Logger) (bool, error) {
	if a.audio == nil {
		logger.Debug("no audio processor configured, skipping audio")
		return false, nil
	}

	hasAudio, err := a.audio.HasAudioTrack(ctx, videoPath)
	if err != nil {
		logger.Warn("audio probe failed, assuming audio present", "error", err)
		hasAudio = true
	}
	if !hasAudio {
		logger.Debug("video has no audio track")
		return false, nil
	}

	if err := a.audio.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		os.Remove(audioPath)
		return false, err
	}
	return true, nil
}

func (a *Acquirer) abort(manifest *domain.DownloadManifest, event ActivityEvent, cause error) error {
	if err := manifest.Release(); err != nil {
		a.logger.Warn("failed to release media", "error", err)
	}
	event.Error = cause.Error()
	a.record(event)
	return cause
}

func (a *Acquirer) record(event ActivityEvent) {
	if err := a.activity.Append(event); err != nil {
		a.logger.Warn("failed to append acquisition log", "error", err)
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
