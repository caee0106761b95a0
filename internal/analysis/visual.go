package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/pkg/grok"
)

// Unavailable stands in for an item whose analysis failed.
const Unavailable = "[analysis unavailable]"

// FramePrompt is sent with every sampled video frame.
const FramePrompt = `Describe what this video frame shows.

If the frame contains lists, tables, tool or software names, steps or figures,
reproduce them exactly. Keep it to a short paragraph.`

// ImageAnalyzer describes a single image file.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, path, prompt string) (string, error)
}

// FrameExtractor samples still frames from a video.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath, outputDir string) ([]string, float64, error)
}

// VisualAnalyzer builds the visual description of a post's media.
type VisualAnalyzer struct {
	images  ImageAnalyzer
	frames  FrameExtractor
	limit   int
	tempDir string
	logger  *slog.Logger
}

// NewVisualAnalyzer creates a visual analyzer. frames may be nil, in which
// case videos are not described.
func NewVisualAnalyzer(images ImageAnalyzer, frames FrameExtractor, limit int, tempDir string, logger *slog.Logger) *VisualAnalyzer {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &VisualAnalyzer{
		images:  images,
		frames:  frames,
		limit:   limit,
		tempDir: tempDir,
		logger:  logger,
	}
}

// Describe analyzes every image and a set of frames from every video in the
// manifest. The result is empty when the manifest has no visual media.
// Failures of individual items are rendered inline and never returned.
func (v *VisualAnalyzer) Describe(ctx context.Context, manifest *domain.DownloadManifest) string {
	if manifest == nil {
		return ""
	}

	var sections []string

	if n := len(manifest.ImagePaths); n > 0 {
		results := AnalyzeAll(ctx, manifest.ImagePaths, func(ctx context.Context, i int, path string) (string, error) {
			return v.analyze(ctx, path, "")
		}, v.limit)

		for i, r := range results {
			sections = append(sections, fmt.Sprintf("Image %d/%d:\n%s", i+1, n, v.render(r, manifest.ImagePaths[i])))
		}
	}

	if v.frames != nil {
		for i, video := range manifest.VideoPaths {
			if ctx.Err() != nil {
				break
			}
			section, ok := v.describeVideo(ctx, video)
			if !ok {
				continue
			}
			sections = append(sections, fmt.Sprintf("Video %d/%d:\n%s", i+1, len(manifest.VideoPaths), section))
		}
	}

	return strings.Join(sections, "\n\n")
}

func (v *VisualAnalyzer) describeVideo(ctx context.Context, videoPath string) (string, bool) {
	name := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	dir := filepath.Join(v.tempDir, "frames_"+name)
	defer os.RemoveAll(dir)

	frames, duration, err := v.frames.ExtractFrames(ctx, videoPath, dir)
	if err != nil {
		v.logger.Warn("frame extraction failed", "video", videoPath, "error", err)
		return "", false
	}

	v.logger.Info("analyzing video frames", "video", videoPath, "frames", len(frames), "duration", duration)

	results := AnalyzeAll(ctx, frames, func(ctx context.Context, i int, path string) (string, error) {
		return v.analyze(ctx, path, FramePrompt)
	}, v.limit)

	lines := make([]string, len(results))
	for i, r := range results {
		ts := float64(i) / float64(len(frames)) * duration
		lines[i] = fmt.Sprintf("[%.0fs] %s", ts, v.render(r, frames[i]))
	}
	return strings.Join(lines, "\n"), true
}

func (v *VisualAnalyzer) analyze(ctx context.Context, path, prompt string) (string, error) {
	desc, err := v.images.AnalyzeImage(ctx, path, prompt)
	if err != nil {
		return "", err
	}
	desc = grok.StripThinking(desc)
	if desc == "" {
		return "", fmt.Errorf("empty description")
	}
	return desc, nil
}

func (v *VisualAnalyzer) render(r Result[string], path string) string {
	if r.Placeholder {
		v.logger.Warn("image analysis failed", "path", path, "error", r.Err)
		return Unavailable
	}
	return r.Value
}
