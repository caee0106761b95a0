// Package ffmpeg wraps the ffmpeg and ffprobe binaries for the media pipeline:
// probing videos, pulling their audio track and sampling still frames.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// probeTimeout bounds a single ffprobe invocation.
	probeTimeout = 10 * time.Second
	// extractTimeout bounds a single ffmpeg invocation.
	extractTimeout = 60 * time.Second
	// defaultDuration is assumed when the container does not report one.
	defaultDuration = 30.0
)

// ErrNoFrames is returned when ffmpeg ran but produced no images.
var ErrNoFrames = errors.New("no frames extracted")

// VideoProcessor handles video analysis using ffmpeg.
type VideoProcessor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewVideoProcessor creates a new video processor.
// It will attempt to find ffmpeg and ffprobe in PATH.
func NewVideoProcessor() (*VideoProcessor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &VideoProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

// VideoInfo contains metadata about a video file.
type VideoInfo struct {
	Duration   float64 // Duration in seconds
	Width      int
	Height     int
	HasAudio   bool
	AudioCodec string
	VideoCodec string
	FileSize   int64
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// GetVideoInfo extracts metadata from a video file.
func (p *VideoProcessor) GetVideoInfo(ctx context.Context, videoPath string) (*VideoInfo, error) {
	stat, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("stat video: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return nil, err
	}
	info.FileSize = stat.Size()
	return info, nil
}

func parseProbeOutput(output []byte) (*VideoInfo, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if parsed.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
			if info.Width == 0 {
				info.Width = s.Width
			}
			if info.Height == 0 {
				info.Height = s.Height
			}
		}
	}
	return info, nil
}

// HasAudioTrack reports whether the file carries at least one audio stream.
// The error is non-nil only when ffprobe itself could not run; callers decide
// what to assume in that case.
func (p *VideoProcessor) HasAudioTrack(ctx context.Context, videoPath string) (bool, error) {
	info, err := p.GetVideoInfo(ctx, videoPath)
	if err != nil {
		return false, fmt.Errorf("probe audio: %w", err)
	}
	return info.HasAudio, nil
}

// ExtractAudio writes the audio track of videoPath to outputPath as mp3.
func (p *VideoProcessor) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		"-loglevel", "error",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg audio extraction: %w: %s", err, strings.TrimSpace(string(out)))
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("audio output missing: %w", err)
	}
	if stat.Size() == 0 {
		os.Remove(outputPath)
		return fmt.Errorf("audio output is empty")
	}
	return nil
}

// FrameCount returns how many frames to sample from a video of the given
// duration in seconds: 8 up to 30s, 9 up to 60s, 10 beyond.
func FrameCount(duration float64) int {
	switch {
	case duration <= 30:
		return 8
	case duration <= 60:
		return 9
	default:
		return 10
	}
}

// Duration returns the container duration in seconds, falling back to 30s
// when ffprobe cannot tell.
func (p *VideoProcessor) Duration(ctx context.Context, videoPath string) float64 {
	info, err := p.GetVideoInfo(ctx, videoPath)
	if err != nil || info.Duration <= 0 {
		return defaultDuration
	}
	return info.Duration
}

// ExtractFrames samples frames evenly across the video into outputDir and
// returns the image paths in playback order along with the video duration.
func (p *VideoProcessor) ExtractFrames(ctx context.Context, videoPath, outputDir string) ([]string, float64, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, 0, fmt.Errorf("create frames dir: %w", err)
	}

	duration := p.Duration(ctx, videoPath)
	count := FrameCount(duration)
	fps := float64(count) / duration

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	pattern := filepath.Join(outputDir, "frame_%03d.jpg")
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%.4f", fps),
		"-frames:v", strconv.Itoa(count),
		"-q:v", "2",
		"-loglevel", "error",
		pattern,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, duration, fmt.Errorf("ffmpeg frame extraction: %w: %s", err, strings.TrimSpace(string(out)))
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, "frame_*.jpg"))
	if err != nil {
		return nil, duration, fmt.Errorf("list frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, duration, ErrNoFrames
	}
	sort.Strings(frames)
	return frames, duration, nil
}

// Version returns the first line of `ffmpeg -version`.
func (p *VideoProcessor) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}
