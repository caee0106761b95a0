// Package whisper talks to an OpenAI-compatible /audio/transcriptions endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxFileSize is the maximum file size for the Whisper API (25MB).
const MaxFileSize = 25 * 1024 * 1024

// ErrNoSpeech is returned when the audio contains no recognizable speech.
var ErrNoSpeech = errors.New("no recognizable speech in audio")

// TranscriptionRequest contains the audio data and options for transcription.
type TranscriptionRequest struct {
	AudioData   io.Reader
	Filename    string
	Model       string // "whisper-1" or "gpt-4o-transcribe" or "gpt-4o-mini-transcribe"
	Language    string // Optional: ISO-639-1 language code (e.g., "en")
	Prompt      string // Optional: context/prompt to guide transcription
	Temperature float64
}

// TranscriptionOptions for convenience methods.
type TranscriptionOptions struct {
	Model       string
	Language    string
	Prompt      string
	Temperature float64
}

// TranscriptionResponse contains the raw transcription result.
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language,omitempty"`
	Duration float64                `json:"duration,omitempty"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
}

// TranscriptionSegment represents a segment of the transcription with timing.
type TranscriptionSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the pipeline-facing transcription result.
type Transcript struct {
	Text     string
	Language string
}

// HTTPClient implements transcription using the OpenAI API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// Config for creating a new Whisper client.
type Config struct {
	APIKey   string
	BaseURL  string        // Optional, defaults to OpenAI API
	Model    string        // Optional, defaults to "whisper-1"
	Language string        // Optional, empty means auto-detect
	Timeout  time.Duration // Optional, defaults to 5 minutes
}

// NewClient creates a new OpenAI Whisper client.
func NewClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &HTTPClient{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		language: cfg.Language,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Transcribe converts the audio file at audioPath to text. Language codes
// are normalized (e.g. "chinese" becomes "zh-TW").
func (c *HTTPClient) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	if !IsSupportedFormat(audioPath) {
		return nil, fmt.Errorf("unsupported audio format: %s", filepath.Ext(audioPath))
	}
	stat, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}
	if stat.Size() > MaxFileSize {
		return nil, fmt.Errorf("audio file too large: %d bytes (max %d)", stat.Size(), MaxFileSize)
	}

	resp, err := c.TranscribeFile(ctx, audioPath, TranscriptionOptions{Language: c.language})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}
	return &Transcript{
		Text:     text,
		Language: NormalizeLanguage(resp.Language),
	}, nil
}

// TranscribeReader sends audio to the Whisper API and returns the transcription.
func (c *HTTPClient) TranscribeReader(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, req.AudioData); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if err := writer.WriteField("model", req.Model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}

	if req.Language != "" {
		if err := writer.WriteField("language", req.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}

	if req.Prompt != "" {
		if err := writer.WriteField("prompt", req.Prompt); err != nil {
			return nil, fmt.Errorf("write prompt field: %w", err)
		}
	}

	if req.Temperature > 0 {
		if err := writer.WriteField("temperature", fmt.Sprintf("%.2f", req.Temperature)); err != nil {
			return nil, fmt.Errorf("write temperature field: %w", err)
		}
	}

	// Verbose JSON reports the detected language
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result TranscriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}

// TranscribeFile transcribes an audio file from disk.
func (c *HTTPClient) TranscribeFile(ctx context.Context, audioPath string, opts TranscriptionOptions) (*TranscriptionResponse, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	return c.TranscribeReader(ctx, TranscriptionRequest{
		AudioData:   file,
		Filename:    filepath.Base(audioPath),
		Model:       opts.Model,
		Language:    opts.Language,
		Prompt:      opts.Prompt,
		Temperature: opts.Temperature,
	})
}

var languageNames = map[string]string{
	"zh":       "zh-TW",
	"chinese":  "zh-TW",
	"en":       "en",
	"english":  "en",
	"ja":       "ja",
	"japanese": "ja",
	"ko":       "ko",
	"korean":   "ko",
}

// NormalizeLanguage maps a detected language name or code to the code used in notes.
func NormalizeLanguage(lang string) string {
	if code, ok := languageNames[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return code
	}
	return lang
}

// SupportedFormats returns the audio formats supported by Whisper.
func SupportedFormats() []string {
	return []string{
		"flac", "m4a", "mp3", "mp4", "mpeg", "mpga", "oga", "ogg", "wav", "webm",
	}
}

// IsSupportedFormat checks if a file format is supported.
func IsSupportedFormat(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
