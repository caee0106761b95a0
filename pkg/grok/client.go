// Package grok is a small client for the xAI chat completions API, used for
// text summaries and image descriptions.
package grok

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/config"
)

// ErrEmptyResponse is returned when the API answers without any content.
var ErrEmptyResponse = errors.New("no response from Grok")

// DefaultImagePrompt asks for a description geared to note-taking: lists,
// tools, steps and figures are called out explicitly.
const DefaultImagePrompt = `Describe the main content of this image.

Pay special attention to:
1. Lists, tables or checklists: reproduce every item.
2. Tools, skills or software names: list each one.
3. Steps or processes: explain them in order.
4. Numbers and statistics: record them exactly.

Answer in plain prose, without markdown headings.`

// HTTPClient implements chat and vision requests against the Grok API.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	visionModel string
	httpClient  *http.Client
}

// NewClient creates a new Grok API client.
func NewClient(cfg config.GrokConfig) *HTTPClient {
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = "grok-2-vision-1212"
	}
	return &HTTPClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		visionModel: visionModel,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// chatRequest is the request body for the Grok chat API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []contentPart for vision
}

// contentPart represents a part of multimodal content (text or image).
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "low", "high", or "auto"
}

// chatResponse is the response from the Grok chat API.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system and user message to the text model and returns
// the cleaned reply.
func (c *HTTPClient) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	return c.chat(ctx, chatRequest{Model: c.model, Messages: messages})
}

// AnalyzeImage describes the image at path using the vision model. An empty
// prompt uses DefaultImagePrompt.
func (c *HTTPClient) AnalyzeImage(ctx context.Context, path, prompt string) (string, error) {
	if prompt == "" {
		prompt = DefaultImagePrompt
	}

	data, mimeType, err := encodeImageToBase64(path)
	if err != nil {
		return "", err
	}

	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{
						Type: "image_url",
						ImageURL: &imageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, data),
							Detail: "high",
						},
					},
				},
			},
		},
	}
	return c.chat(ctx, req)
}

func (c *HTTPClient) chat(ctx context.Context, chatReq chatRequest) (string, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}

	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := CleanContent(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

var (
	thinkBlock    = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)
	thinkTruncate = regexp.MustCompile(`(?s)<think(?:ing)?>.*$`)
)

// StripThinking removes <think>/<thinking> blocks some models emit before
// their answer, including an unterminated trailing block.
func StripThinking(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = thinkTruncate.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CleanContent strips thinking blocks and a surrounding markdown code fence.
func CleanContent(s string) string {
	s = StripThinking(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```markdown")
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// encodeImageToBase64 reads an image file and returns base64 encoded data with MIME type.
func encodeImageToBase64(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read image: %w", err)
	}

	var mimeType string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		mimeType = "image/png"
	case ".gif":
		mimeType = "image/gif"
	case ".webp":
		mimeType = "image/webp"
	default:
		mimeType = "image/jpeg"
	}

	return base64.StdEncoding.EncodeToString(data), mimeType, nil
}
