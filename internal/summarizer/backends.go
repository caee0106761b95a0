package summarizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/iconidentify/threadgrabba/pkg/grok"
)

// ErrCLIUnavailable is returned when the CLI backend's binary cannot be found.
var ErrCLIUnavailable = errors.New("summarizer CLI not found")

// openAICompleter calls the chat completions endpoint through openai-go.
type openAICompleter struct {
	client *openai.Client
	model  string
}

func newOpenAICompleter(apiKey, baseURL, model string) *openAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *openAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		}),
		Model:       openai.F(openai.ChatModel(c.model)),
		Temperature: openai.Float(0.5),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return grok.CleanContent(completion.Choices[0].Message.Content), nil
}

// geminiCompleter calls GenerateContent through the genai SDK.
type geminiCompleter struct {
	model  string
	client *genai.Client
}

func newGeminiCompleter(ctx context.Context, apiKey, model string) (*geminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiCompleter{model: model, client: client}, nil
}

func (c *geminiCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(joinPrompt(system, user)), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return grok.CleanContent(sb.String()), nil
}

// cliCompleter pipes the prompt to a local agent CLI ("claude -p -").
type cliCompleter struct {
	path  string
	model string
}

func newCLICompleter(name, model string) (*cliCompleter, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCLIUnavailable, name)
	}
	return &cliCompleter{path: path, model: model}, nil
}

func (c *cliCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	// Run outside any project so the CLI picks up no workspace context.
	dir, err := os.MkdirTemp("", "summarizer-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := []string{"-p", "-"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(joinPrompt(system, user))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("summarizer CLI timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("summarizer CLI failed: %s", msg)
	}
	return grok.CleanContent(stdout.String()), nil
}

func joinPrompt(system, user string) string {
	if system == "" {
		return user
	}
	return system + "\n\n---\n\n" + user
}
