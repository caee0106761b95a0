// Package threads talks to the Threads web and data endpoints and turns what
// they return into domain posts.
package threads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

const (
	defaultAPIBaseURL       = "https://i.instagram.com"
	defaultAppID            = "238260118697367"
	defaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultCrawlerUserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

	// maxBodyBytes caps how much of a page or API response is read.
	maxBodyBytes = 16 << 20
)

// Config holds client configuration.
type Config struct {
	APIBaseURL        string
	WebBaseURL        string
	AppID             string
	UserAgent         string
	CrawlerUserAgent  string
	CookiesPath       string
	CookiesPassphrase string
	Timeout           time.Duration
	MaxReplies        int
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebBaseURL == "" {
		c.WebBaseURL = CanonicalBaseURL
	}
	if c.AppID == "" {
		c.AppID = defaultAppID
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.CrawlerUserAgent == "" {
		c.CrawlerUserAgent = defaultCrawlerUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxReplies <= 0 {
		c.MaxReplies = 20
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	c.WebBaseURL = strings.TrimRight(c.WebBaseURL, "/")
}

// Client is the shared HTTP plumbing used by the extraction tiers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sessions   *sessionStore
	logger     *slog.Logger
}

// NewClient creates a new Threads client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		sessions: newSessionStore(cfg.CookiesPath, cfg.CookiesPassphrase),
		logger:   logger,
	}
}

// Session returns the stored browser session, or nil when none is configured.
func (c *Client) Session() (*Session, error) {
	return c.sessions.Get()
}

// response is a fetched body with its final status and URL.
type response struct {
	Status   int
	Body     []byte
	FinalURL string
}

func (c *Client) get(ctx context.Context, url string, header http.Header, session *Session) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	session.Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &response{
		Status:   resp.StatusCode,
		Body:     body,
		FinalURL: resp.Request.URL.String(),
	}, nil
}

// statusError maps an HTTP status to the extraction error taxonomy.
// credentialed reports whether the request carried a session, in which case
// 401/403 means the session was rejected rather than that the post is private.
func statusError(status int, credentialed bool) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return domain.ErrNotFound
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if credentialed {
			return domain.ErrCredentialsRejected
		}
		return domain.ErrPrivateOrAuthRequired
	case status >= 200 && status < 300:
		return nil
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}

// failure builds a tier failure outcome, keeping the classified kind when err
// carries one of the extraction sentinels.
func failure(tier string, err error) domain.ExtractionOutcome {
	return domain.FailureOutcome(tier, err.Error(), classify(err))
}

func classify(err error) error {
	for _, kind := range []error{
		domain.ErrNotFound,
		domain.ErrPrivateOrAuthRequired,
		domain.ErrRateLimited,
		domain.ErrCredentialsRejected,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return domain.ErrExtractionExhausted
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
