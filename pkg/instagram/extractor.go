// Package instagram resolves Instagram reel and post links into domain posts.
// The yt-dlp binary is tried first; the page's Open Graph tags are the fallback.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

const (
	TierYtDlp = "ytdlp"
	TierPage  = "og-page"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	maxBodyBytes     = 8 << 20
)

// Config holds extractor settings.
type Config struct {
	WebBaseURL string
	YtDlpPath  string
	UserAgent  string
	Timeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.WebBaseURL == "" {
		c.WebBaseURL = CanonicalBaseURL
	}
	if c.YtDlpPath == "" {
		c.YtDlpPath = "yt-dlp"
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	c.WebBaseURL = strings.TrimRight(c.WebBaseURL, "/")
}

// runFunc runs a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor turns an Instagram link into a single post.
type Extractor struct {
	cfg        Config
	ytdlp      string
	run        runFunc
	httpClient *http.Client
	logger     *slog.Logger
}

// NewExtractor creates an extractor. yt-dlp is optional; without it only the
// page tier runs.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	cfg.applyDefaults()
	e := &Extractor{
		cfg:        cfg,
		run:        runCommand,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	if path, err := exec.LookPath(cfg.YtDlpPath); err == nil {
		e.ytdlp = path
	} else {
		logger.Warn("yt-dlp not found, instagram links use page metadata only", "error", err)
	}
	return e
}

// Extract resolves url. A not-found answer from yt-dlp ends the attempt.
func (e *Extractor) Extract(ctx context.Context, url string) domain.ExtractionOutcome {
	ref, err := ParseURL(url)
	if err != nil {
		return domain.FailureOutcome(TierYtDlp, err.Error(), domain.ErrUnsupportedURL)
	}
	logger := e.logger.With("url", url, "code", ref.Code)

	var reasons []string
	if e.ytdlp != "" {
		out := e.fromYtDlp(ctx, ref)
		if out.OK() {
			logger.Info("extraction tier succeeded", "tier", TierYtDlp, "media", len(out.Media()))
			return out
		}
		f, _ := out.Failure()
		logger.Warn("extraction tier failed", "tier", TierYtDlp, "reason", f.Reason)
		if errors.Is(f.Kind, domain.ErrNotFound) || errors.Is(f.Kind, domain.ErrPrivateOrAuthRequired) {
			return out
		}
		reasons = append(reasons, f.Error())
	}

	out := e.fromPage(ctx, ref)
	if out.OK() {
		logger.Info("extraction tier succeeded", "tier", TierPage, "media", len(out.Media()))
		return out
	}
	f, _ := out.Failure()
	logger.Warn("extraction tier failed", "tier", TierPage, "reason", f.Reason)
	reasons = append(reasons, f.Error())
	return domain.FailureOutcome("instagram", strings.Join(reasons, "; "), f.Kind)
}

// ytdlpInfo is the subset of `yt-dlp -J` output in use.
type ytdlpInfo struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Uploader     string        `json:"uploader"`
	UploaderID   string        `json:"uploader_id"`
	Channel      string        `json:"channel"`
	Timestamp    int64         `json:"timestamp"`
	LikeCount    int           `json:"like_count"`
	CommentCount int           `json:"comment_count"`
	URL          string        `json:"url"`
	Thumbnail    string        `json:"thumbnail"`
	Formats      []ytdlpFormat `json:"formats"`
	Entries      []ytdlpInfo   `json:"entries"`
}

type ytdlpFormat struct {
	URL    string `json:"url"`
	VCodec string `json:"vcodec"`
	ACodec string `json:"acodec"`
	Height int    `json:"height"`
}

func (e *Extractor) fromYtDlp(ctx context.Context, ref Ref) domain.ExtractionOutcome {
	out, err := e.run(ctx, e.ytdlp, "-J", "--no-warnings", "--no-progress", ref.CanonicalURL(e.cfg.WebBaseURL))
	if err != nil {
		return domain.FailureOutcome(TierYtDlp, err.Error(), classifyYtDlp(err.Error()))
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return domain.FailureOutcome(TierYtDlp, fmt.Sprintf("decode metadata: %v", err), domain.ErrExtractionExhausted)
	}

	post := domain.Post{
		ID:           ref.Code,
		Code:         ref.Code,
		AuthorHandle: firstNonEmpty(info.Channel, info.UploaderID, info.Uploader, "unknown"),
		Text:         firstNonEmpty(info.Description, info.Title),
		LikeCount:    info.LikeCount,
		ReplyCount:   info.CommentCount,
	}
	if info.Timestamp > 0 {
		ts := time.Unix(info.Timestamp, 0).UTC()
		post.Timestamp = &ts
	}

	entries := info.Entries
	if len(entries) == 0 {
		entries = []ytdlpInfo{info}
	}
	for _, entry := range entries {
		if u := bestVideoURL(entry); u != "" {
			post.Media = append(post.Media, domain.MediaRef{URL: u, Kind: domain.MediaKindVideo})
		} else if entry.Thumbnail != "" && ref.Kind == KindPost {
			post.Media = append(post.Media, domain.MediaRef{URL: entry.Thumbnail, Kind: domain.MediaKindImage})
		}
	}

	if !post.HasContent() {
		return domain.FailureOutcome(TierYtDlp, "metadata carried no text or media", domain.ErrExtractionExhausted)
	}
	return domain.SinglePostOutcome(post)
}

// bestVideoURL prefers the tallest format carrying both audio and video, so
// the audio track survives for transcription.
func bestVideoURL(info ytdlpInfo) string {
	var best ytdlpFormat
	for _, f := range info.Formats {
		if f.URL == "" || f.VCodec == "none" || f.ACodec == "none" || f.VCodec == "" {
			continue
		}
		if f.Height >= best.Height {
			best = f
		}
	}
	if best.URL != "" {
		return best.URL
	}
	if len(info.Formats) == 0 {
		return info.URL
	}
	return ""
}

func classifyYtDlp(stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "private"), strings.Contains(lower, "login required"):
		return domain.ErrPrivateOrAuthRequired
	case strings.Contains(lower, "not available"), strings.Contains(lower, "404"):
		return domain.ErrNotFound
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate-limit"), strings.Contains(lower, "rate limit"):
		return domain.ErrRateLimited
	default:
		return domain.ErrExtractionExhausted
	}
}

func (e *Extractor) fromPage(ctx context.Context, ref Ref) domain.ExtractionOutcome {
	pageURL := ref.CanonicalURL(e.cfg.WebBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.FailureOutcome(TierPage, err.Error(), domain.ErrExtractionExhausted)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return domain.FailureOutcome(TierPage, fmt.Sprintf("send request: %v", err), domain.ErrExtractionExhausted)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return domain.FailureOutcome(TierPage, fmt.Sprintf("page status %d", resp.StatusCode), domain.ErrNotFound)
	case http.StatusTooManyRequests:
		return domain.FailureOutcome(TierPage, "page status 429", domain.ErrRateLimited)
	default:
		return domain.FailureOutcome(TierPage, fmt.Sprintf("page status %d", resp.StatusCode), domain.ErrExtractionExhausted)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.FailureOutcome(TierPage, fmt.Sprintf("parse page: %v", err), domain.ErrExtractionExhausted)
	}
	if strings.Contains(resp.Request.URL.Path, "/accounts/login") {
		return domain.FailureOutcome(TierPage, "page redirected to a login wall", domain.ErrPrivateOrAuthRequired)
	}

	post := PagePost(ref, doc)
	if !post.HasContent() {
		return domain.FailureOutcome(TierPage, "no og metadata found", domain.ErrExtractionExhausted)
	}
	return domain.SinglePostOutcome(post)
}

// PagePost reads a post out of a page's Open Graph tags.
func PagePost(ref Ref, doc *goquery.Document) domain.Post {
	meta := func(property string) string {
		return strings.TrimSpace(doc.Find(`meta[property="` + property + `"]`).First().AttrOr("content", ""))
	}

	post := domain.Post{
		ID:           ref.Code,
		Code:         ref.Code,
		AuthorHandle: "unknown",
		Text:         firstNonEmpty(meta("og:description"), meta("og:title")),
	}
	if handle := handleFromTitle(meta("og:title")); handle != "" {
		post.AuthorHandle = handle
	}
	if u := firstNonEmpty(meta("og:video:secure_url"), meta("og:video")); u != "" {
		post.Media = append(post.Media, domain.MediaRef{URL: u, Kind: domain.MediaKindVideo})
	} else if u := meta("og:image"); u != "" && ref.Kind == KindPost {
		post.Media = append(post.Media, domain.MediaRef{URL: u, Kind: domain.MediaKindImage})
	}
	return post
}

// handleFromTitle pulls "alice" out of an og:title like
// "Alice (@alice) on Instagram: ...".
func handleFromTitle(title string) string {
	start := strings.Index(title, "(@")
	if start < 0 {
		return ""
	}
	rest := title[start+2:]
	end := strings.IndexByte(rest, ')')
	if end <= 0 {
		return ""
	}
	return rest[:end]
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
