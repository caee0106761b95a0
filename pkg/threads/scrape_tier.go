package threads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// TierScrape is the name reported by the direct-render tier.
const TierScrape = "scrape"

// minTextLen drops short strings such as labels and button captions.
const minTextLen = 10

var (
	textPattern       = regexp.MustCompile(`"text":"((?:[^"\\]|\\.)*?)"`)
	captionPattern    = regexp.MustCompile(`"caption":\s*\{\s*"text":"((?:[^"\\]|\\.)*)"`)
	usernamePattern   = regexp.MustCompile(`"username":"([^"]+)"`)
	imagePattern      = regexp.MustCompile(`"url":"(https://scontent[^"]+)"`)
	imageSizePattern  = regexp.MustCompile(`_e\d+_`)
	videoURLPattern   = regexp.MustCompile(`"video_url":"([^"]+)"`)
	videoVersionsExpr = regexp.MustCompile(`"video_versions":\[.*?"url":"([^"]+)"`)
	takenAtPattern    = regexp.MustCompile(`"taken_at":(\d+)`)
	likePattern       = regexp.MustCompile(`"like_count":(\d+)`)
	replyPattern      = regexp.MustCompile(`"reply_count":(\d+)|"direct_reply_count":(\d+)`)
)

// ScrapeTier requests the normal page render and applies pattern heuristics
// to the markup. It is the weakest tier and only sees a single post.
type ScrapeTier struct {
	client *Client
}

// NewScrapeTier creates the direct-render tier.
func NewScrapeTier(client *Client) *ScrapeTier {
	return &ScrapeTier{client: client}
}

// Name identifies the tier in failure reasons.
func (t *ScrapeTier) Name() string { return TierScrape }

// Fetch renders the page and scrapes one post out of it.
func (t *ScrapeTier) Fetch(ctx context.Context, ref PostRef) domain.ExtractionOutcome {
	// A session improves what the page shows but is not required.
	session, _ := t.client.Session()
	if !session.IsValid() {
		session = nil
	}

	header := http.Header{}
	header.Set("User-Agent", t.client.cfg.UserAgent)
	header.Set("Accept", "text/html,application/xhtml+xml")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	pageURL := ref.CanonicalURL(t.client.cfg.WebBaseURL)
	resp, err := t.client.get(ctx, pageURL, header, session)
	if err != nil {
		return failure(TierScrape, err)
	}
	if err := statusError(resp.Status, false); err != nil {
		return failure(TierScrape, fmt.Errorf("render status %d: %w", resp.Status, err))
	}

	post := ScrapePost(ref, resp.Body, pageURL)
	if !post.HasContent() {
		if isLoginWall(resp.FinalURL, string(resp.Body)) {
			return domain.FailureOutcome(TierScrape, "page redirected to a login wall", domain.ErrPrivateOrAuthRequired)
		}
		return domain.FailureOutcome(TierScrape, "no text or media found in markup", domain.ErrExtractionExhausted)
	}
	return domain.SinglePostOutcome(post)
}

// ScrapePost pulls what it can out of a rendered page. Text falls back from
// embedded JSON strings to the caption, then the og:description meta tag,
// then the readable body text.
func ScrapePost(ref PostRef, body []byte, pageURL string) domain.Post {
	markup := string(body)

	post := domain.Post{
		ID:           ref.Code,
		Code:         ref.Code,
		AuthorHandle: ref.Handle,
	}
	if post.AuthorHandle == "" {
		if m := usernamePattern.FindStringSubmatch(markup); m != nil {
			post.AuthorHandle = m[1]
		}
	}
	if post.AuthorHandle == "" {
		post.AuthorHandle = "unknown"
	}

	post.Text = longestText(markup)
	if post.Text == "" {
		if m := captionPattern.FindStringSubmatch(markup); m != nil {
			post.Text = decodeJSONString(m[1])
		}
	}
	if post.Text == "" {
		post.Text = metaDescription(body)
	}
	if post.Text == "" {
		post.Text = readableText(body, pageURL)
	}

	post.Media = scrapeMedia(markup)

	if m := takenAtPattern.FindStringSubmatch(markup); m != nil {
		if ts, err := strconv.ParseInt(m[1], 10, 64); err == nil && ts > 0 {
			t := time.Unix(ts, 0).UTC()
			post.Timestamp = &t
		}
	}
	if m := likePattern.FindStringSubmatch(markup); m != nil {
		post.LikeCount = atoiDefault(m[1])
	}
	if m := replyPattern.FindStringSubmatch(markup); m != nil {
		post.ReplyCount = atoiDefault(firstNonEmpty(m[1], m[2]))
	}

	return post
}

// longestText returns the longest distinct embedded text value.
func longestText(markup string) string {
	seen := make(map[string]bool)
	var best string
	for _, m := range textPattern.FindAllStringSubmatch(markup, -1) {
		if len(m[1]) < minTextLen {
			continue
		}
		decoded := decodeJSONString(m[1])
		key := truncate(decoded, 50)
		if seen[key] {
			continue
		}
		seen[key] = true
		if len([]rune(decoded)) > len([]rune(best)) {
			best = decoded
		}
	}
	return best
}

func scrapeMedia(markup string) []domain.MediaRef {
	var refs []domain.MediaRef
	seen := make(map[string]bool)

	for _, m := range imagePattern.FindAllStringSubmatch(markup, -1) {
		u := unescapeURL(m[1])
		// Profile pictures.
		if strings.Contains(u, "s150x150") || strings.Contains(u, "t51.2885") {
			continue
		}
		base := imageSizePattern.ReplaceAllString(strings.SplitN(u, "?", 2)[0], "_")
		if seen[base] {
			continue
		}
		seen[base] = true
		refs = append(refs, domain.MediaRef{URL: u, Kind: domain.MediaKindImage})
	}

	for _, pattern := range []*regexp.Regexp{videoURLPattern, videoVersionsExpr} {
		for _, m := range pattern.FindAllStringSubmatch(markup, -1) {
			u := unescapeURL(m[1])
			if seen[u] {
				continue
			}
			seen[u] = true
			refs = append(refs, domain.MediaRef{URL: u, Kind: domain.MediaKindVideo})
		}
	}

	return refs
}

func metaDescription(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	for _, sel := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if content := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); content != "" {
			return content
		}
	}
	return ""
}

func readableText(body []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) < minTextLen {
		return ""
	}
	return text
}

// decodeJSONString decodes the escapes of a JSON string body, returning raw
// unchanged when it does not decode.
func decodeJSONString(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &s); err != nil {
		return raw
	}
	return s
}

func unescapeURL(u string) string {
	u = strings.ReplaceAll(u, `\u0026`, "&")
	return strings.ReplaceAll(u, `\/`, "/")
}
