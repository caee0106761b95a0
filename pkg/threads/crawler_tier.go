package threads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/pkg/payload"
)

// TierCrawler is the name reported by the crawler-render tier.
const TierCrawler = "crawler"

const threadItemsKey = "thread_items"

// CrawlerTier requests the page as a search crawler, which is served a fuller
// server-rendered payload, and pulls thread_items blocks out of the markup.
type CrawlerTier struct {
	client *Client
}

// NewCrawlerTier creates the crawler-render tier.
func NewCrawlerTier(client *Client) *CrawlerTier {
	return &CrawlerTier{client: client}
}

// Name identifies the tier in failure reasons.
func (t *CrawlerTier) Name() string { return TierCrawler }

// Fetch renders the page and reconstructs the post or self-thread.
func (t *CrawlerTier) Fetch(ctx context.Context, ref PostRef) domain.ExtractionOutcome {
	header := http.Header{}
	header.Set("User-Agent", t.client.cfg.CrawlerUserAgent)
	header.Set("Accept", "text/html,application/xhtml+xml")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := t.client.get(ctx, ref.CanonicalURL(t.client.cfg.WebBaseURL), header, nil)
	if err != nil {
		return failure(TierCrawler, err)
	}
	if err := statusError(resp.Status, false); err != nil {
		return failure(TierCrawler, fmt.Errorf("render status %d: %w", resp.Status, err))
	}

	markup := string(resp.Body)
	posts, err := PostsFromMarkup(markup)
	if err != nil {
		if isLoginWall(resp.FinalURL, markup) {
			return domain.FailureOutcome(TierCrawler, "page redirected to a login wall", domain.ErrPrivateOrAuthRequired)
		}
		return failure(TierCrawler, err)
	}
	return Reconstruct(ref, posts)
}

// PostsFromMarkup extracts every post found in thread_items blocks of a
// server-rendered page, in document order.
func PostsFromMarkup(markup string) ([]domain.Post, error) {
	frags := payload.ExtractBlocks(markup, threadItemsKey, "code")
	if len(frags) == 0 {
		return nil, errors.New("no thread_items payload in markup")
	}

	var posts []domain.Post
	for _, frag := range frags {
		var items []rawThreadItem
		if err := frag.Decode(&items); err != nil {
			continue
		}
		posts = append(posts, parseThreadItems(items)...)
	}
	posts = dedupePosts(posts)
	if len(posts) == 0 {
		return nil, errors.New("thread_items payload carried no parsable posts")
	}
	return posts, nil
}

func isLoginWall(finalURL, markup string) bool {
	if strings.Contains(finalURL, "/login") || strings.Contains(finalURL, "/accounts/login") {
		return true
	}
	return strings.Contains(markup, `"require_login":true`) ||
		strings.Contains(markup, `"is_private":true`)
}
