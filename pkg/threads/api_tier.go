package threads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// TierAPI is the name reported by the authenticated data API tier.
const TierAPI = "api"

// threadResponse is the data API's reply listing for a post.
type threadResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	ContainingThread struct {
		ThreadItems []rawThreadItem `json:"thread_items"`
	} `json:"containing_thread"`
	ReplyThreads []struct {
		ThreadItems []rawThreadItem `json:"thread_items"`
	} `json:"reply_threads"`
}

// APITier fetches a post through the platform's data API using the stored
// browser session. It fails closed on "not found" and open on anything else.
type APITier struct {
	client *Client
}

// NewAPITier creates the authenticated API tier.
func NewAPITier(client *Client) *APITier {
	return &APITier{client: client}
}

// Name identifies the tier in failure reasons.
func (t *APITier) Name() string { return TierAPI }

// Fetch retrieves the post and its self-thread chain.
func (t *APITier) Fetch(ctx context.Context, ref PostRef) domain.ExtractionOutcome {
	resp, err := t.fetchThread(ctx, ref)
	if err != nil {
		return failure(TierAPI, err)
	}

	posts := parseThreadItems(resp.ContainingThread.ThreadItems)
	if len(posts) == 0 {
		return domain.FailureOutcome(TierAPI, "response carried no parsable posts", domain.ErrExtractionExhausted)
	}
	return Reconstruct(ref, posts)
}

// FetchReplies returns up to the configured number of direct replies to the
// post, from any author, in the order the API lists them.
func (t *APITier) FetchReplies(ctx context.Context, ref PostRef) ([]domain.Post, error) {
	resp, err := t.fetchThread(ctx, ref)
	if err != nil {
		return nil, err
	}

	limit := t.client.cfg.MaxReplies
	replies := make([]domain.Post, 0, limit)
	for _, rt := range resp.ReplyThreads {
		if len(replies) >= limit {
			break
		}
		if len(rt.ThreadItems) == 0 {
			continue
		}
		if p, ok := rt.ThreadItems[0].Post.toPost(0); ok {
			replies = append(replies, p)
		}
	}
	return replies, nil
}

func (t *APITier) fetchThread(ctx context.Context, ref PostRef) (*threadResponse, error) {
	session, err := t.client.Session()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !session.IsValid() {
		return nil, fmt.Errorf("%w: no valid session cookie", domain.ErrCredentialsRejected)
	}

	pk, err := CodeToPK(ref.Code)
	if err != nil {
		return nil, fmt.Errorf("decode post code: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/text_feed/%s/replies/", t.client.cfg.APIBaseURL, pk)
	header := http.Header{}
	header.Set("User-Agent", t.client.cfg.UserAgent)
	header.Set("Accept", "application/json")
	header.Set("X-IG-App-ID", t.client.cfg.AppID)

	resp, err := t.client.get(ctx, url, header, session)
	if err != nil {
		return nil, err
	}

	var tr threadResponse
	decodeErr := json.Unmarshal(resp.Body, &tr)

	// Error bodies carry a message even when the status is not 2xx.
	if decodeErr == nil && (tr.Status == "fail" || tr.Message != "") {
		if err := messageError(tr.Message); err != nil {
			return nil, err
		}
	}
	if err := statusError(resp.Status, true); err != nil {
		return nil, fmt.Errorf("data API status %d: %w", resp.Status, err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &tr, nil
}

// messageError classifies an API failure message.
func messageError(message string) error {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "not found") || strings.Contains(m, "404"):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, message)
	case strings.Contains(m, "login") || strings.Contains(m, "checkpoint"):
		return fmt.Errorf("%w: %s", domain.ErrCredentialsRejected, message)
	case strings.Contains(m, "rate limit") || strings.Contains(m, "wait a few minutes"):
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, message)
	case message == "":
		return fmt.Errorf("data API reported failure")
	default:
		return fmt.Errorf("data API: %s", message)
	}
}
