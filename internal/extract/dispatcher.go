// Package extract runs the extraction tiers for a post URL in priority order.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/pkg/threads"
)

// TierDispatch is the tier name used for failures raised by the dispatcher itself.
const TierDispatch = "dispatch"

// Tier is one way of retrieving a post. Tiers share no mutable state and
// report failure through the outcome rather than an error.
type Tier interface {
	Name() string
	Fetch(ctx context.Context, ref threads.PostRef) domain.ExtractionOutcome
}

// RepliesFetcher lists the replies to a post from any author.
type RepliesFetcher interface {
	FetchReplies(ctx context.Context, ref threads.PostRef) ([]domain.Post, error)
}

// Config holds dispatcher options.
type Config struct {
	// FetchReplies turns a single-post result into a conversation when the
	// replies fetcher returns any replies.
	FetchReplies bool
	// PreferRicherThread lets the tier after a single-post success upgrade
	// the result when it reconstructs a self-thread.
	PreferRicherThread bool
}

// Dispatcher tries tiers in order and stops at the first success.
type Dispatcher struct {
	tiers   []Tier
	replies RepliesFetcher
	cfg     Config
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over tiers in priority order. replies may be nil.
func NewDispatcher(tiers []Tier, replies RepliesFetcher, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tiers:   tiers,
		replies: replies,
		cfg:     cfg,
		logger:  logger,
	}
}

// Extract retrieves the post at url.
func (d *Dispatcher) Extract(ctx context.Context, url string) domain.ExtractionOutcome {
	ref, err := threads.ParseURL(url)
	if err != nil {
		return domain.FailureOutcome(TierDispatch, err.Error(), domain.ErrUnsupportedURL)
	}

	logger := d.logger.With("url", url, "code", ref.Code)

	var failures []*domain.Failure
	for i, tier := range d.tiers {
		if err := ctx.Err(); err != nil {
			failures = append(failures, &domain.Failure{Tier: TierDispatch, Reason: err.Error(), Kind: domain.ErrExtractionExhausted})
			break
		}

		out := tier.Fetch(ctx, ref)
		if out.OK() {
			logger.Info("extraction tier succeeded",
				"tier", tier.Name(),
				"kind", out.Kind(),
				"posts", len(out.Posts()),
			)
			if d.cfg.PreferRicherThread && out.Kind() == domain.OutcomeSinglePost && i+1 < len(d.tiers) {
				out = d.upgrade(ctx, logger, ref, out, d.tiers[i+1])
			}
			return d.withReplies(ctx, logger, ref, out)
		}

		f := failureOf(out, tier.Name())
		failures = append(failures, f)
		logger.Warn("extraction tier failed",
			"tier", f.Tier,
			"reason", f.Reason,
		)

		if errors.Is(f.Kind, domain.ErrNotFound) {
			return domain.FailureOutcome(TierDispatch, joinReasons(failures), domain.ErrNotFound)
		}
	}

	return domain.FailureOutcome(TierDispatch, joinReasons(failures), aggregateKind(failures))
}

// upgrade replaces a single post with the next tier's self-thread, if it has one.
func (d *Dispatcher) upgrade(ctx context.Context, logger *slog.Logger, ref threads.PostRef, first domain.ExtractionOutcome, next Tier) domain.ExtractionOutcome {
	richer := next.Fetch(ctx, ref)
	if richer.Kind() == domain.OutcomeSelfThread {
		logger.Info("using richer thread reconstruction", "tier", next.Name(), "posts", len(richer.Posts()))
		return richer
	}
	return first
}

func (d *Dispatcher) withReplies(ctx context.Context, logger *slog.Logger, ref threads.PostRef, out domain.ExtractionOutcome) domain.ExtractionOutcome {
	if !d.cfg.FetchReplies || d.replies == nil || out.Kind() != domain.OutcomeSinglePost {
		return out
	}

	replies, err := d.replies.FetchReplies(ctx, ref)
	if err != nil {
		logger.Warn("fetch replies failed, keeping single post", "error", err)
		return out
	}
	if len(replies) == 0 {
		return out
	}

	parent, _ := out.Post()
	return domain.ConversationOutcome(domain.Conversation{Parent: parent, Replies: replies})
}

func failureOf(out domain.ExtractionOutcome, tierName string) *domain.Failure {
	if f, ok := out.Failure(); ok {
		if f.Tier == "" {
			f.Tier = tierName
		}
		return f
	}
	return &domain.Failure{Tier: tierName, Reason: "empty outcome", Kind: domain.ErrExtractionExhausted}
}

func joinReasons(failures []*domain.Failure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, f.Error())
	}
	return strings.Join(parts, "; ")
}

// aggregateKind picks the most authoritative classification: the first tier
// reporting the content as private or rate limited. A rejected session only
// says something about the credentials, not the post.
func aggregateKind(failures []*domain.Failure) error {
	for _, f := range failures {
		switch {
		case errors.Is(f.Kind, domain.ErrPrivateOrAuthRequired):
			return domain.ErrPrivateOrAuthRequired
		case errors.Is(f.Kind, domain.ErrRateLimited):
			return domain.ErrRateLimited
		}
	}
	return domain.ErrExtractionExhausted
}
