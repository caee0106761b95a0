package extract

import (
	"context"
	"fmt"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/links"
)

// Extractor retrieves the post behind a link.
type Extractor interface {
	Extract(ctx context.Context, url string) domain.ExtractionOutcome
}

// Router hands each link to the extractor registered for its platform.
type Router struct {
	routes map[links.Platform]Extractor
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[links.Platform]Extractor)}
}

// Handle registers ext for platform.
func (r *Router) Handle(platform links.Platform, ext Extractor) *Router {
	r.routes[platform] = ext
	return r
}

// Extract dispatches url by platform.
func (r *Router) Extract(ctx context.Context, url string) domain.ExtractionOutcome {
	link, err := links.Parse(url)
	if err != nil {
		return domain.FailureOutcome(TierDispatch, err.Error(), domain.ErrUnsupportedURL)
	}
	ext, ok := r.routes[link.Platform]
	if !ok {
		return domain.FailureOutcome(TierDispatch, fmt.Sprintf("no extractor for %s links", link.Platform), domain.ErrUnsupportedURL)
	}
	return ext.Extract(ctx, url)
}
