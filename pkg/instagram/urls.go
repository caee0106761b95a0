package instagram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// CanonicalBaseURL is the host used for ledger keys.
const CanonicalBaseURL = "https://www.instagram.com"

// Supported link shapes:
//
//	https://www.instagram.com/reel/DMxowe6v2zY
//	https://www.instagram.com/reels/DMxowe6v2zY
//	https://instagram.com/p/DMxowe6v2zY
var (
	postPattern = regexp.MustCompile(`^https?://(?:www\.)?instagram\.com/(reel|reels|p)/([A-Za-z0-9_-]+)`)
	linkPattern = regexp.MustCompile(`https?://(?:www\.)?instagram\.com/\S+`)
)

// Kind tells a reel from a regular post.
type Kind string

const (
	KindReel Kind = "reel"
	KindPost Kind = "p"
)

// Ref identifies a reel or post from its URL.
type Ref struct {
	URL  string
	Kind Kind
	Code string
}

// ParseURL classifies a URL as a supported Instagram link.
func ParseURL(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	m := postPattern.FindStringSubmatch(raw)
	if m == nil {
		return Ref{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedURL, raw)
	}
	kind := KindReel
	if m[1] == "p" {
		kind = KindPost
	}
	return Ref{URL: raw, Kind: kind, Code: m[2]}, nil
}

// IsPostURL reports whether raw is a supported Instagram link.
func IsPostURL(raw string) bool {
	_, err := ParseURL(raw)
	return err == nil
}

// FindPostURL returns the first supported Instagram link in text, or "".
func FindPostURL(text string) string {
	for _, candidate := range linkPattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:!?)]}>\"'")
		if IsPostURL(candidate) {
			return candidate
		}
	}
	return ""
}

// CanonicalURL returns the page URL for the ref. /reels/ links collapse to /reel/.
func (r Ref) CanonicalURL(baseURL string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(baseURL, "/"), r.Kind, r.Code)
}
