// Package links recognizes supported post links in free text and reduces them
// to one canonical key per post, whatever host or path variant was pasted.
package links

import (
	"strings"

	"github.com/iconidentify/threadgrabba/pkg/instagram"
	"github.com/iconidentify/threadgrabba/pkg/threads"
)

// Platform names a supported source.
type Platform string

const (
	PlatformThreads   Platform = "threads"
	PlatformInstagram Platform = "instagram"
)

// Link is a supported post link.
type Link struct {
	Platform Platform
	// URL is the canonical form used as the ledger and filter key.
	URL string
}

// Parse classifies raw and returns its canonical form. Unsupported links
// return domain.ErrUnsupportedURL.
func Parse(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	if ref, err := threads.ParseURL(raw); err == nil {
		return Link{Platform: PlatformThreads, URL: ref.CanonicalURL(threads.CanonicalBaseURL)}, nil
	}
	ref, err := instagram.ParseURL(raw)
	if err != nil {
		return Link{}, err
	}
	return Link{Platform: PlatformInstagram, URL: ref.CanonicalURL(instagram.CanonicalBaseURL)}, nil
}

// PlatformOf returns the platform of a supported link, or "".
func PlatformOf(raw string) Platform {
	link, err := Parse(raw)
	if err != nil {
		return ""
	}
	return link.Platform
}

// Find returns the first supported link in text, or "".
func Find(text string) string {
	best, bestAt := "", -1
	for _, found := range []string{threads.FindPostURL(text), instagram.FindPostURL(text)} {
		if found == "" {
			continue
		}
		if at := strings.Index(text, found); bestAt < 0 || at < bestAt {
			best, bestAt = found, at
		}
	}
	return best
}
