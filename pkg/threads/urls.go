package threads

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// CanonicalBaseURL is the host used for ledger keys.
const CanonicalBaseURL = "https://www.threads.net"

// Supported post link shapes:
//
//	https://www.threads.net/@username/post/ABC123xyz
//	https://www.threads.com/@username/post/ABC123xyz
//	https://threads.net/t/ABC123xyz
var (
	profilePostPattern = regexp.MustCompile(`^https?://(?:www\.)?threads\.(?:net|com)/@([\w.]+)/post/([A-Za-z0-9_-]+)`)
	shortPostPattern   = regexp.MustCompile(`^https?://(?:www\.)?threads\.(?:net|com)/t/([A-Za-z0-9_-]+)`)

	// linkPattern finds candidate links inside free text (chat messages).
	linkPattern = regexp.MustCompile(`https?://(?:www\.)?threads\.(?:net|com)/\S+`)
)

// PostRef identifies a post from its URL.
type PostRef struct {
	URL    string
	Handle string // empty for /t/<code> links
	Code   string
}

// ParseURL classifies a URL as a supported post link. Handles are
// case-insensitive and come back lowercased; codes are kept as written.
func ParseURL(raw string) (PostRef, error) {
	raw = strings.TrimSpace(raw)
	if m := profilePostPattern.FindStringSubmatch(raw); m != nil {
		return PostRef{URL: raw, Handle: strings.ToLower(m[1]), Code: m[2]}, nil
	}
	if m := shortPostPattern.FindStringSubmatch(raw); m != nil {
		return PostRef{URL: raw, Code: m[1]}, nil
	}
	return PostRef{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedURL, raw)
}

// IsPostURL reports whether raw is a supported post link.
func IsPostURL(raw string) bool {
	_, err := ParseURL(raw)
	return err == nil
}

// FindPostURL returns the first supported post link in text, or "".
func FindPostURL(text string) string {
	for _, candidate := range linkPattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:!?)]}>\"'")
		if IsPostURL(candidate) {
			return candidate
		}
	}
	return ""
}

// CanonicalURL returns the web URL used by the render tiers.
func (r PostRef) CanonicalURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if r.Handle != "" {
		return fmt.Sprintf("%s/@%s/post/%s", baseURL, r.Handle, r.Code)
	}
	return fmt.Sprintf("%s/t/%s", baseURL, r.Code)
}

const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// CodeToPK converts a post shortcode to the numeric media id used by the API.
func CodeToPK(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty shortcode")
	}
	n := new(big.Int)
	base := big.NewInt(64)
	for _, c := range code {
		idx := strings.IndexRune(shortcodeAlphabet, c)
		if idx < 0 {
			return "", fmt.Errorf("invalid shortcode character %q", c)
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return n.String(), nil
}
