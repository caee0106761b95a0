package publish

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	maxTitleRunes = 60
	timeSuffix    = "20060102-150405"
	defaultTitle  = "note"
)

// FileName derives a file-system safe base name from a note title:
// NFKC-normalized, only letters, digits, spaces, hyphens and underscores
// kept, whitespace runs collapsed to "_", at most 60 runes, then
// suffixed with "_YYYYMMDD-HHMMSS".
func FileName(title string, t time.Time) string {
	title = norm.NFKC.String(title)

	var b strings.Builder
	pendingSpace := false
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}

	runes := []rune(b.String())
	if len(runes) > maxTitleRunes {
		runes = runes[:maxTitleRunes]
	}
	name := strings.Trim(string(runes), "_")
	if name == "" {
		name = defaultTitle
	}
	return name + "_" + t.Format(timeSuffix)
}
