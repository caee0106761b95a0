package summarizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxFallbackBullets = 5
	minBulletRunes     = 10
	titleRunes         = 40
)

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionBullets
)

// Parse extracts the short summary and bullets from a generated note. It
// understands "## Summary" / "## Key Points" headings as well as the
// 【摘要】/【重點】 markers. When no summary section is found the whole text is
// used, and when no bullets are found they are cut from the summary's sentences.
func Parse(markdown string) *Summary {
	markdown = strings.TrimSpace(markdown)
	var summary strings.Builder
	var bullets []string
	current := sectionNone

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if s, ok := sectionOf(line); ok {
			current = s
			continue
		}

		switch current {
		case sectionSummary:
			if isBullet(line) || strings.HasPrefix(line, "#") {
				continue
			}
			if summary.Len() > 0 {
				summary.WriteByte(' ')
			}
			summary.WriteString(line)
		case sectionBullets:
			if item := stripBullet(line); item != "" {
				bullets = append(bullets, item)
			}
		}
	}

	short := strings.TrimSpace(summary.String())
	if short == "" {
		short = markdown
	}
	if len(bullets) == 0 {
		bullets = sentenceBullets(short)
	}

	return &Summary{
		Markdown:     markdown,
		ShortSummary: short,
		Bullets:      bullets,
	}
}

func sectionOf(line string) (section, bool) {
	if strings.Contains(line, "【摘要】") {
		return sectionSummary, true
	}
	if strings.Contains(line, "【重點】") {
		return sectionBullets, true
	}
	if !strings.HasPrefix(line, "#") {
		return sectionNone, false
	}

	name := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#")))
	switch {
	case strings.Contains(name, "summary"), strings.Contains(name, "摘要"):
		return sectionSummary, true
	case strings.Contains(name, "key point"), strings.Contains(name, "重點"):
		return sectionBullets, true
	default:
		return sectionNone, true
	}
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") || strings.HasPrefix(line, "*")
}

// stripBullet removes a list marker ("-", "•", "*" or "1.") from line.
func stripBullet(line string) string {
	switch {
	case isBullet(line):
		_, size := utf8.DecodeRuneInString(line)
		return strings.TrimSpace(line[size:])
	case len(line) > 1 && unicode.IsDigit(rune(line[0])):
		if i := strings.IndexAny(line, ".)"); i > 0 && i <= 3 {
			return strings.TrimSpace(line[i+1:])
		}
	}
	return line
}

// sentenceBullets splits text into sentences and keeps the substantial ones.
func sentenceBullets(text string) []string {
	var bullets []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if utf8.RuneCountInString(s) > minBulletRunes && len(bullets) < maxFallbackBullets {
			bullets = append(bullets, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		switch {
		case r == '。' || r == '！' || r == '？':
			flush()
		case (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])):
			flush()
		}
	}
	flush()
	return bullets
}

// deriveTitle picks a title when the caller did not supply one: the first
// top-level heading, else the start of the short summary.
func deriveTitle(s *Summary) string {
	for _, line := range strings.Split(s.Markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	runes := []rune(s.ShortSummary)
	if len(runes) > titleRunes {
		runes = runes[:titleRunes]
	}
	return strings.TrimSpace(string(runes))
}
