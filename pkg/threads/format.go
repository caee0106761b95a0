package threads

import (
	"fmt"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// quotePreviewLen is how many characters of a quoted post are shown.
const quotePreviewLen = 200

// FormatForSummary renders an extraction outcome as plain text for a
// summarization model. A failed outcome renders as "".
func FormatForSummary(o domain.ExtractionOutcome) string {
	var b strings.Builder

	switch o.Kind() {
	case domain.OutcomeSinglePost:
		p, _ := o.Post()
		writePost(&b, p, "Main post")
	case domain.OutcomeSelfThread:
		t, _ := o.Thread()
		for i, p := range t.Posts {
			if i > 0 {
				b.WriteString("\n\n")
			}
			writePost(&b, p, fmt.Sprintf("Thread part %d/%d", i+1, len(t.Posts)))
		}
	case domain.OutcomeConversation:
		c, _ := o.Conversation()
		writePost(&b, c.Parent, "Main post")
		if len(c.Replies) > 0 {
			b.WriteString("\n\nReplies:")
			for i, r := range c.Replies {
				fmt.Fprintf(&b, "\n\n--- Reply #%d ---\n", i+1)
				writePost(&b, r, "")
			}
		}
	}

	return b.String()
}

func writePost(b *strings.Builder, p domain.Post, label string) {
	if label != "" {
		fmt.Fprintf(b, "[%s] @%s", label, p.AuthorHandle)
	} else {
		fmt.Fprintf(b, "@%s", p.AuthorHandle)
	}
	if p.Timestamp != nil {
		fmt.Fprintf(b, "\nPosted: %s", p.Timestamp.Format("2006-01-02 15:04"))
	}

	fmt.Fprintf(b, "\n\n%s", p.Text)

	var stats []string
	if p.LikeCount > 0 {
		stats = append(stats, fmt.Sprintf("%d likes", p.LikeCount))
	}
	if p.ReplyCount > 0 {
		stats = append(stats, fmt.Sprintf("%d replies", p.ReplyCount))
	}
	if len(stats) > 0 {
		fmt.Fprintf(b, "\n\n(%s)", strings.Join(stats, " | "))
	}

	if q := p.QuotedPost; q != nil {
		preview := truncate(q.Text, quotePreviewLen)
		if preview != q.Text {
			preview += "..."
		}
		fmt.Fprintf(b, "\n\n> Quoting @%s:\n> %s", q.AuthorHandle, preview)
	}

	if len(p.Media) > 0 {
		var images, videos int
		for _, m := range p.Media {
			switch m.Kind {
			case domain.MediaKindImage:
				images++
			case domain.MediaKindVideo:
				videos++
			}
		}
		var parts []string
		if images > 0 {
			parts = append(parts, plural(images, "image"))
		}
		if videos > 0 {
			parts = append(parts, plural(videos, "video"))
		}
		fmt.Fprintf(b, "\n\n[Attachments: %s]", strings.Join(parts, ", "))
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
