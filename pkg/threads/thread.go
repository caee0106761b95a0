package threads

import (
	"strings"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// Reconstruct decides between a single post and a self-thread from every post
// a tier discovered, in discovery order.
//
// Handles compare case-insensitively. The original author is the handle in
// the URL, else the author of the post whose code matches the URL, else the
// author of the first post. When that author wrote more than one of the posts the result is a SelfThread of just
// their posts; replies by others are dropped. Otherwise the result is the
// queried post on its own.
func Reconstruct(ref PostRef, posts []domain.Post) domain.ExtractionOutcome {
	posts = dedupePosts(posts)
	if len(posts) == 0 {
		return domain.FailureOutcome("reconstruct", "no posts discovered", domain.ErrExtractionExhausted)
	}

	queried := -1
	for i := range posts {
		if ref.Code != "" && posts[i].Code == ref.Code {
			queried = i
			break
		}
	}

	author := ref.Handle
	if author == "" && queried >= 0 {
		author = posts[queried].AuthorHandle
	}
	if author == "" {
		author = posts[0].AuthorHandle
	}

	var own []domain.Post
	for _, p := range posts {
		if strings.EqualFold(p.AuthorHandle, author) {
			own = append(own, p)
		}
	}

	if len(own) > 1 {
		thread, err := domain.NewThread(own)
		if err == nil {
			return domain.SelfThreadOutcome(thread)
		}
	}

	switch {
	case queried >= 0:
		return domain.SinglePostOutcome(posts[queried])
	case len(own) == 1:
		return domain.SinglePostOutcome(own[0])
	default:
		return domain.SinglePostOutcome(posts[0])
	}
}
