package domain

import (
	"errors"
	"strings"
	"time"
)

// MediaKind classifies a remote asset.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaRef is an immutable descriptor of a remote asset.
type MediaRef struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Post is a single platform post.
type Post struct {
	ID           string     `json:"id"`
	Code         string     `json:"code,omitempty"`
	AuthorHandle string     `json:"author_handle"`
	Text         string     `json:"text"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	LikeCount    int        `json:"like_count"`
	ReplyCount   int        `json:"reply_count"`
	Media        []MediaRef `json:"media,omitempty"`

	// QuotedPost is an owned copy, never a reference back to the quoter.
	QuotedPost *Post `json:"quoted_post,omitempty"`
}

// HasContent reports whether the post carries any text or media.
func (p *Post) HasContent() bool {
	return p.Text != "" || len(p.Media) > 0
}

// AllMedia returns the post's media followed by its quoted post's media.
func (p *Post) AllMedia() []MediaRef {
	refs := make([]MediaRef, 0, len(p.Media))
	refs = append(refs, p.Media...)
	if p.QuotedPost != nil {
		refs = append(refs, p.QuotedPost.Media...)
	}
	return refs
}

// ErrMixedAuthors is returned when building a Thread from posts by different authors.
var ErrMixedAuthors = errors.New("thread posts must share one author")

// Thread is an ordered run of posts by the same original author.
type Thread struct {
	Posts []Post `json:"posts"`
}

// NewThread builds a Thread, enforcing the single-author invariant. Handles
// compare case-insensitively.
func NewThread(posts []Post) (Thread, error) {
	if len(posts) == 0 {
		return Thread{}, errors.New("thread must contain at least one post")
	}
	author := posts[0].AuthorHandle
	for _, p := range posts[1:] {
		if !strings.EqualFold(p.AuthorHandle, author) {
			return Thread{}, ErrMixedAuthors
		}
	}
	return Thread{Posts: posts}, nil
}

// Author returns the thread's author handle.
func (t Thread) Author() string {
	if len(t.Posts) == 0 {
		return ""
	}
	return t.Posts[0].AuthorHandle
}

// Conversation is a parent post plus replies from arbitrary authors.
type Conversation struct {
	Parent  Post   `json:"parent"`
	Replies []Post `json:"replies"`
}
