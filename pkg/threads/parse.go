package threads

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// maxQuoteDepth bounds how many levels of quoted posts are kept.
const maxQuoteDepth = 2

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

type rawImageVersions struct {
	Candidates []struct {
		URL string `json:"url"`
	} `json:"candidates"`
}

type rawVideoVersion struct {
	URL string `json:"url"`
}

type rawMedia struct {
	VideoVersions  []rawVideoVersion `json:"video_versions"`
	ImageVersions2 rawImageVersions  `json:"image_versions2"`
}

// rawPost is the post object shared by the data API and the server-rendered payload.
type rawPost struct {
	ID       flexString `json:"id"`
	PK       flexString `json:"pk"`
	Code     string     `json:"code"`
	Username string     `json:"username"`
	User     struct {
		Username string `json:"username"`
	} `json:"user"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
	Text       string            `json:"text"`
	TakenAt    json.Number       `json:"taken_at"`
	LikeCount  int               `json:"like_count"`
	ReplyCount int               `json:"reply_count"`
	Carousel   []rawMedia        `json:"carousel_media"`
	Videos     []rawVideoVersion `json:"video_versions"`
	Images     rawImageVersions  `json:"image_versions2"`
	AppInfo    struct {
		DirectReplyCount int `json:"direct_reply_count"`
		ShareInfo        struct {
			QuotedPost *rawPost `json:"quoted_post"`
			QuotedText string   `json:"quoted_text"`
		} `json:"share_info"`
	} `json:"text_post_app_info"`
}

type rawThreadItem struct {
	Post *rawPost `json:"post"`
}

// toPost normalizes a raw post. ok is false when the object carries nothing
// that identifies a post.
func (r *rawPost) toPost(depth int) (domain.Post, bool) {
	if r == nil {
		return domain.Post{}, false
	}

	p := domain.Post{
		ID:   firstNonEmpty(string(r.ID), string(r.PK), r.Code),
		Code: r.Code,
	}
	if p.ID == "" {
		return domain.Post{}, false
	}

	p.AuthorHandle = firstNonEmpty(r.User.Username, r.Username, "unknown")

	if r.Caption != nil {
		p.Text = r.Caption.Text
	}
	if p.Text == "" {
		p.Text = firstNonEmpty(r.Text, r.AppInfo.ShareInfo.QuotedText)
	}

	if ts, err := r.TakenAt.Int64(); err == nil && ts > 0 {
		t := time.Unix(ts, 0).UTC()
		p.Timestamp = &t
	}

	p.LikeCount = r.LikeCount
	p.ReplyCount = r.ReplyCount
	if p.ReplyCount == 0 {
		p.ReplyCount = r.AppInfo.DirectReplyCount
	}

	switch {
	case len(r.Carousel) > 0:
		for _, m := range r.Carousel {
			if ref, ok := mediaRef(m.VideoVersions, m.ImageVersions2); ok {
				p.Media = append(p.Media, ref)
			}
		}
	default:
		if ref, ok := mediaRef(r.Videos, r.Images); ok {
			p.Media = append(p.Media, ref)
		}
	}

	if q := r.AppInfo.ShareInfo.QuotedPost; q != nil && depth < maxQuoteDepth {
		if quoted, ok := q.toPost(depth + 1); ok {
			p.QuotedPost = &quoted
		}
	}

	return p, true
}

func mediaRef(videos []rawVideoVersion, images rawImageVersions) (domain.MediaRef, bool) {
	if len(videos) > 0 && videos[0].URL != "" {
		return domain.MediaRef{URL: videos[0].URL, Kind: domain.MediaKindVideo}, true
	}
	if len(images.Candidates) > 0 && images.Candidates[0].URL != "" {
		return domain.MediaRef{URL: images.Candidates[0].URL, Kind: domain.MediaKindImage}, true
	}
	return domain.MediaRef{}, false
}

// ParsePost normalizes one post object from API or payload JSON.
func ParsePost(data []byte) (domain.Post, bool) {
	var r rawPost
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Post{}, false
	}
	return r.toPost(0)
}

// parseThreadItems turns a thread_items array into posts, skipping entries
// that do not parse.
func parseThreadItems(items []rawThreadItem) []domain.Post {
	posts := make([]domain.Post, 0, len(items))
	for _, item := range items {
		if p, ok := item.Post.toPost(0); ok {
			posts = append(posts, p)
		}
	}
	return posts
}

// dedupePosts keeps the first post for every code (or id when code is empty).
func dedupePosts(posts []domain.Post) []domain.Post {
	seen := make(map[string]bool, len(posts))
	out := posts[:0:0]
	for _, p := range posts {
		key := firstNonEmpty(p.Code, p.ID)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func atoiDefault(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
