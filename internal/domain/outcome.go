package domain

import "fmt"

// OutcomeKind tags an ExtractionOutcome.
type OutcomeKind string

const (
	OutcomeSinglePost   OutcomeKind = "single_post"
	OutcomeSelfThread   OutcomeKind = "self_thread"
	OutcomeConversation OutcomeKind = "conversation"
	OutcomeFailure      OutcomeKind = "failure"
)

// Failure describes why an extraction tier (or the whole dispatch) failed.
type Failure struct {
	Tier   string
	Reason string
	// Kind is one of the domain sentinels (ErrNotFound, ErrRateLimited, ...).
	Kind error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Tier, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Kind
}

// ExtractionOutcome is a tagged union; exactly one payload is populated and the
// constructors below are the only way to build one.
type ExtractionOutcome struct {
	kind         OutcomeKind
	post         *Post
	thread       *Thread
	conversation *Conversation
	failure      *Failure
}

// SinglePostOutcome wraps one post.
func SinglePostOutcome(p Post) ExtractionOutcome {
	return ExtractionOutcome{kind: OutcomeSinglePost, post: &p}
}

// SelfThreadOutcome wraps a self-thread.
func SelfThreadOutcome(t Thread) ExtractionOutcome {
	return ExtractionOutcome{kind: OutcomeSelfThread, thread: &t}
}

// ConversationOutcome wraps a parent post with replies.
func ConversationOutcome(c Conversation) ExtractionOutcome {
	return ExtractionOutcome{kind: OutcomeConversation, conversation: &c}
}

// FailureOutcome records a failed extraction. A nil kind defaults to ErrExtractionExhausted.
func FailureOutcome(tier, reason string, kind error) ExtractionOutcome {
	if kind == nil {
		kind = ErrExtractionExhausted
	}
	return ExtractionOutcome{kind: OutcomeFailure, failure: &Failure{Tier: tier, Reason: reason, Kind: kind}}
}

// Kind returns the populated tag.
func (o ExtractionOutcome) Kind() OutcomeKind {
	return o.kind
}

// OK reports whether the outcome carries content.
func (o ExtractionOutcome) OK() bool {
	return o.kind != OutcomeFailure && o.kind != ""
}

// Post returns the single post, if that tag is populated.
func (o ExtractionOutcome) Post() (Post, bool) {
	if o.post == nil {
		return Post{}, false
	}
	return *o.post, true
}

// Thread returns the self-thread, if that tag is populated.
func (o ExtractionOutcome) Thread() (Thread, bool) {
	if o.thread == nil {
		return Thread{}, false
	}
	return *o.thread, true
}

// Conversation returns the conversation, if that tag is populated.
func (o ExtractionOutcome) Conversation() (Conversation, bool) {
	if o.conversation == nil {
		return Conversation{}, false
	}
	return *o.conversation, true
}

// Failure returns the failure, if that tag is populated.
func (o ExtractionOutcome) Failure() (*Failure, bool) {
	if o.failure == nil {
		return nil, false
	}
	return o.failure, true
}

// Err returns the failure as an error, or nil on success. The zero value is a failure.
func (o ExtractionOutcome) Err() error {
	if o.failure != nil {
		return o.failure
	}
	if o.kind == "" {
		return &Failure{Tier: "unknown", Reason: "empty outcome", Kind: ErrExtractionExhausted}
	}
	return nil
}

// Posts flattens the outcome into its posts in display order.
func (o ExtractionOutcome) Posts() []Post {
	switch o.kind {
	case OutcomeSinglePost:
		return []Post{*o.post}
	case OutcomeSelfThread:
		return o.thread.Posts
	case OutcomeConversation:
		posts := make([]Post, 0, 1+len(o.conversation.Replies))
		posts = append(posts, o.conversation.Parent)
		return append(posts, o.conversation.Replies...)
	default:
		return nil
	}
}

// Primary returns the post the outcome is about.
func (o ExtractionOutcome) Primary() (Post, bool) {
	posts := o.Posts()
	if len(posts) == 0 {
		return Post{}, false
	}
	return posts[0], true
}

// Media collects media of every post that belongs to the author's content:
// all posts of a single post or self-thread, only the parent of a conversation.
func (o ExtractionOutcome) Media() []MediaRef {
	var refs []MediaRef
	switch o.kind {
	case OutcomeSinglePost:
		refs = o.post.AllMedia()
	case OutcomeSelfThread:
		for i := range o.thread.Posts {
			refs = append(refs, o.thread.Posts[i].AllMedia()...)
		}
	case OutcomeConversation:
		refs = o.conversation.Parent.AllMedia()
	}
	return dedupeMedia(refs)
}

func dedupeMedia(refs []MediaRef) []MediaRef {
	seen := make(map[string]bool, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
	}
	return out
}
