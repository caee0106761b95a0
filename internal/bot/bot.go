// Package bot is the Telegram front-end: it turns chat messages into
// submissions and delivers pipeline notifications back to the chat.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/threadgrabba/internal/service"
	"github.com/iconidentify/threadgrabba/internal/links"
)

// maxMessageLen is Telegram's limit for one text message, in characters.
const maxMessageLen = 4096

const (
	unauthorizedText = "You are not allowed to use this bot."
	noLinkText       = "Please share a Threads post or Instagram reel link.\nSupported: threads.net/@user/post/CODE, threads.net/t/CODE, instagram.com/reel/CODE or instagram.com/p/CODE"
	submitErrorText  = "Could not accept the link right now, please try again."
)

// Sender delivers plain text to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Submitter accepts links and reports the retry backlog.
type Submitter interface {
	Submit(ctx context.Context, url, originatorID string) (*service.Ack, error)
	PendingTasks(ctx context.Context) (int, error)
}

// RetryInfo exposes the retry policy for /status.
type RetryInfo interface {
	Interval() time.Duration
	MaxRetries() int
}

// Notifier delivers pipeline notifications to the originating chat. It
// implements service.Notifier.
type Notifier struct {
	sender Sender
}

// NewNotifier creates a chat notifier.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify sends text to the chat identified by originatorID, split to fit
// Telegram's message size limit.
func (n *Notifier) Notify(ctx context.Context, originatorID, text string) error {
	chatID, err := strconv.ParseInt(originatorID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", originatorID, err)
	}
	for _, part := range splitMessage(text, maxMessageLen) {
		if err := n.sender.SendText(ctx, chatID, part); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// Bot handles incoming chat messages.
type Bot struct {
	notifier  *Notifier
	submitter Submitter
	retry     RetryInfo
	allowed   map[int64]bool
	logger    *slog.Logger
}

// New creates a bot. An empty allowedChatIDs admits every chat.
func New(notifier *Notifier, submitter Submitter, retry RetryInfo, allowedChatIDs []int64, logger *slog.Logger) *Bot {
	allowed := make(map[int64]bool, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = true
	}
	return &Bot{
		notifier:  notifier,
		submitter: submitter,
		retry:     retry,
		allowed:   allowed,
		logger:    logger,
	}
}

func (b *Bot) authorized(chatID int64) bool {
	return len(b.allowed) == 0 || b.allowed[chatID]
}

// HandleMessage dispatches one incoming message. It never runs pipeline work.
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	logger := b.logger.With("chat_id", chatID)

	if !b.authorized(chatID) {
		logger.Warn("rejected message from unauthorized chat")
		b.reply(ctx, chatID, unauthorizedText)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.reply(ctx, chatID, welcomeText)
		case "status":
			b.handleStatus(ctx, chatID, logger)
		default:
			b.reply(ctx, chatID, "Unknown command. Try /start or /status.")
		}
		return
	}

	url := links.Find(msg.Text)
	if url == "" {
		b.reply(ctx, chatID, noLinkText)
		return
	}

	ack, err := b.submitter.Submit(ctx, url, strconv.FormatInt(chatID, 10))
	if err != nil {
		logger.Error("submit failed", "url", url, "error", err)
		b.reply(ctx, chatID, submitErrorText)
		return
	}
	logger.Info("link submitted", "url", ack.URL, "status", ack.Status)

	// A queued job announces itself when a worker picks it up.
	if ack.Status != service.AckQueued {
		b.reply(ctx, chatID, ack.Message)
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, logger *slog.Logger) {
	pending, err := b.submitter.PendingTasks(ctx)
	if err != nil {
		logger.Error("count pending tasks", "error", err)
		b.reply(ctx, chatID, "Could not read the retry queue.")
		return
	}
	b.reply(ctx, chatID, StatusText(pending, b.retry.Interval(), b.retry.MaxRetries()))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.notifier.Notify(ctx, strconv.FormatInt(chatID, 10), text); err != nil {
		b.logger.Warn("reply failed", "chat_id", chatID, "error", err)
	}
}

const welcomeText = `Welcome! Share a Threads post or Instagram reel link and I will:
1. Fetch the post, its thread or its conversation
2. Transcribe videos and describe images
3. Write a summary with key points
4. Save it as a note

Commands:
/start - show this help
/status - show the retry queue

Supported links:
• threads.net/@user/post/CODE
• threads.net/t/CODE
• instagram.com/reel/CODE
• instagram.com/p/CODE`

// StatusText renders the /status reply.
func StatusText(pending int, interval time.Duration, maxRetries int) string {
	return fmt.Sprintf("Status\n\nBot is running\nTasks waiting for retry: %d\nRetry interval: every %s\nMax retries: %d",
		pending, interval, maxRetries)
}

// splitMessage breaks text into chunks of at most limit runes, preferring
// line boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return parts
}
