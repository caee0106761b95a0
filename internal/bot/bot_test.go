package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/threadgrabba/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	chatID int64
	text   string
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockSender) SendText(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{chatID, text})
	return nil
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type mockSubmitter struct {
	mu         sync.Mutex
	ack        *service.Ack
	err        error
	pending    int
	submitted  []string
	originator string
}

func (m *mockSubmitter) Submit(ctx context.Context, url, originatorID string) (*service.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, url)
	m.originator = originatorID
	if m.err != nil {
		return nil, m.err
	}
	return m.ack, nil
}

func (m *mockSubmitter) PendingTasks(ctx context.Context) (int, error) {
	return m.pending, nil
}

type fixedRetry struct{}

func (fixedRetry) Interval() time.Duration { return time.Hour }
func (fixedRetry) MaxRetries() int         { return 3 }

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
}

func commandMessage(chatID int64, cmd string) *tgbotapi.Message {
	msg := textMessage(chatID, cmd)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return msg
}

func newTestBot(allowed ...int64) (*Bot, *mockSender, *mockSubmitter) {
	sender := &mockSender{}
	sub := &mockSubmitter{ack: &service.Ack{Status: service.AckQueued, URL: "u"}}
	return New(NewNotifier(sender), sub, fixedRetry{}, allowed, testLogger()), sender, sub
}

func TestHandleMessage_Commands(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"/start", "Share a Threads post or Instagram reel link"},
		{"/status", "Tasks waiting for retry: 4"},
		{"/bogus", "Unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			b, sender, sub := newTestBot()
			sub.pending = 4
			b.HandleMessage(context.Background(), commandMessage(7, tt.cmd))

			msgs := sender.messages()
			if len(msgs) != 1 || msgs[0].chatID != 7 || !strings.Contains(msgs[0].text, tt.want) {
				t.Errorf("sent = %+v, want %q", msgs, tt.want)
			}
		})
	}
}

func TestStatusText(t *testing.T) {
	got := StatusText(2, time.Hour, 3)
	for _, want := range []string{"Tasks waiting for retry: 2", "every 1h0m0s", "Max retries: 3"} {
		if !strings.Contains(got, want) {
			t.Errorf("StatusText() missing %q:\n%s", want, got)
		}
	}
}

func TestHandleMessage_Unauthorized(t *testing.T) {
	b, sender, sub := newTestBot(1, 2)
	b.HandleMessage(context.Background(), textMessage(99, "https://www.threads.net/@alice/post/ABC123"))

	if len(sub.submitted) != 0 {
		t.Error("unauthorized chat must not submit")
	}
	msgs := sender.messages()
	if len(msgs) != 1 || msgs[0].text != unauthorizedText {
		t.Errorf("sent = %+v", msgs)
	}
}

func TestHandleMessage_SubmitsLink(t *testing.T) {
	b, sender, sub := newTestBot(7)
	b.HandleMessage(context.Background(), textMessage(7, "look at this https://www.threads.net/@alice/post/ABC123?xmt=1 !"))

	if len(sub.submitted) != 1 || sub.submitted[0] != "https://www.threads.net/@alice/post/ABC123?xmt=1" {
		t.Fatalf("submitted = %v", sub.submitted)
	}
	if sub.originator != "7" {
		t.Errorf("originator = %q, want chat id", sub.originator)
	}
	if msgs := sender.messages(); len(msgs) != 0 {
		t.Errorf("queued submissions should not be acknowledged twice, sent %+v", msgs)
	}
}

func TestHandleMessage_AckReplies(t *testing.T) {
	for _, status := range []service.AckStatus{service.AckAlreadyProcessed, service.AckInProgress} {
		t.Run(string(status), func(t *testing.T) {
			b, sender, sub := newTestBot()
			sub.ack = &service.Ack{Status: status, Message: "ack text"}
			b.HandleMessage(context.Background(), textMessage(7, "https://threads.net/t/XYZ"))

			msgs := sender.messages()
			if len(msgs) != 1 || msgs[0].text != "ack text" {
				t.Errorf("sent = %+v", msgs)
			}
		})
	}
}

func TestHandleMessage_NoLink(t *testing.T) {
	b, sender, sub := newTestBot()
	b.HandleMessage(context.Background(), textMessage(7, "https://example.com/post/1"))

	if len(sub.submitted) != 0 {
		t.Error("unsupported link must not be submitted")
	}
	if msgs := sender.messages(); len(msgs) != 1 || msgs[0].text != noLinkText {
		t.Errorf("sent = %+v", msgs)
	}
}

func TestHandleMessage_SubmitError(t *testing.T) {
	b, sender, sub := newTestBot()
	sub.err = errors.New("db locked")
	b.HandleMessage(context.Background(), textMessage(7, "https://threads.net/t/XYZ"))

	if msgs := sender.messages(); len(msgs) != 1 || msgs[0].text != submitErrorText {
		t.Errorf("sent = %+v", msgs)
	}
}

func TestNotifier_Notify(t *testing.T) {
	sender := &mockSender{}
	n := NewNotifier(sender)

	if err := n.Notify(context.Background(), "-100123", "hello"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if msgs := sender.messages(); len(msgs) != 1 || msgs[0].chatID != -100123 {
		t.Errorf("sent = %+v", msgs)
	}

	if err := n.Notify(context.Background(), "api", "hello"); err == nil {
		t.Error("expected error for non-numeric originator")
	}

	sender.err = errors.New("blocked by user")
	if err := n.Notify(context.Background(), "1", "hello"); err == nil {
		t.Error("expected send error")
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("splitMessage(short) = %q", got)
	}

	text := strings.Repeat("line of text\n", 10)
	parts := splitMessage(text, 30)
	if len(parts) < 2 {
		t.Fatalf("parts = %d, want several", len(parts))
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p) > 30 {
			t.Errorf("part too long (%d): %q", utf8.RuneCountInString(p), p)
		}
		if strings.HasPrefix(p, "ine") {
			t.Errorf("part split mid-line: %q", p)
		}
	}
	if strings.Join(parts, "\n") != strings.TrimRight(text, "\n") {
		t.Error("parts do not reassemble to the original text")
	}

	long := strings.Repeat("字", 25)
	parts = splitMessage(long, 10)
	if len(parts) != 3 || utf8.RuneCountInString(parts[2]) != 5 {
		t.Errorf("long line parts = %q", parts)
	}
}

func TestHandleMessage_SubmitsInstagramReel(t *testing.T) {
	b, _, sub := newTestBot(7)
	b.HandleMessage(context.Background(), textMessage(7, "reel: https://www.instagram.com/reel/DMxowe6v2zY/?igsh=MW45"))

	if len(sub.submitted) != 1 || sub.submitted[0] != "https://www.instagram.com/reel/DMxowe6v2zY/?igsh=MW45" {
		t.Fatalf("submitted = %v", sub.submitted)
	}
}
