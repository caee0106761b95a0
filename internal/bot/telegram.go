package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NewAPI connects to the Telegram Bot API.
func NewAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// TelegramSender implements Sender using tgbotapi.
type TelegramSender struct {
	api *tgbotapi.BotAPI
}

// NewTelegramSender creates a new sender.
func NewTelegramSender(api *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

// SendText sends a plain text message without link previews.
func (s *TelegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := s.api.Send(msg)
	return err
}

// Poller long-polls for updates and hands messages to the bot.
type Poller struct {
	api     *tgbotapi.BotAPI
	bot     *Bot
	timeout int
	logger  *slog.Logger
}

// NewPoller creates a poller with a 30 second long-poll timeout.
func NewPoller(api *tgbotapi.BotAPI, bot *Bot, logger *slog.Logger) *Poller {
	return &Poller{api: api, bot: bot, timeout: 30, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.timeout
	u.AllowedUpdates = []string{"message"}

	updates := p.api.GetUpdatesChan(u)
	p.logger.Info("telegram polling started", "bot", p.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			p.logger.Info("telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				p.bot.HandleMessage(ctx, update.Message)
			}
		}
	}
}
