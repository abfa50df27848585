package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// Telegram sends messages to one chat and answers /status.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

// NewTelegramWithEndpoint points the bot at another API host, e.g. a local bot server.
func NewTelegramWithEndpoint(token, endpoint string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Send(_ context.Context, msg string) error {
	if t.chatID == 0 {
		return errors.New("telegram chat id not set")
	}
	m := tgbot.NewMessage(t.chatID, msg)
	m.ParseMode = tgbot.ModeMarkdown
	if _, err := t.bot.Send(m); err != nil {
		return errors.Wrap(err, "telegram send")
	}
	return nil
}

// Start long-polls for commands from the configured chat until ctx ends.
func (t *Telegram) Start(ctx context.Context, status func() string) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		defer t.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				msg := upd.Message
				if msg == nil || msg.Chat == nil || msg.Chat.ID != t.chatID || !msg.IsCommand() {
					continue
				}
				switch msg.Command() {
				case "status":
					if err := t.Send(ctx, status()); err != nil {
						logger.Warn("[TELEGRAM] status reply: %v", err)
					}
				}
			}
		}
	}()
}

// Log writes notifications to the service log.
type Log struct{}

func NewLog() *Log { return &Log{} }

func (Log) Send(_ context.Context, msg string) error {
	logger.Info("[NOTIFY] %s", msg)
	return nil
}

// SignalConsumer formats dispatched signals and hands them to a notifier.
type SignalConsumer struct {
	n Notifier
}

func NewSignalConsumer(n Notifier) *SignalConsumer {
	return &SignalConsumer{n: n}
}

func (c *SignalConsumer) Name() string {
	if _, ok := c.n.(*Telegram); ok {
		return "telegram"
	}
	return "notify_log"
}

func (c *SignalConsumer) Deliver(ctx context.Context, s models.Signal) error {
	if s.Action == models.ActionNone {
		return nil
	}
	if err := c.n.Send(ctx, FormatSignal(s)); err != nil {
		return fmt.Errorf("notify %s: %w", s.ID, err)
	}
	return nil
}
