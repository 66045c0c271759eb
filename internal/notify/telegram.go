// Package notify delivers fire-and-forget trade alerts.
package notify

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier delivers one message; implementations never block trading.
type Notifier interface {
	Notify(text string)
}

// Nop discards all messages.
type Nop struct{}

func (Nop) Notify(string) {}

const defaultQueueSize = 256

// Telegram queues messages and drains them with a fixed inter-message
// delay to respect the bot API rate limit. Enqueueing never blocks;
// when the queue is full the message is dropped and logged.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	delay  time.Duration
	queue  chan string
	log    *zap.Logger
}

// NewTelegram authenticates against the bot API.
func NewTelegram(token string, chatID int64, delay time.Duration, log *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		delay:  delay,
		queue:  make(chan string, defaultQueueSize),
		log:    log,
	}, nil
}

// Run drains the queue until ctx is cancelled. Call in its own
// goroutine.
func (t *Telegram) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.queue:
			if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
				t.log.Warn("telegram send failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.delay):
			}
		}
	}
}

// Notify enqueues a message without blocking.
func (t *Telegram) Notify(text string) {
	select {
	case t.queue <- text:
	default:
		t.log.Warn("notification queue full, dropping message")
	}
}
