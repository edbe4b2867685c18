// Package notify pushes operational alerts to a Telegram channel. Alerts
// are fire-and-forget: the request path enqueues and moves on, a worker
// drains the queue and talks to the Telegram API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/queue"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// Sender is the slice of the Telegram bot API the notifier uses.
type Sender interface {
	SendMessage(chatID int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
}

// Notifier queues alert messages for asynchronous delivery.
type Notifier struct {
	sender Sender
	queue  queue.Queue
	chatID int64
	logger *utils.Logger
}

// NewNotifier builds a notifier around an existing queue. The sender is
// usually *gotgbot.Bot from NewBot.
func NewNotifier(sender Sender, q queue.Queue, chatID int64, logger *utils.Logger) *Notifier {
	if logger == nil {
		logger = utils.NewLogger("notify")
	}
	return &Notifier{
		sender: sender,
		queue:  q,
		chatID: chatID,
		logger: logger,
	}
}

// NewTelegramNotifier connects to the Telegram bot API and wraps it in a
// notifier backed by the given queue.
func NewTelegramNotifier(botToken string, chatID int64, q queue.Queue, logger *utils.Logger) (*Notifier, error) {
	bot, err := gotgbot.NewBot(botToken, nil)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return NewNotifier(bot, q, chatID, logger), nil
}

// NotifyAsync enqueues a message without blocking the caller. Delivery
// failures are logged, never surfaced.
func (n *Notifier) NotifyAsync(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := n.queue.Enqueue(ctx, message); err != nil {
		n.logger.Error("failed to enqueue notification", "error", err)
	}
}

// Start drains the queue until the context is cancelled. Run it in its
// own goroutine.
func (n *Notifier) Start(ctx context.Context) {
	n.logger.Info("notification worker started", "chat_id", n.chatID)

	for {
		items, err := n.queue.DequeueWithTimeout(ctx, 10, 1*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				n.logger.Info("notification worker stopped")
				return
			}
			n.logger.Error("failed to dequeue notifications", "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		for _, item := range items {
			n.deliver(item)
		}

		if ctx.Err() != nil {
			n.logger.Info("notification worker stopped")
			return
		}
	}
}

func (n *Notifier) deliver(item interface{}) {
	text := messageText(item)
	if text == "" {
		return
	}

	if _, err := n.sender.SendMessage(n.chatID, text, nil); err != nil {
		n.logger.Error("failed to deliver notification", "error", err)
	}
}

// messageText tolerates both the in-process shape (string) and the
// Redis round-trip shape (json.RawMessage of a JSON string).
func messageText(item interface{}) string {
	switch v := item.(type) {
	case string:
		return v
	case json.RawMessage:
		var text string
		if err := json.Unmarshal(v, &text); err != nil {
			return string(v)
		}
		return text
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// NoopNotifier satisfies the notifier surface when Telegram is not
// configured.
type NoopNotifier struct{}

// NotifyAsync discards the message.
func (NoopNotifier) NotifyAsync(string) {}
