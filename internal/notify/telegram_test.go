package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/queue"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []int64
}

func (f *fakeSender) SendMessage(chatID int64, text string, _ *gotgbot.SendMessageOpts) (*gotgbot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	f.chatIDs = append(f.chatIDs, chatID)
	return &gotgbot.Message{Text: text}, nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestNotifier_DeliversQueuedMessages(t *testing.T) {
	sender := &fakeSender{}
	q := queue.NewMemoryQueue(nil)
	notifier := NewNotifier(sender, q, 42, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Start(ctx)

	notifier.NotifyAsync("providers exhausted for request abc")
	notifier.NotifyAsync("second alert")

	require.Eventually(t, func() bool {
		return len(sender.sent()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "providers exhausted for request abc", sender.sent()[0])
	assert.Equal(t, int64(42), sender.chatIDs[0])
}

func TestNotifier_StopsOnContextCancel(t *testing.T) {
	sender := &fakeSender{}
	q := queue.NewMemoryQueue(nil)
	notifier := NewNotifier(sender, q, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		notifier.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestMessageText_Shapes(t *testing.T) {
	assert.Equal(t, "plain", messageText("plain"))
	assert.Equal(t, "from redis", messageText(json.RawMessage(`"from redis"`)))
	assert.Equal(t, "raw bytes", messageText([]byte("raw bytes")))
}

func TestNoopNotifier(t *testing.T) {
	NoopNotifier{}.NotifyAsync("goes nowhere")
}
