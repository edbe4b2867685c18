package providers

import (
	"context"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

// ChatRequest is the normalized request shape handed to an adapter. The
// message list is already sanitized; the adapter only translates it to
// the vendor wire format.
type ChatRequest struct {
	Model       string
	Messages    []models.ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatResult is a successful adapter response.
type ChatResult struct {
	Content    string
	Tokens     int
	StatusCode int
}

// Provider is implemented by each vendor adapter. Chat returns either a
// result or a *Error; adapters never return untyped errors.
type Provider interface {
	Name() models.ProviderName
	Chat(ctx context.Context, key string, req ChatRequest) (*ChatResult, error)
}
