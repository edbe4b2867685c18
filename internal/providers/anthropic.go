package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic messages API. Unlike OpenAI,
// the system prompt travels in a dedicated top-level field rather than
// as a message.
type AnthropicProvider struct {
	client  *http.Client
	baseURL string
}

func NewAnthropicProvider(client *http.Client, baseURL string) *AnthropicProvider {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicProvider{client: client, baseURL: baseURL}
}

func (p *AnthropicProvider) Name() models.ProviderName {
	return models.ProviderAnthropic
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	System      string               `json:"system,omitempty"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) Chat(ctx context.Context, key string, req ChatRequest) (*ChatResult, error) {
	system, rest := splitSystem(req.Messages)

	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		System:      system,
		Messages:    rest,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, validationError(string(p.Name()), fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, validationError(string(p.Name()), fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(string(p.Name()), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(string(p.Name()), err)
	}

	var parsed anthropicResponse
	if resp.StatusCode != http.StatusOK {
		detail := httpDetail(respBody, func() string {
			_ = json.Unmarshal(respBody, &parsed)
			return parsed.Error.Message
		})
		return nil, classifyStatus(string(p.Name()), resp.StatusCode, detail)
	}

	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, parseError(string(p.Name()), fmt.Sprintf("decode response: %v", err))
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return nil, parseError(string(p.Name()), "response contained no text blocks")
	}

	return &ChatResult{
		Content:    content,
		Tokens:     parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		StatusCode: resp.StatusCode,
	}, nil
}

// splitSystem pulls system messages out of the list; Anthropic rejects
// them inside the messages array.
func splitSystem(messages []models.ChatMessage) (string, []models.ChatMessage) {
	var system string
	rest := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
