package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider talks to the OpenAI chat completions API.
type OpenAIProvider struct {
	client  *http.Client
	baseURL string
}

// NewOpenAIProvider creates an OpenAI adapter. An empty baseURL selects
// the public API endpoint.
func NewOpenAIProvider(client *http.Client, baseURL string) *OpenAIProvider {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &OpenAIProvider{client: client, baseURL: baseURL}
}

func (p *OpenAIProvider) Name() models.ProviderName {
	return models.ProviderOpenAI
}

type openAIRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends a chat completion request with the caller-supplied key.
func (p *OpenAIProvider) Chat(ctx context.Context, key string, req ChatRequest) (*ChatResult, error) {
	body, err := json.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, validationError(string(p.Name()), fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, validationError(string(p.Name()), fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(string(p.Name()), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(string(p.Name()), err)
	}

	var parsed openAIResponse
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
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, parseError(string(p.Name()), "response contained no content")
	}

	return &ChatResult{
		Content:    parsed.Choices[0].Message.Content,
		Tokens:     parsed.Usage.TotalTokens,
		StatusCode: resp.StatusCode,
	}, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// httpDetail prefers the vendor's structured error message and falls
// back to a truncated raw body.
func httpDetail(body []byte, extract func() string) string {
	if msg := extract(); msg != "" {
		return msg
	}
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
