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

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the Google Generative Language API. The API
// key travels as a query parameter and roles use "model" instead of
// "assistant".
type GeminiProvider struct {
	client  *http.Client
	baseURL string
}

func NewGeminiProvider(client *http.Client, baseURL string) *GeminiProvider {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return &GeminiProvider{client: client, baseURL: baseURL}
}

func (p *GeminiProvider) Name() models.ProviderName {
	return models.ProviderGemini
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *GeminiProvider) Chat(ctx context.Context, key string, req ChatRequest) (*ChatResult, error) {
	system, rest := splitSystem(req.Messages)

	gReq := geminiRequest{Contents: make([]geminiContent, 0, len(rest))}
	if system != "" {
		gReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range rest {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		gReq.Contents = append(gReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	gReq.GenerationConfig.Temperature = req.Temperature
	gReq.GenerationConfig.MaxOutputTokens = req.MaxTokens

	body, err := json.Marshal(gReq)
	if err != nil {
		return nil, validationError(string(p.Name()), fmt.Sprintf("marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, req.Model, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, validationError(string(p.Name()), fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(string(p.Name()), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(string(p.Name()), err)
	}

	var parsed geminiResponse
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
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			content += part.Text
		}
	}
	if content == "" {
		return nil, parseError(string(p.Name()), "response contained no candidates")
	}

	return &ChatResult{
		Content:    content,
		Tokens:     parsed.UsageMetadata.TotalTokenCount,
		StatusCode: resp.StatusCode,
	}, nil
}
