package orchestrator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/providers"
)

// maxFanOut caps how many providers one multi-query hits.
const maxFanOut = 3

// defaultModels picks the model used per provider when a multi-query
// fans out without an agent context.
var defaultModels = map[models.ProviderName]string{
	models.ProviderOpenAI:    "gpt-4o",
	models.ProviderAnthropic: "claude-3-5-sonnet-20241022",
	models.ProviderGemini:    "gemini-1.5-pro",
}

// MultiQueryResult aggregates parallel provider answers into one view.
type MultiQueryResult struct {
	// Best is the highest scoring answer, or a low-confidence apology
	// when every provider failed.
	Best *models.AIResponse `json:"best"`

	// Answers holds every successful response in provider order.
	Answers []models.AIResponse `json:"answers"`

	// AverageConfidence is the mean over successful answers.
	AverageConfidence float64 `json:"average_confidence"`

	// Themes are recurring terms across the answers, most frequent
	// first. Empty when fewer than two answers agree on anything.
	Themes []string `json:"themes,omitempty"`

	// ProvidersQueried lists the fan-out targets, successful or not.
	ProvidersQueried []models.ProviderName `json:"providers_queried"`
}

// MultiQuery sends the same question, with any prior conversation
// history, to up to three available providers in parallel and
// synthesizes the results. Failures of individual providers degrade the
// answer set instead of failing the call.
func (o *Orchestrator) MultiQuery(ctx context.Context, message string, history []models.ConversationMessage) (*MultiQueryResult, error) {
	candidates := o.gateway.Available()
	if len(candidates) > maxFanOut {
		candidates = candidates[:maxFanOut]
	}

	result := &MultiQueryResult{ProvidersQueried: candidates}
	if len(candidates) == 0 {
		result.Best = fallbackResponse(message)
		return result, nil
	}

	messages := append(historyMessages(history), models.ChatMessage{Role: models.RoleUser, Content: message})

	responses := make([]*models.AIResponse, len(candidates))
	var wg sync.WaitGroup
	for i, provider := range candidates {
		wg.Add(1)
		go func(i int, provider models.ProviderName) {
			defer wg.Done()

			resp, err := o.gateway.Call(ctx, provider, providers.ChatRequest{
				Model:    defaultModels[provider],
				Messages: messages,
			})
			if err != nil {
				o.logger.Warn("multi-query provider failed", "provider", string(provider), "error", err)
				return
			}
			responses[i] = resp
		}(i, provider)
	}
	wg.Wait()

	for _, resp := range responses {
		if resp != nil {
			result.Answers = append(result.Answers, *resp)
		}
	}

	if len(result.Answers) == 0 {
		result.Best = fallbackResponse(message)
		return result, nil
	}

	best := 0
	var confidenceSum float64
	for i := range result.Answers {
		confidenceSum += result.Answers[i].Confidence
		if answerScore(&result.Answers[i]) > answerScore(&result.Answers[best]) {
			best = i
		}
	}
	result.Best = &result.Answers[best]
	result.AverageConfidence = confidenceSum / float64(len(result.Answers))
	result.Themes = extractThemes(result.Answers)

	return result, nil
}

// answerScore ranks answers by confidence with a mild length bonus:
// 0.7 x confidence + 0.3 x min(length/1000, 1).
func answerScore(resp *models.AIResponse) float64 {
	lengthFactor := float64(len(resp.Content)) / 1000
	if lengthFactor > 1 {
		lengthFactor = 1
	}
	return 0.7*resp.Confidence + 0.3*lengthFactor
}

// themeLimit caps how many recurring terms are reported.
const themeLimit = 5

// extractThemes finds words longer than four characters that appear at
// least twice across all answers, ranked by frequency.
func extractThemes(answers []models.AIResponse) []string {
	counts := make(map[string]int)
	for _, answer := range answers {
		for _, word := range strings.Fields(strings.ToLower(answer.Content)) {
			word = strings.Trim(word, ".,;:!?\"'()[]{}`*#")
			if len(word) > 4 {
				counts[word]++
			}
		}
	}

	themes := make([]string, 0, len(counts))
	for word, count := range counts {
		if count >= 2 {
			themes = append(themes, word)
		}
	}

	sort.Slice(themes, func(i, j int) bool {
		if counts[themes[i]] != counts[themes[j]] {
			return counts[themes[i]] > counts[themes[j]]
		}
		return themes[i] < themes[j]
	})

	if len(themes) > themeLimit {
		themes = themes[:themeLimit]
	}
	return themes
}
