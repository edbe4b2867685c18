package providers

import (
	"strings"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

var hedgingPhrases = []string{
	"i'm not sure",
	"i am not sure",
	"not sure",
	"might be",
	"uncertain",
	"i don't know",
	"i do not know",
	"it's unclear",
	"hard to say",
}

// ScoreConfidence estimates answer quality from surface features. It is
// a heuristic, not a calibrated probability: start from the provider's
// baseline, reward length and structure, penalize hedging language, and
// clamp to [0.10, 0.95].
func ScoreConfidence(provider models.ProviderName, content string) float64 {
	score := models.LimitsFor(provider).ConfidenceBaseline

	if len(content) > 500 {
		score += 0.05
	}
	if hasStructure(content) {
		score += 0.05
	}
	if hasHedging(content) {
		score -= 0.10
	}

	if score < 0.10 {
		score = 0.10
	}
	if score > 0.95 {
		score = 0.95
	}
	return score
}

// hasStructure detects markdown-style formatting: headings, list items,
// or fenced code blocks.
func hasStructure(content string) bool {
	if strings.Contains(content, "```") {
		return true
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "- ") ||
			strings.HasPrefix(trimmed, "* ") ||
			startsWithOrderedItem(trimmed) {
			return true
		}
	}
	return false
}

func startsWithOrderedItem(line string) bool {
	if len(line) < 3 {
		return false
	}
	return line[0] >= '0' && line[0] <= '9' && line[1] == '.' && line[2] == ' '
}

func hasHedging(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range hedgingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
