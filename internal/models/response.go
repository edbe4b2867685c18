package models

// AIResponse is the normalized result of a single provider call attempt.
// Produced once per attempt, never mutated afterwards.
type AIResponse struct {
	Provider       ProviderName `json:"provider"`
	Model          string       `json:"model"`
	Content        string       `json:"content"`
	Confidence     float64      `json:"confidence"`
	Tokens         int          `json:"tokens"`
	ResponseTimeMS int64        `json:"response_time_ms"`
	Error          string       `json:"error,omitempty"`
}
