package models

// ProviderName identifies one of the upstream LLM vendors.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGemini    ProviderName = "gemini"
)

// AllProviders lists every supported provider in default fallback order.
func AllProviders() []ProviderName {
	return []ProviderName{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// Valid reports whether the provider name is one we can route to.
func (p ProviderName) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// ProviderLimits holds per-provider request ceilings. MaxTokensCeiling
// is validated before any upstream call; RequestsPerMinute and
// TokensPerMinute feed the in-process rate limit tracker.
type ProviderLimits struct {
	RequestsPerMinute  int
	TokensPerMinute    int
	MaxTokensCeiling   int
	ConfidenceBaseline float64
}

var providerLimits = map[ProviderName]ProviderLimits{
	ProviderOpenAI: {
		RequestsPerMinute:  60,
		TokensPerMinute:    90000,
		MaxTokensCeiling:   16384,
		ConfidenceBaseline: 0.85,
	},
	ProviderAnthropic: {
		RequestsPerMinute:  50,
		TokensPerMinute:    80000,
		MaxTokensCeiling:   8192,
		ConfidenceBaseline: 0.80,
	},
	ProviderGemini: {
		RequestsPerMinute:  60,
		TokensPerMinute:    60000,
		MaxTokensCeiling:   4096,
		ConfidenceBaseline: 0.75,
	},
}

// LimitsFor returns the limits for a provider. Unknown providers get the
// most conservative ceiling so a misconfigured route cannot overrun.
func LimitsFor(p ProviderName) ProviderLimits {
	if limits, ok := providerLimits[p]; ok {
		return limits
	}
	return ProviderLimits{
		RequestsPerMinute:  30,
		TokensPerMinute:    30000,
		MaxTokensCeiling:   4096,
		ConfidenceBaseline: 0.70,
	}
}
