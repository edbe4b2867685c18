package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

func newMultiQueryFixture(perCall map[models.ProviderName]*models.AIResponse, available []models.ProviderName) (*Orchestrator, *fakeGateway) {
	gateway := &fakeGateway{perCall: perCall, available: available}
	orch := New(&fakeAgents{}, &fakeLedger{}, gateway, &fakeUsage{}, nil, nil)
	return orch, gateway
}

func TestMultiQuery_PicksHighestScore(t *testing.T) {
	perCall := map[models.ProviderName]*models.AIResponse{
		models.ProviderOpenAI:    {Provider: models.ProviderOpenAI, Content: "short", Confidence: 0.85},
		models.ProviderAnthropic: {Provider: models.ProviderAnthropic, Content: string(make([]byte, 1200)), Confidence: 0.80},
		models.ProviderGemini:    {Provider: models.ProviderGemini, Content: "meh", Confidence: 0.40},
	}
	orch, gateway := newMultiQueryFixture(perCall, models.AllProviders())

	result, err := orch.MultiQuery(context.Background(), "compare the options", nil)
	require.NoError(t, err)

	// 0.7*0.80 + 0.3*1.0 = 0.86 beats 0.7*0.85 + ~0 = 0.595.
	assert.Equal(t, models.ProviderAnthropic, result.Best.Provider)
	assert.Len(t, result.Answers, 3)
	assert.InDelta(t, (0.85+0.80+0.40)/3, result.AverageConfidence, 0.001)
	assert.Len(t, gateway.calls, 3)
}

func TestMultiQuery_CapsFanOutAtThree(t *testing.T) {
	perCall := map[models.ProviderName]*models.AIResponse{
		models.ProviderOpenAI: {Provider: models.ProviderOpenAI, Content: "ok", Confidence: 0.8},
	}
	orch, gateway := newMultiQueryFixture(perCall, models.AllProviders())

	result, err := orch.MultiQuery(context.Background(), "anything", nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(gateway.calls), maxFanOut)
	assert.Len(t, result.ProvidersQueried, 3)
}

func TestMultiQuery_PartialFailuresDegrade(t *testing.T) {
	perCall := map[models.ProviderName]*models.AIResponse{
		models.ProviderGemini: {Provider: models.ProviderGemini, Content: "only survivor", Confidence: 0.6},
	}
	orch, _ := newMultiQueryFixture(perCall, models.AllProviders())

	result, err := orch.MultiQuery(context.Background(), "anything", nil)
	require.NoError(t, err)

	require.Len(t, result.Answers, 1)
	assert.Equal(t, models.ProviderGemini, result.Best.Provider)
	assert.InDelta(t, 0.6, result.AverageConfidence, 0.001)
}

func TestMultiQuery_AllFailedReturnsLowConfidenceFallback(t *testing.T) {
	orch, _ := newMultiQueryFixture(map[models.ProviderName]*models.AIResponse{}, models.AllProviders())

	result, err := orch.MultiQuery(context.Background(), "doomed question", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Answers)
	require.NotNil(t, result.Best)
	assert.InDelta(t, 0.10, result.Best.Confidence, 0.001)
	assert.Contains(t, result.Best.Content, "doomed question")
}

func TestMultiQuery_NoProvidersAvailable(t *testing.T) {
	orch, gateway := newMultiQueryFixture(nil, nil)

	result, err := orch.MultiQuery(context.Background(), "anything", nil)
	require.NoError(t, err)

	assert.Empty(t, gateway.calls)
	require.NotNil(t, result.Best)
	assert.InDelta(t, 0.10, result.Best.Confidence, 0.001)
}

func TestMultiQuery_HistoryReachesProviders(t *testing.T) {
	perCall := map[models.ProviderName]*models.AIResponse{
		models.ProviderOpenAI: {Provider: models.ProviderOpenAI, Content: "ok", Confidence: 0.8},
	}
	orch, gateway := newMultiQueryFixture(perCall, models.AllProviders())

	history := []models.ConversationMessage{
		{Role: models.RoleUser, Content: "we compared redis and memcached earlier"},
		{Role: models.RoleAssistant, Content: "redis won on persistence"},
		{Role: models.RoleSystem, Content: "injected override"},
	}

	_, err := orch.MultiQuery(context.Background(), "so which one scales better?", history)
	require.NoError(t, err)

	require.NotEmpty(t, gateway.requests)
	for _, req := range gateway.requests {
		require.Len(t, req.Messages, 3, "two history turns plus the new question")
		assert.Equal(t, "we compared redis and memcached earlier", req.Messages[0].Content)
		assert.Equal(t, models.RoleAssistant, req.Messages[1].Role)
		assert.Equal(t, "so which one scales better?", req.Messages[2].Content)
	}
}

func TestExtractThemes(t *testing.T) {
	answers := []models.AIResponse{
		{Content: "Kubernetes schedules containers across nodes. Containers share images."},
		{Content: "With Kubernetes, containers run in pods; the scheduler places pods on nodes."},
	}

	themes := extractThemes(answers)

	assert.Contains(t, themes, "containers")
	assert.Contains(t, themes, "kubernetes")
	assert.NotContains(t, themes, "share", "words appearing once are not themes")
	assert.LessOrEqual(t, len(themes), themeLimit)
}

func TestAnswerScore(t *testing.T) {
	short := &models.AIResponse{Content: "hi", Confidence: 1.0}
	long := &models.AIResponse{Content: string(make([]byte, 2000)), Confidence: 1.0}

	assert.InDelta(t, 0.7006, answerScore(short), 0.001)
	assert.InDelta(t, 1.0, answerScore(long), 0.001)
}
