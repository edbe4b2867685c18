package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

// fakeClock lets tests move the window forward without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker()
	tracker.now = func() time.Time { return clock.now }
	return tracker, clock
}

func TestTracker_BlocksAtRequestLimit(t *testing.T) {
	tracker, _ := newTestTracker()
	limit := models.LimitsFor(models.ProviderOpenAI).RequestsPerMinute

	for i := 0; i < limit; i++ {
		assert.True(t, tracker.CheckLimit(models.ProviderOpenAI), "request %d should be allowed", i)
		tracker.Record(models.ProviderOpenAI, 10)
	}

	assert.False(t, tracker.CheckLimit(models.ProviderOpenAI))
}

func TestTracker_WindowExpiry(t *testing.T) {
	tracker, clock := newTestTracker()
	limit := models.LimitsFor(models.ProviderGemini).RequestsPerMinute

	for i := 0; i < limit; i++ {
		tracker.Record(models.ProviderGemini, 0)
	}
	assert.False(t, tracker.CheckLimit(models.ProviderGemini))

	// Just inside the window: still blocked.
	clock.advance(59 * time.Second)
	assert.False(t, tracker.CheckLimit(models.ProviderGemini))

	// Past the 60-second mark the window empties out.
	clock.advance(2 * time.Second)
	assert.True(t, tracker.CheckLimit(models.ProviderGemini))

	requests, tokens := tracker.Usage(models.ProviderGemini)
	assert.Equal(t, 0, requests)
	assert.Equal(t, 0, tokens)
}

func TestTracker_TokenLimit(t *testing.T) {
	tracker, _ := newTestTracker()
	limits := models.LimitsFor(models.ProviderAnthropic)

	// A single huge request can exhaust the token budget even though the
	// request count is far below its limit.
	tracker.Record(models.ProviderAnthropic, limits.TokensPerMinute)

	assert.False(t, tracker.CheckLimit(models.ProviderAnthropic))

	requests, tokens := tracker.Usage(models.ProviderAnthropic)
	assert.Equal(t, 1, requests)
	assert.Equal(t, limits.TokensPerMinute, tokens)
}

func TestTracker_ProvidersAreIndependent(t *testing.T) {
	tracker, _ := newTestTracker()
	limit := models.LimitsFor(models.ProviderOpenAI).RequestsPerMinute

	for i := 0; i < limit; i++ {
		tracker.Record(models.ProviderOpenAI, 5)
	}

	assert.False(t, tracker.CheckLimit(models.ProviderOpenAI))
	assert.True(t, tracker.CheckLimit(models.ProviderAnthropic))
	assert.True(t, tracker.CheckLimit(models.ProviderGemini))
}
