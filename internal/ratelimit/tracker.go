package ratelimit

import (
	"sync"
	"time"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

const window = time.Minute

// event is one recorded occurrence inside the sliding window. Token
// usage is stored as (timestamp, count) pairs; only the aggregate count
// within the window is observable, so collapsing per-token appends into
// one entry is equivalent and much cheaper.
type event struct {
	at    time.Time
	count int
}

// Tracker keeps per-provider sliding windows of requests and token usage
// over the trailing 60 seconds. State is process-local by design: under
// multi-instance deployment each process keeps an independent window and
// the resulting drift is an accepted limitation.
//
// Constructed once at startup and injected wherever needed; there is no
// package-level singleton.
type Tracker struct {
	mu       sync.Mutex
	requests map[models.ProviderName][]event
	tokens   map[models.ProviderName][]event
	now      func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		requests: make(map[models.ProviderName][]event),
		tokens:   make(map[models.ProviderName][]event),
		now:      time.Now,
	}
}

// CheckLimit reports whether another request to the provider is allowed
// right now. It prunes entries older than 60 seconds first, then compares
// the remaining request and token counts against the provider's
// per-minute limits.
func (t *Tracker) CheckLimit(provider models.ProviderName) bool {
	limits := models.LimitsFor(provider)

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-window)
	t.requests[provider] = prune(t.requests[provider], cutoff)
	t.tokens[provider] = prune(t.tokens[provider], cutoff)

	if total(t.requests[provider]) >= limits.RequestsPerMinute {
		return false
	}
	if total(t.tokens[provider]) >= limits.TokensPerMinute {
		return false
	}
	return true
}

// Record registers one completed request and its token usage.
func (t *Tracker) Record(provider models.ProviderName, tokenCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.requests[provider] = append(t.requests[provider], event{at: now, count: 1})
	if tokenCount > 0 {
		t.tokens[provider] = append(t.tokens[provider], event{at: now, count: tokenCount})
	}
}

// Usage returns the current request and token counts within the window.
func (t *Tracker) Usage(provider models.ProviderName) (requests, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-window)
	t.requests[provider] = prune(t.requests[provider], cutoff)
	t.tokens[provider] = prune(t.tokens[provider], cutoff)

	return total(t.requests[provider]), total(t.tokens[provider])
}

func prune(events []event, cutoff time.Time) []event {
	// Events are appended in time order; find the first one still inside
	// the window and drop everything before it.
	i := 0
	for i < len(events) && !events[i].at.After(cutoff) {
		i++
	}
	if i == 0 {
		return events
	}
	return events[i:]
}

func total(events []event) int {
	sum := 0
	for _, e := range events {
		sum += e.count
	}
	return sum
}
