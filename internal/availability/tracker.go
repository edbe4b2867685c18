package availability

import (
	"sync"
	"time"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

// DefaultCooldown is how long a provider stays marked unavailable before
// the tracker optimistically lets traffic through again.
const DefaultCooldown = 5 * time.Minute

// Status is a snapshot of a provider's availability.
type Status struct {
	Available     bool      `json:"available"`
	LastError     string    `json:"last_error,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Tracker is a time-based circuit breaker. Providers flip to unavailable
// on fatal errors (auth, quota) and self-heal after the cooldown window
// regardless of whether the root cause was fixed; callers must tolerate
// an immediate re-failure and mark the provider unavailable again.
//
// Like the rate limit tracker this is process-local, single-writer state
// owned by one service instance and injected by handle.
type Tracker struct {
	mu       sync.RWMutex
	cooldown time.Duration
	status   map[models.ProviderName]Status
	now      func() time.Time
}

// NewTracker creates a tracker with the given cooldown. Zero or negative
// cooldown falls back to the 5-minute default.
func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		cooldown: cooldown,
		status:   make(map[models.ProviderName]Status),
		now:      time.Now,
	}
}

// IsAvailable reports whether the provider should receive traffic. An
// unavailable provider auto-flips back once its cooldown has elapsed.
func (t *Tracker) IsAvailable(provider models.ProviderName) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.status[provider]
	if !ok || st.Available {
		return true
	}

	if t.now().Sub(st.LastCheckedAt) >= t.cooldown {
		st.Available = true
		st.LastCheckedAt = t.now()
		t.status[provider] = st
		return true
	}
	return false
}

// MarkUnavailable flags a provider after a fatal error.
func (t *Tracker) MarkUnavailable(provider models.ProviderName, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status[provider] = Status{
		Available:     false,
		LastError:     reason,
		LastCheckedAt: t.now(),
	}
}

// MarkAvailable clears an unavailable flag after a successful call.
func (t *Tracker) MarkAvailable(provider models.ProviderName) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status[provider] = Status{
		Available:     true,
		LastCheckedAt: t.now(),
	}
}

// Status returns the current snapshot for a provider.
func (t *Tracker) Status(provider models.ProviderName) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.status[provider]
	if !ok {
		return Status{Available: true, LastCheckedAt: t.now()}
	}
	return st
}

// Available filters the given candidates down to providers currently
// accepting traffic, preserving order.
func (t *Tracker) Available(candidates []models.ProviderName) []models.ProviderName {
	out := make([]models.ProviderName, 0, len(candidates))
	for _, p := range candidates {
		if t.IsAvailable(p) {
			out = append(out, p)
		}
	}
	return out
}
