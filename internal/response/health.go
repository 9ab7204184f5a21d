package response

import (
	"sync"
	"time"
)

// HealthTracker keeps per-provider availability across all sessions.
//
// Rules:
// - A failed attempt marks the provider unavailable and starts a cooldown.
// - While the cooldown runs the provider is skipped without any network
//   attempt, so a dead backend costs nothing per call.
// - After the cooldown one real attempt is allowed; only its outcome
//   changes the state.
// - Any success marks the provider available again immediately.
type HealthTracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time

	entries map[string]*healthEntry
}

type healthEntry struct {
	available  bool
	disabledAt time.Time

	lastError     string
	lastFailureAt time.Time
	lastSuccessAt time.Time
}

// ProviderHealth is a point-in-time view of one provider's state.
type ProviderHealth struct {
	Provider  string `json:"provider"`
	Available bool   `json:"available"`

	// RetryAt is when the cooldown ends and the provider may be attempted
	// again. Nil while the provider is available.
	RetryAt *time.Time `json:"retry_at,omitempty"`

	LastError     string     `json:"last_error,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

func NewHealthTracker(cooldown time.Duration) *HealthTracker {
	return &HealthTracker{
		cooldown: cooldown,
		now:      time.Now,
		entries:  make(map[string]*healthEntry),
	}
}

// entryLocked returns the entry for id, creating it as available.
func (t *HealthTracker) entryLocked(id string) *healthEntry {
	e, ok := t.entries[id]
	if !ok {
		e = &healthEntry{available: true}
		t.entries[id] = e
	}
	return e
}

// Eligible reports whether id may be attempted now. Unknown providers are
// eligible; an unavailable provider becomes eligible once its cooldown
// has elapsed, without flipping back to available.
func (t *HealthTracker) Eligible(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(id)
	if e.available {
		return true
	}
	return t.now().Sub(e.disabledAt) >= t.cooldown
}

func (t *HealthTracker) MarkSuccess(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(id)
	e.available = true
	e.lastSuccessAt = t.now()
}

func (t *HealthTracker) MarkFailure(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	e := t.entryLocked(id)
	e.available = false
	e.disabledAt = now
	e.lastFailureAt = now
	if err != nil {
		e.lastError = err.Error()
	}
}

// Status returns the current view for id.
func (t *HealthTracker) Status(id string) ProviderHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(id)

	h := ProviderHealth{
		Provider:  id,
		Available: e.available,
		LastError: e.lastError,
	}
	if !e.available {
		retry := e.disabledAt.Add(t.cooldown)
		h.RetryAt = &retry
	}
	if !e.lastFailureAt.IsZero() {
		ts := e.lastFailureAt
		h.LastFailureAt = &ts
	}
	if !e.lastSuccessAt.IsZero() {
		ts := e.lastSuccessAt
		h.LastSuccessAt = &ts
	}
	return h
}
