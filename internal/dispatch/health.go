package dispatch

import (
	"strings"
	"sync"
	"time"
)

const (
	failureThreshold = 3
	blockBase        = 2 * time.Minute
	blockMax         = 15 * time.Minute
)

type providerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	totalRequests       int64
	totalFailures       int64
}

// HealthTracker blocks a provider temporarily after a failure streak, so a
// walled-off or collapsed upstream fails fast instead of eating the request
// timeout on every call. The clock is injectable for tests.
type HealthTracker struct {
	mu    sync.Mutex
	state map[string]*providerHealth
	now   func() time.Time
}

type HealthOption func(*HealthTracker)

func WithHealthClock(now func() time.Time) HealthOption {
	return func(t *HealthTracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewHealthTracker(opts ...HealthOption) *HealthTracker {
	tracker := &HealthTracker{
		state: make(map[string]*providerHealth),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker
}

// Blocked reports whether the provider is in a block window, with the window
// end and the error that caused it.
func (t *HealthTracker) Blocked(providerName string) (bool, time.Time, string) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return false, time.Time{}, ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state[name]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || t.now().After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

// Record feeds one generation outcome into the tracker. A success clears the
// streak and any block; a failure past the threshold opens a block window
// that doubles with each further failure, capped at blockMax.
func (t *HealthTracker) Record(providerName string, err error) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state[name]
	if state == nil {
		state = &providerHealth{}
		t.state[name] = state
	}
	state.totalRequests++

	now := t.now()
	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()
	if state.consecutiveFailures >= failureThreshold {
		state.blockedUntil = now.Add(blockDuration(state.consecutiveFailures))
	}
}

func blockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - failureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := blockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > blockMax {
			return blockMax
		}
	}
	return d
}
