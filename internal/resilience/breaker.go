package resilience

import (
	"sync"
	"time"
)

// BreakerState is one of the three canonical circuit breaker states.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker is a per-key (engine+device) circuit breaker: closed -> open
// after FailureThreshold consecutive failures, open for OpenDuration
// then half-open, half-open admits a single probe whose outcome decides
// the next state. Failures observed while open do not count toward the
// streak — the call never reaches the protected resource.
type Breaker struct {
	FailureThreshold int
	OpenDuration     time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probeInFlight bool
}

// NewBreaker builds a breaker with the spec's defaults (5 consecutive
// failures, 60s open window).
func NewBreaker() *Breaker {
	return &Breaker{
		FailureThreshold: 5,
		OpenDuration:     60 * time.Second,
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed, and transitions open -> half-open
// once OpenDuration has elapsed. Returns false (with KindCircuitOpen implied
// by the caller) when the breaker is open or a half-open probe is already
// in flight.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.OpenDuration {
			b.state = StateHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probeInFlight = false
}

// RecordFailure advances the failure streak (closed) or re-opens the
// breaker immediately (half-open probe failed).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeInFlight = false

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
		b.failures = 0
	case StateClosed:
		b.failures++
		if b.failures >= b.FailureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.failures = 0
		}
	}
}

// State returns the current state, for health probes and tests.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry hands out one Breaker per (engine, device) key, creating it
// lazily on first use.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry builds an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it if necessary.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker()
		r.breakers[key] = b
	}
	return b
}
