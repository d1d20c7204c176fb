// Package circuit implements the per-provider circuit breaker used to gate
// dispatch attempts.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // healthy — requests flow
	StateOpen                  // unhealthy — requests blocked
	StateHalfOpen              // probing — trial requests allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// validTransitions is the complete set of legal state edges. Closed is
// reachable from anywhere because Reset is an administrative override.
var validTransitions = map[State][]State{
	StateClosed:   {StateOpen},
	StateOpen:     {StateHalfOpen, StateClosed},
	StateHalfOpen: {StateOpen, StateClosed},
}

// CanTransition reports whether the edge from one state to another is legal.
// Same-state transitions are trivially allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports a rejected forced transition.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal circuit transition %s -> %s", e.From, e.To)
}

// Config holds the thresholds governing a breaker.
type Config struct {
	// FailureRateThreshold is the failure percentage (0-100) that opens
	// the breaker once MinimumRequests have been observed.
	FailureRateThreshold float64
	MinimumRequests      int
	// OpenTimeout is how long an open breaker rejects before probing.
	OpenTimeout time.Duration
	// HalfOpenSuccessThreshold is the number of consecutive successes
	// required to close a half-open breaker.
	HalfOpenSuccessThreshold int
	// HalfOpenMaxProbes caps concurrent trial requests while half-open.
	// Zero means unlimited.
	HalfOpenMaxProbes int
}

func DefaultConfig() Config {
	return Config{
		FailureRateThreshold:     50,
		MinimumRequests:          10,
		OpenTimeout:              30 * time.Second,
		HalfOpenSuccessThreshold: 3,
		HalfOpenMaxProbes:        0,
	}
}

// Breaker is a per-provider circuit breaker. All state is guarded by one
// mutex; getters take the same lock so snapshots are consistent.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state             State
	failureCount      int
	successCount      int
	totalRequests     int
	lastFailureTime   time.Time
	openedAt          time.Time
	halfOpenSuccesses int
	halfOpenInFlight  int
}

func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState returns state, transitioning Open→HalfOpen once the open
// timeout has elapsed. Must be called with mu held.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.OpenTimeout {
		b.apply(StateHalfOpen)
	}
	return b.state
}

// Allow reports whether a request may be dispatched. An open breaker whose
// timeout has elapsed moves to half-open and admits the request.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.cfg.HalfOpenMaxProbes > 0 && b.halfOpenInFlight >= b.cfg.HalfOpenMaxProbes {
			return false
		}
		b.halfOpenInFlight++
		return true
	case StateOpen:
		return false
	}
	return false
}

// RecordSuccess records a successful dispatch. It returns the state after
// recording and whether the call changed it.
func (b *Breaker) RecordSuccess() (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	b.totalRequests++
	b.successCount++

	if b.state == StateHalfOpen {
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessThreshold {
			b.apply(StateClosed)
		}
	}
	return b.state, b.state != prev
}

// RecordFailure records a failed dispatch. It returns the state after
// recording and whether the call changed it.
func (b *Breaker) RecordFailure() (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	b.totalRequests++
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.totalRequests >= b.cfg.MinimumRequests && b.failureRate() >= b.cfg.FailureRateThreshold {
			b.apply(StateOpen)
		}
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.apply(StateOpen)
	}
	return b.state, b.state != prev
}

// Reset forces the breaker closed with all counters zeroed. Administrative
// operation; closing is legal from every state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apply(StateClosed)
}

// ForceTransition moves the breaker to the requested state, rejecting edges
// outside the transition table.
func (b *Breaker) ForceTransition(to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !CanTransition(b.state, to) {
		return &TransitionError{From: b.state, To: to}
	}
	b.apply(to)
	return nil
}

// apply moves to a new state and runs its entry effects. Callers must hold
// mu and have validated the edge.
func (b *Breaker) apply(to State) {
	if b.state == to && to != StateClosed {
		return
	}
	b.state = to
	switch to {
	case StateOpen:
		b.openedAt = time.Now()
		b.halfOpenSuccesses = 0
		b.halfOpenInFlight = 0
	case StateHalfOpen:
		b.halfOpenSuccesses = 0
		b.halfOpenInFlight = 0
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
		b.totalRequests = 0
		b.halfOpenSuccesses = 0
		b.halfOpenInFlight = 0
		b.lastFailureTime = time.Time{}
		b.openedAt = time.Time{}
	}
}

// failureRate returns the failure percentage. Must be called with mu held.
func (b *Breaker) failureRate() float64 {
	if b.totalRequests == 0 {
		return 0
	}
	return float64(b.failureCount) / float64(b.totalRequests) * 100
}

// Metrics is a consistent snapshot of breaker state and counters.
type Metrics struct {
	State             State
	TotalRequests     int
	FailureCount      int
	SuccessCount      int
	FailureRate       float64
	LastFailureTime   time.Time
	OpenedAt          time.Time
	HalfOpenSuccesses int
}

func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Metrics{
		State:             b.currentState(),
		TotalRequests:     b.totalRequests,
		FailureCount:      b.failureCount,
		SuccessCount:      b.successCount,
		FailureRate:       b.failureRate(),
		LastFailureTime:   b.lastFailureTime,
		OpenedAt:          b.openedAt,
		HalfOpenSuccesses: b.halfOpenSuccesses,
	}
}
