package circuit

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker() *Breaker {
	return NewBreaker(Config{
		FailureRateThreshold:     50,
		MinimumRequests:          10,
		OpenTimeout:              20 * time.Millisecond,
		HalfOpenSuccessThreshold: 3,
	})
}

func TestBreaker_OpensAtFailureRate(t *testing.T) {
	b := newTestBreaker()

	// 5 successes + 4 failures = 9 requests, under the minimum.
	for i := 0; i < 5; i++ {
		b.RecordSuccess()
	}
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed below minimum requests, got %v", b.State())
	}

	// Tenth request brings the rate to exactly 50%.
	state, changed := b.RecordFailure()
	if state != StateOpen || !changed {
		t.Fatalf("expected transition to open, got %v (changed=%v)", state, changed)
	}
	if b.Allow() {
		t.Error("open breaker should deny requests")
	}
}

func TestBreaker_StaysClosedUnderThreshold(t *testing.T) {
	b := newTestBreaker()

	for i := 0; i < 7; i++ {
		b.RecordSuccess()
	}
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	// 10 requests, 30% failure rate: under the 50% threshold.
	if b.State() != StateClosed {
		t.Errorf("expected closed at 30%% failure rate, got %v", b.State())
	}
	if !b.Allow() {
		t.Error("closed breaker should allow requests")
	}
}

func TestBreaker_OpenTimeoutAdmitsProbe(t *testing.T) {
	b := newTestBreaker()
	openBreaker(b)

	if b.Allow() {
		t.Fatal("expected denial while open")
	}

	time.Sleep(25 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe admitted after open timeout")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("expected half-open after timeout, got %v", b.State())
	}
}

func TestBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	b := newTestBreaker()
	openBreaker(b)
	time.Sleep(25 * time.Millisecond)
	b.Allow()

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("expected still half-open at 2 successes, got %v", b.State())
	}

	state, changed := b.RecordSuccess()
	if state != StateClosed || !changed {
		t.Fatalf("expected closed after threshold successes, got %v (changed=%v)", state, changed)
	}

	m := b.Metrics()
	if m.TotalRequests != 0 || m.FailureCount != 0 || m.SuccessCount != 0 {
		t.Errorf("expected counters reset on close, got %+v", m)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker()
	openBreaker(b)
	time.Sleep(25 * time.Millisecond)
	b.Allow()

	b.RecordSuccess()
	state, changed := b.RecordFailure()
	if state != StateOpen || !changed {
		t.Fatalf("expected reopen on half-open failure, got %v (changed=%v)", state, changed)
	}
	if b.Allow() {
		t.Error("reopened breaker should deny requests")
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := newTestBreaker()
	openBreaker(b)

	b.Reset()

	if b.State() != StateClosed {
		t.Errorf("expected closed after reset, got %v", b.State())
	}
	if m := b.Metrics(); m.TotalRequests != 0 {
		t.Errorf("expected counters zeroed after reset, got %+v", m)
	}
}

func TestBreaker_HalfOpenProbeBound(t *testing.T) {
	b := NewBreaker(Config{
		FailureRateThreshold:     50,
		MinimumRequests:          2,
		OpenTimeout:              time.Millisecond,
		HalfOpenSuccessThreshold: 2,
		HalfOpenMaxProbes:        1,
	})
	b.RecordFailure()
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected first probe admitted")
	}
	if b.Allow() {
		t.Fatal("expected second concurrent probe denied")
	}

	// Finishing the probe frees the slot.
	b.RecordSuccess()
	if !b.Allow() {
		t.Error("expected probe slot released after outcome recorded")
	}
}

func TestBreaker_ForceTransition(t *testing.T) {
	b := newTestBreaker()

	err := b.ForceTransition(StateHalfOpen)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError for closed->half_open, got %v", err)
	}
	if terr.From != StateClosed || terr.To != StateHalfOpen {
		t.Errorf("unexpected edge in error: %v", terr)
	}

	if err := b.ForceTransition(StateOpen); err != nil {
		t.Fatalf("closed->open should be legal: %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("expected open after forced transition, got %v", b.State())
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateClosed, StateOpen, true},
		{StateClosed, StateHalfOpen, false},
		{StateOpen, StateHalfOpen, true},
		{StateOpen, StateClosed, true},
		{StateHalfOpen, StateOpen, true},
		{StateHalfOpen, StateClosed, true},
		{StateClosed, StateClosed, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestBreaker_Metrics(t *testing.T) {
	b := newTestBreaker()
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()

	m := b.Metrics()
	if m.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", m.TotalRequests)
	}
	if m.FailureRate != 25 {
		t.Errorf("FailureRate = %v, want 25", m.FailureRate)
	}
	if m.State != StateClosed {
		t.Errorf("State = %v, want closed", m.State)
	}
	if m.LastFailureTime.IsZero() {
		t.Error("expected last failure time recorded")
	}
}

// openBreaker drives a fresh breaker past its thresholds into Open.
func openBreaker(b *Breaker) {
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
}
