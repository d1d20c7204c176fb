package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/inflightops/courier-router/internal/circuit"
	"github.com/inflightops/courier-router/internal/config"
	"github.com/inflightops/courier-router/internal/events"
	"github.com/inflightops/courier-router/internal/telemetry"
)

// RateGate reports whether a provider has request budget remaining. A nil
// gate admits everything.
type RateGate interface {
	AllowProvider(ctx context.Context, provider config.ProviderConfig) bool
}

// Executor drives failover across ranked candidates: it consults each
// candidate's breaker and rate budget, invokes the caller's dispatch, and
// records outcomes. Attempts are strictly sequential.
type Executor struct {
	breakers    *BreakerSet
	backoff     circuit.BackoffPolicy
	skipBackoff bool
	gate        RateGate
	bus         *events.Bus
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

func NewExecutor(breakers *BreakerSet, routing config.RoutingConfig, gate RateGate, bus *events.Bus, metrics *telemetry.Metrics, logger *slog.Logger) *Executor {
	return &Executor{
		breakers: breakers,
		backoff: circuit.BackoffPolicy{
			Base:       routing.Backoff.BaseDelay,
			Multiplier: routing.Backoff.Multiplier,
			Max:        routing.Backoff.MaxDelay,
		},
		skipBackoff: routing.Backoff.Disabled,
		gate:        gate,
		bus:         bus,
		metrics:     metrics,
		logger:      logger,
	}
}

// Execute dispatches to the resolution's candidates in ranked order and
// returns the first success. Breaker and rate-gate denials skip the
// candidate without counting as an attempt; failures record on the
// candidate's breaker and back off before trying the next. When every
// candidate is skipped or fails, the error is an *ExhaustedError carrying
// the per-candidate outcomes.
func (e *Executor) Execute(ctx context.Context, res *Resolution, dispatch DispatchFunc) (*DispatchResult, error) {
	attempts := make([]AttemptOutcome, 0, len(res.Candidates))
	dispatched := 0

	for _, p := range res.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		breaker := e.breakers.Get(p.Key)
		if !breaker.Allow() {
			e.logger.Debug("skipping provider, circuit open",
				"provider", p.Key, "model", res.CanonicalID.String())
			attempts = append(attempts, AttemptOutcome{Provider: p.Key, Outcome: OutcomeCircuitOpen})
			if e.metrics != nil {
				e.metrics.RecordSkip(p.Key, OutcomeCircuitOpen)
			}
			continue
		}

		if e.gate != nil && !e.gate.AllowProvider(ctx, p) {
			e.logger.Debug("skipping provider, rate limited", "provider", p.Key)
			attempts = append(attempts, AttemptOutcome{Provider: p.Key, Outcome: OutcomeRateLimited})
			if e.metrics != nil {
				e.metrics.RecordSkip(p.Key, OutcomeRateLimited)
				e.metrics.RecordRateLimitHit("provider")
			}
			continue
		}

		dispatched++
		start := time.Now()
		result, err := dispatch(ctx, p)
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				// Cancelled in flight: the aborted attempt records no
				// breaker outcome.
				return nil, ctx.Err()
			}

			state, changed := breaker.RecordFailure()
			e.noteTransition(ctx, p.Key, breaker, state, changed)
			attempts = append(attempts, AttemptOutcome{Provider: p.Key, Outcome: OutcomeFailed, Err: err})
			if e.metrics != nil {
				e.metrics.RecordDispatch(p.Key, "failure", elapsed)
			}
			e.logger.Warn("dispatch failed",
				"provider", p.Key, "model", res.CanonicalID.String(), "error", err)

			if !e.skipBackoff {
				if err := sleepContext(ctx, e.backoff.Delay(dispatched)); err != nil {
					return nil, err
				}
			}
			continue
		}

		state, changed := breaker.RecordSuccess()
		e.noteTransition(ctx, p.Key, breaker, state, changed)
		if e.metrics != nil {
			e.metrics.RecordDispatch(p.Key, "success", elapsed)
			e.metrics.RecordFailover(dispatched)
		}
		if result.Provider == "" {
			result.Provider = p.Key
		}
		if opt := res.CostOptimization; opt != nil && opt.ToProvider == p.Key {
			e.publishCostOptimization(ctx, opt)
		}
		return result, nil
	}

	if e.metrics != nil {
		e.metrics.RecordExhausted(res.CanonicalID.String())
	}
	return nil, &ExhaustedError{Model: res.CanonicalID.String(), Attempts: attempts}
}

// noteTransition publishes breaker state changes as health events.
func (e *Executor) noteTransition(ctx context.Context, provider string, breaker *circuit.Breaker, state circuit.State, changed bool) {
	if !changed {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordBreakerTransition(provider, state)
	}
	m := breaker.Metrics()
	e.bus.Publish(ctx, events.ProviderHealthChanged{
		Provider:    provider,
		Healthy:     state == circuit.StateClosed,
		HealthScore: 100 - m.FailureRate,
		CheckedAt:   time.Now(),
	})
}

func (e *Executor) publishCostOptimization(ctx context.Context, opt *CostOptimization) {
	if e.metrics != nil {
		e.metrics.RecordCostOptimization(opt.FromProvider, opt.ToProvider)
	}
	e.bus.Publish(ctx, events.CostOptimizationApplied{
		OrganizationID:     opt.OrganizationID,
		FromProvider:       opt.FromProvider,
		ToProvider:         opt.ToProvider,
		Reason:             opt.Reason,
		SavingsPer1MTokens: opt.SavingsPer1MTokens,
		AppliedAt:          opt.AppliedAt,
	})
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
