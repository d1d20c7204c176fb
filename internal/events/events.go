// Package events carries the router's notification events. Subscribers run
// in-process; external delivery belongs to whoever subscribes.
package events

import "time"

// Event is implemented by every published event type.
type Event interface {
	EventType() string
}

// ProviderHealthChanged is emitted when a provider's breaker changes state
// or a health probe flips its status.
type ProviderHealthChanged struct {
	Provider         string    `json:"provider_id"`
	Healthy          bool      `json:"is_healthy"`
	HealthScore      float64   `json:"health_score"`
	AverageLatencyMs *float64  `json:"average_latency_ms,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

func (ProviderHealthChanged) EventType() string { return "provider.health_changed" }

// CostOptimizationApplied is emitted when ranking picked a cheaper provider
// than a quality-only ordering would have.
type CostOptimizationApplied struct {
	OrganizationID     string    `json:"organization_id,omitempty"`
	FromProvider       string    `json:"from_provider"`
	ToProvider         string    `json:"to_provider"`
	Reason             string    `json:"reason"`
	SavingsPer1MTokens float64   `json:"savings_per_1m_tokens"`
	AppliedAt          time.Time `json:"applied_at"`
}

func (CostOptimizationApplied) EventType() string { return "cost.optimization_applied" }
