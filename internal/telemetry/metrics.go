package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/inflightops/courier-router/internal/circuit"
)

// Metrics holds all Prometheus metrics for the Courier router.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	RouterOverheadMs  *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec

	ResolutionTotal      *prometheus.CounterVec
	DispatchAttemptTotal *prometheus.CounterVec
	DispatchDurationMs   *prometheus.HistogramVec
	FailoverDepth        prometheus.Histogram
	ExhaustedTotal       *prometheus.CounterVec

	BreakerState           *prometheus.GaugeVec
	BreakerTransitionTotal *prometheus.CounterVec
	CostOptimizationTotal  *prometheus.CounterVec
	RateLimitHitTotal      *prometheus.CounterVec

	ProbeTotal        *prometheus.CounterVec
	ProviderLatencyMs *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all Prometheus metrics on the given
// registerer.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_request_total",
			Help: "Total number of requests processed by the router.",
		}, []string{"org", "model", "provider", "status"}),

		RequestDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_request_duration_ms",
			Help:    "Total request duration in milliseconds (including provider latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model", "provider"}),

		RouterOverheadMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_router_overhead_ms",
			Help:    "Router processing overhead in milliseconds (excluding provider latency).",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"org"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"org", "model", "direction"}),

		ResolutionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_resolution_total",
			Help: "Total model resolutions by outcome.",
		}, []string{"model", "outcome"}),

		DispatchAttemptTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_dispatch_attempt_total",
			Help: "Total dispatch attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),

		DispatchDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_dispatch_duration_ms",
			Help:    "Upstream dispatch duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"provider"}),

		FailoverDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_failover_depth",
			Help:    "Number of dispatch attempts needed per request.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),

		ExhaustedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_exhausted_total",
			Help: "Requests that exhausted every candidate provider.",
		}, []string{"model"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courier_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half_open).",
		}, []string{"provider"}),

		BreakerTransitionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_breaker_transition_total",
			Help: "Circuit breaker transitions per provider and target state.",
		}, []string{"provider", "to"}),

		CostOptimizationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_cost_optimization_total",
			Help: "Times a cheaper provider was chosen over the quality pick.",
		}, []string{"from_provider", "to_provider"}),

		RateLimitHitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_rate_limit_hit_total",
			Help: "Requests rejected or skipped due to rate limits.",
		}, []string{"scope"}),

		ProbeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_health_probe_total",
			Help: "Health probe results per provider.",
		}, []string{"provider", "outcome"}),

		ProviderLatencyMs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courier_provider_latency_ms",
			Help: "Smoothed provider latency in milliseconds from health probes.",
		}, []string{"provider"}),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(
		labels.Org, labels.Model, labels.Provider, labels.Status,
	).Inc()

	m.RequestDurationMs.WithLabelValues(
		labels.Model, labels.Provider,
	).Observe(labels.DurationMs)

	m.RouterOverheadMs.WithLabelValues(
		labels.Org,
	).Observe(labels.OverheadMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Org, labels.Model, "prompt",
		).Add(float64(labels.PromptTokens))
	}

	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Org, labels.Model, "completion",
		).Add(float64(labels.CompletionTokens))
	}
}

// RecordResolution records a resolution outcome for a requested model.
func (m *Metrics) RecordResolution(model, outcome string) {
	m.ResolutionTotal.WithLabelValues(model, outcome).Inc()
}

// RecordDispatch records one dispatch attempt and its upstream latency.
func (m *Metrics) RecordDispatch(provider, outcome string, duration time.Duration) {
	m.DispatchAttemptTotal.WithLabelValues(provider, outcome).Inc()
	m.DispatchDurationMs.WithLabelValues(provider).Observe(float64(duration.Milliseconds()))
}

// RecordSkip records a candidate skipped before dispatch.
func (m *Metrics) RecordSkip(provider, reason string) {
	m.DispatchAttemptTotal.WithLabelValues(provider, reason).Inc()
}

// RecordFailover records how many dispatch attempts a request needed.
func (m *Metrics) RecordFailover(attempts int) {
	m.FailoverDepth.Observe(float64(attempts))
}

// RecordExhausted records a request that ran out of candidates.
func (m *Metrics) RecordExhausted(model string) {
	m.ExhaustedTotal.WithLabelValues(model).Inc()
}

// RecordBreakerTransition updates the state gauge and transition counter.
func (m *Metrics) RecordBreakerTransition(provider string, to circuit.State) {
	m.BreakerState.WithLabelValues(provider).Set(float64(to))
	m.BreakerTransitionTotal.WithLabelValues(provider, to.String()).Inc()
}

// RecordCostOptimization counts a cost-optimized provider swap.
func (m *Metrics) RecordCostOptimization(fromProvider, toProvider string) {
	m.CostOptimizationTotal.WithLabelValues(fromProvider, toProvider).Inc()
}

// RecordRateLimitHit counts a rate-limit rejection for the given scope
// ("api_key" or "provider").
func (m *Metrics) RecordRateLimitHit(scope string) {
	m.RateLimitHitTotal.WithLabelValues(scope).Inc()
}

// RecordProbe records a health probe result. Latency is only meaningful on
// healthy probes.
func (m *Metrics) RecordProbe(provider string, healthy bool, latencyMs float64) {
	outcome := "healthy"
	if !healthy {
		outcome = "unhealthy"
	}
	m.ProbeTotal.WithLabelValues(provider, outcome).Inc()
	if healthy {
		m.ProviderLatencyMs.WithLabelValues(provider).Set(latencyMs)
	}
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Org              string
	Model            string
	Provider         string
	Status           string
	DurationMs       float64
	OverheadMs       float64
	PromptTokens     int
	CompletionTokens int
}
