// Package health runs periodic reachability probes against configured
// providers and feeds the results back into routing: smoothed latency and
// estimated quota flow into the registry, status flips are published as
// events. Probes never touch circuit breakers; those are driven by real
// dispatch outcomes only.
package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/inflightops/courier-router/internal/config"
	"github.com/inflightops/courier-router/internal/events"
	"github.com/inflightops/courier-router/internal/router"
	"github.com/inflightops/courier-router/internal/telemetry"
)

const defaultSmoothing = 0.3

// QuotaSource reports the estimated share of a provider's request budget
// still available, as a percentage. The rate limiter implements this from
// its window counters; a nil source skips quota updates.
type QuotaSource interface {
	RemainingPercent(ctx context.Context, provider config.ProviderConfig) (float64, bool)
}

// Status is the last probe outcome for one provider.
type Status struct {
	Healthy          bool      `json:"healthy"`
	AverageLatencyMs *float64  `json:"average_latency_ms,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Monitor probes every registered provider on an interval and applies the
// observations to the registry snapshot the ranker reads from.
type Monitor struct {
	cfg      config.HealthMonitorConfig
	registry *router.Registry
	client   *http.Client
	quota    QuotaSource
	bus      *events.Bus
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]probeState
}

type probeState struct {
	healthy    bool
	latencyMs  float64
	hasLatency bool
	checkedAt  time.Time
}

func NewMonitor(cfg config.HealthMonitorConfig, registry *router.Registry, quota QuotaSource, bus *events.Bus, metrics *telemetry.Metrics, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		registry: registry,
		client:   &http.Client{},
		quota:    quota,
		bus:      bus,
		metrics:  metrics,
		logger:   logger,
		seen:     make(map[string]probeState),
	}
}

// Run sweeps all providers once immediately, then on every interval tick
// until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if !m.cfg.Enabled {
		m.logger.Info("health monitor disabled")
		return
	}

	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m.logger.Info("health monitor started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep probes every provider in the current snapshot concurrently and
// blocks until all probes finish.
func (m *Monitor) Sweep(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range m.registry.Providers() {
		if probeTarget(p) == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.probe(ctx, p)
		}()
	}
	wg.Wait()
}

// Snapshot returns the last known status per probed provider.
func (m *Monitor) Snapshot() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Status, len(m.seen))
	for key, st := range m.seen {
		s := Status{Healthy: st.healthy, CheckedAt: st.checkedAt}
		if st.hasLatency {
			latency := st.latencyMs
			s.AverageLatencyMs = &latency
		}
		out[key] = s
	}
	return out
}

func (m *Monitor) probe(ctx context.Context, p config.ProviderConfig) {
	if m.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		defer cancel()
	}

	start := time.Now()
	healthy := m.check(ctx, p)
	observedMs := float64(time.Since(start).Milliseconds())

	smoothed, hasLatency, flipped := m.record(p.Key, healthy, observedMs)

	if m.metrics != nil {
		m.metrics.RecordProbe(p.Key, healthy, smoothed)
	}

	update := router.HealthUpdate{}
	if healthy && hasLatency {
		update.AverageLatencyMs = &smoothed
	}
	if m.quota != nil {
		if remaining, ok := m.quota.RemainingPercent(ctx, p); ok {
			update.EstimatedQuotaRemaining = &remaining
		}
	}
	if update.AverageLatencyMs != nil || update.EstimatedQuotaRemaining != nil {
		m.registry.ApplyHealth(p.Key, update)
	}

	if flipped {
		m.logger.Info("provider health changed",
			"provider", p.Key, "healthy", healthy, "latency_ms", observedMs)

		event := events.ProviderHealthChanged{
			Provider:  p.Key,
			Healthy:   healthy,
			CheckedAt: time.Now(),
		}
		if healthy {
			event.HealthScore = 100
		}
		if hasLatency {
			latency := smoothed
			event.AverageLatencyMs = &latency
		}
		m.bus.Publish(ctx, event)
	}
}

// check reports reachability: any response below 500 counts as healthy,
// since auth failures still prove the endpoint is up.
func (m *Monitor) check(ctx context.Context, p config.ProviderConfig) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeTarget(p), nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode < http.StatusInternalServerError
}

// record folds one observation into the provider's state and reports the
// smoothed latency and whether the healthy flag changed. The first
// observation for a provider always counts as a flip.
func (m *Monitor) record(key string, healthy bool, observedMs float64) (latencyMs float64, hasLatency, flipped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, known := m.seen[key]
	next := probeState{healthy: healthy, checkedAt: time.Now()}

	switch {
	case healthy && known && prev.hasLatency:
		alpha := m.cfg.LatencySmoothing
		if alpha <= 0 || alpha > 1 {
			alpha = defaultSmoothing
		}
		next.latencyMs = alpha*observedMs + (1-alpha)*prev.latencyMs
		next.hasLatency = true
	case healthy:
		next.latencyMs = observedMs
		next.hasLatency = true
	default:
		// Keep the last good latency through an outage.
		next.latencyMs = prev.latencyMs
		next.hasLatency = prev.hasLatency
	}

	m.seen[key] = next
	return next.latencyMs, next.hasLatency, !known || prev.healthy != healthy
}

// probeTarget picks the URL to probe: the health check path on the
// endpoint's host when configured, the endpoint itself otherwise.
func probeTarget(p config.ProviderConfig) string {
	if p.Endpoint == "" {
		return ""
	}
	if p.HealthCheckPath == "" {
		return p.Endpoint
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return ""
	}
	u.Path = p.HealthCheckPath
	u.RawQuery = ""
	return u.String()
}
