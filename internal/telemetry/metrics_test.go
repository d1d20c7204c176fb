package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/inflightops/courier-router/internal/circuit"
)

func TestNewMetricsWith(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	if m.RequestTotal == nil {
		t.Error("RequestTotal should not be nil")
	}
	if m.ResolutionTotal == nil {
		t.Error("ResolutionTotal should not be nil")
	}
	if m.DispatchAttemptTotal == nil {
		t.Error("DispatchAttemptTotal should not be nil")
	}
	if m.FailoverDepth == nil {
		t.Error("FailoverDepth should not be nil")
	}
	if m.BreakerState == nil {
		t.Error("BreakerState should not be nil")
	}
	if m.RateLimitHitTotal == nil {
		t.Error("RateLimitHitTotal should not be nil")
	}
}

func TestRecordRequest(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordRequest(RequestLabels{
		Org:              "org-1",
		Model:            "openai/gpt-4o",
		Provider:         "openrouter",
		Status:           "200",
		DurationMs:       150,
		OverheadMs:       5,
		PromptTokens:     100,
		CompletionTokens: 50,
	})

	counter, err := m.RequestTotal.GetMetricWithLabelValues("org-1", "openai/gpt-4o", "openrouter", "200")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	counter.Write(&metric)
	if *metric.Counter.Value != 1 {
		t.Errorf("expected request count 1, got %v", *metric.Counter.Value)
	}

	promptCounter, _ := m.TokensTotal.GetMetricWithLabelValues("org-1", "openai/gpt-4o", "prompt")
	promptCounter.Write(&metric)
	if *metric.Counter.Value != 100 {
		t.Errorf("expected 100 prompt tokens, got %v", *metric.Counter.Value)
	}
}

func TestRecordDispatchOutcomes(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordDispatch("groq", "success", 120*time.Millisecond)
	m.RecordSkip("openai", "circuit_open")
	m.RecordSkip("openai", "circuit_open")

	var metric dto.Metric
	success, _ := m.DispatchAttemptTotal.GetMetricWithLabelValues("groq", "success")
	success.Write(&metric)
	if *metric.Counter.Value != 1 {
		t.Errorf("expected 1 success attempt, got %v", *metric.Counter.Value)
	}

	skipped, _ := m.DispatchAttemptTotal.GetMetricWithLabelValues("openai", "circuit_open")
	skipped.Write(&metric)
	if *metric.Counter.Value != 2 {
		t.Errorf("expected 2 circuit_open skips, got %v", *metric.Counter.Value)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordBreakerTransition("groq", circuit.StateOpen)

	gauge, _ := m.BreakerState.GetMetricWithLabelValues("groq")
	var metric dto.Metric
	gauge.Write(&metric)
	if *metric.Gauge.Value != float64(circuit.StateOpen) {
		t.Errorf("expected gauge %v, got %v", float64(circuit.StateOpen), *metric.Gauge.Value)
	}

	counter, _ := m.BreakerTransitionTotal.GetMetricWithLabelValues("groq", "open")
	counter.Write(&metric)
	if *metric.Counter.Value != 1 {
		t.Errorf("expected 1 transition, got %v", *metric.Counter.Value)
	}
}

func TestRecordRateLimitHit(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordRateLimitHit("api_key")
	m.RecordRateLimitHit("provider")
	m.RecordRateLimitHit("provider")

	var metric dto.Metric
	counter, _ := m.RateLimitHitTotal.GetMetricWithLabelValues("provider")
	counter.Write(&metric)
	if *metric.Counter.Value != 2 {
		t.Errorf("expected 2 provider hits, got %v", *metric.Counter.Value)
	}
}
