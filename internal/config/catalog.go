package config

import (
	"fmt"
	"time"
)

// CatalogConfig is the routing catalog: which providers exist, which
// canonical models are known, and which aliases map onto them. It is loaded
// from catalog.yaml and replaced wholesale on reload.
type CatalogConfig struct {
	Providers       map[string]ProviderConfig `yaml:"providers"`
	CanonicalModels []CanonicalModel          `yaml:"canonical_models"`
	Aliases         map[string]AliasConfig    `yaml:"aliases"`
}

// CanonicalModel declares one supported canonical model and its capability
// flags. Provider and ModelPath may be omitted; they are derived from ID.
type CanonicalModel struct {
	ID               string `yaml:"id"`
	Provider         string `yaml:"provider,omitempty"`
	ModelPath        string `yaml:"model_path,omitempty"`
	Streaming        bool   `yaml:"streaming"`
	Tools            bool   `yaml:"tools"`
	Vision           bool   `yaml:"vision"`
	StructuredOutput bool   `yaml:"structured_output"`
	LogProbs         bool   `yaml:"logprobs"`
}

// AliasConfig maps a user-facing model name to an ordered list of canonical
// ids. Resolution substitutes the first candidate.
type AliasConfig struct {
	Candidates []string `yaml:"candidates"`
}

// ProviderConfig describes one upstream backend. A provider is a candidate
// for a canonical model when its Models list contains the full canonical id,
// or the bare model path if the provider's key matches the canonical
// provider.
type ProviderConfig struct {
	Key     string `yaml:"key,omitempty"`
	Type    string `yaml:"type"`
	Enabled bool   `yaml:"enabled"`
	// Tier is the priority bucket; lower tiers are tried first.
	Tier   int      `yaml:"tier"`
	Models []string `yaml:"models"`

	IsFree       bool `yaml:"is_free"`
	QualityScore int  `yaml:"quality_score"`
	// EstimatedQuotaRemaining is a 0-100 percentage, refreshed by the
	// health monitor. Nil means unknown and defaults to 100.
	EstimatedQuotaRemaining *float64 `yaml:"estimated_quota_remaining"`
	AverageLatencyMs        *float64 `yaml:"average_latency_ms"`
	RateLimitRPM            *int     `yaml:"rate_limit_rpm"`
	RateLimitTPM            *int     `yaml:"rate_limit_tpm"`
	// CostPer1MTokens is a blended USD estimate used only for
	// cost-optimization comparisons, never for billing.
	CostPer1MTokens float64 `yaml:"cost_per_1m_tokens"`

	Endpoint         string            `yaml:"endpoint"`
	FallbackEndpoint string            `yaml:"fallback_endpoint,omitempty"`
	APIKey           string            `yaml:"api_key"`
	CustomHeaders    map[string]string `yaml:"custom_headers,omitempty"`
	Timeout          time.Duration     `yaml:"timeout,omitempty"`
	// EndpointKinds restricts which endpoint kinds this provider serves.
	// Empty means all kinds.
	EndpointKinds []string `yaml:"endpoint_kinds,omitempty"`
	// HealthCheckPath overrides the path probed by the health monitor.
	HealthCheckPath string `yaml:"health_check_path,omitempty"`
}

const (
	defaultQualityScore   = 5
	defaultQuotaRemaining = 100.0
)

// ApplyDefaults fills derived and defaulted fields in place: provider keys
// from map keys, quality score 5 when unset (clamped to 1-10), quota 100%
// when unknown (clamped to 0-100).
func (c *CatalogConfig) ApplyDefaults() {
	for name, p := range c.Providers {
		if p.Key == "" {
			p.Key = name
		}
		if p.QualityScore == 0 {
			p.QualityScore = defaultQualityScore
		}
		if p.QualityScore < 1 {
			p.QualityScore = 1
		}
		if p.QualityScore > 10 {
			p.QualityScore = 10
		}
		if p.EstimatedQuotaRemaining == nil {
			quota := defaultQuotaRemaining
			p.EstimatedQuotaRemaining = &quota
		} else {
			if *p.EstimatedQuotaRemaining < 0 {
				*p.EstimatedQuotaRemaining = 0
			}
			if *p.EstimatedQuotaRemaining > 100 {
				*p.EstimatedQuotaRemaining = 100
			}
		}
		c.Providers[name] = p
	}
}

// Validate rejects catalogs that would make routing ambiguous.
func (c *CatalogConfig) Validate() error {
	seen := make(map[string]string, len(c.Providers))
	for name, p := range c.Providers {
		key := p.Key
		if key == "" {
			key = name
		}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("provider key %q declared by both %q and %q", key, prev, name)
		}
		seen[key] = name
	}

	ids := make(map[string]bool, len(c.CanonicalModels))
	for _, m := range c.CanonicalModels {
		if m.ID == "" {
			return fmt.Errorf("canonical model with empty id")
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate canonical model id %q", m.ID)
		}
		ids[m.ID] = true
	}

	for name, alias := range c.Aliases {
		if len(alias.Candidates) == 0 {
			return fmt.Errorf("alias %q has no candidates", name)
		}
	}
	return nil
}
