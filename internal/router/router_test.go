package router

import (
	"context"
	"testing"

	"github.com/inflightops/courier-router/internal/catalog"
	"github.com/inflightops/courier-router/internal/config"
)

func newFacadeCatalog() *config.CatalogConfig {
	cfg := &config.CatalogConfig{
		Providers: map[string]config.ProviderConfig{
			"fancy": {
				Enabled:         true,
				QualityScore:    9,
				CostPer1MTokens: 10,
				Models:          []string{"openai/gpt-4o"},
			},
			"thrift": {
				Enabled:      true,
				IsFree:       true,
				QualityScore: 4,
				Models:       []string{"openai/gpt-4o"},
			},
		},
		CanonicalModels: []config.CanonicalModel{
			{ID: "openai/gpt-4o", Streaming: true, Tools: true},
		},
		Aliases: map[string]config.AliasConfig{
			"default": {Candidates: []string{"openai/gpt-4o"}},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newFacadeRouter(policy string) *Router {
	executor, _ := newTestExecutor(nil, nil)
	registry := NewRegistry(newFacadeCatalog())
	ranker := NewRanker(config.RankingConfig{Policy: policy})
	return New(registry, ranker, executor, nil, testLogger())
}

func TestRouter_ResolveAlias(t *testing.T) {
	r := newFacadeRouter(config.RankingPolicyUltraMiser)

	res := r.Resolve("default", ResolveOptions{OrganizationID: "org-1"})
	if got := res.CanonicalID.String(); got != "openai/gpt-4o" {
		t.Fatalf("canonical id = %q, want openai/gpt-4o", got)
	}
	if res.Model == nil {
		t.Fatal("expected catalog entry for canonical model")
	}
	if got := rankedKeys(res.Candidates); len(got) != 2 || got[0] != "thrift" || got[1] != "fancy" {
		t.Fatalf("candidates = %v, want [thrift fancy]", got)
	}

	opt := res.CostOptimization
	if opt == nil {
		t.Fatal("expected cost optimization when the free pick outranks the quality pick")
	}
	if opt.FromProvider != "fancy" || opt.ToProvider != "thrift" {
		t.Errorf("optimization %s -> %s, want fancy -> thrift", opt.FromProvider, opt.ToProvider)
	}
	if opt.SavingsPer1MTokens != 10 {
		t.Errorf("savings = %v, want 10", opt.SavingsPer1MTokens)
	}
	if opt.OrganizationID != "org-1" {
		t.Errorf("organization = %q, want org-1", opt.OrganizationID)
	}
}

func TestRouter_ResolveCapabilityMismatch(t *testing.T) {
	r := newFacadeRouter(config.RankingPolicyUltraMiser)

	res := r.Resolve("openai/gpt-4o", ResolveOptions{
		RequiredCapabilities: catalog.RequiredCapabilities{Vision: true},
	})
	if len(res.Candidates) != 0 {
		t.Errorf("expected no candidates for unmet capability, got %v", rankedKeys(res.Candidates))
	}
	if res.CostOptimization != nil {
		t.Error("capability mismatch must not carry a cost optimization")
	}
	// The canonical identity is still resolved for error reporting.
	if res.CanonicalID.String() != "openai/gpt-4o" {
		t.Errorf("canonical id = %q", res.CanonicalID.String())
	}
}

func TestRouter_ResolveUnknownModel(t *testing.T) {
	r := newFacadeRouter(config.RankingPolicyUltraMiser)

	tests := []struct {
		name      string
		requested string
		wantID    string
	}{
		{"unconfigured full id", "meta/unlisted-model", "meta/unlisted-model"},
		{"bare name", "justastring", "unknown/justastring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.requested, ResolveOptions{})
			if got := res.CanonicalID.String(); got != tt.wantID {
				t.Errorf("canonical id = %q, want %q", got, tt.wantID)
			}
			if res.Model != nil {
				t.Error("expected nil catalog entry for unconfigured model")
			}
			if len(res.Candidates) != 0 {
				t.Errorf("expected no candidates, got %v", rankedKeys(res.Candidates))
			}
		})
	}
}

func TestRouter_ReloadSwapsPolicy(t *testing.T) {
	r := newFacadeRouter(config.RankingPolicyUltraMiser)

	before := r.Resolve("openai/gpt-4o", ResolveOptions{})
	if got := rankedKeys(before.Candidates); got[0] != "thrift" {
		t.Fatalf("pre-reload order = %v", got)
	}

	r.Reload(config.RankingConfig{Policy: config.RankingPolicyQuality}, newFacadeCatalog())

	after := r.Resolve("openai/gpt-4o", ResolveOptions{})
	if got := rankedKeys(after.Candidates); got[0] != "fancy" {
		t.Errorf("post-reload order = %v, want fancy first", got)
	}
	if after.CostOptimization != nil {
		t.Error("quality policy must not report cost optimizations")
	}
}

func TestRouter_ExecuteDelegates(t *testing.T) {
	r := newFacadeRouter(config.RankingPolicyUltraMiser)

	res := r.Resolve("default", ResolveOptions{})
	result, err := r.Execute(context.Background(), res, func(_ context.Context, p config.ProviderConfig) (*DispatchResult, error) {
		return &DispatchResult{Provider: p.Key, StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Provider != "thrift" {
		t.Errorf("dispatched to %q, want top-ranked thrift", result.Provider)
	}

	if r.Breakers() == nil || r.Registry() == nil {
		t.Error("expected accessors to expose wired components")
	}
}
