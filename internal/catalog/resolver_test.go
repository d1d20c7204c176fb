package catalog

import (
	"testing"

	"github.com/inflightops/courier-router/internal/config"
)

func newTestResolver() *Resolver {
	return NewResolver(&config.CatalogConfig{
		CanonicalModels: []config.CanonicalModel{
			{ID: "openai/gpt-4o", Streaming: true, Tools: true, Vision: true},
			{ID: "meta/llama-3.3-70b", Streaming: true, Tools: true},
		},
		Aliases: map[string]config.AliasConfig{
			"fast":    {Candidates: []string{"meta/llama-3.3-70b", "openai/gpt-4o"}},
			"best":    {Candidates: []string{"openai/gpt-4o"}},
			"offmenu": {Candidates: []string{"mistral/mistral-large"}},
		},
	})
}

func TestResolver_AliasSubstitutesFirstCandidate(t *testing.T) {
	r := newTestResolver()

	id, model := r.Resolve("fast")
	if id != ParseModelID("meta/llama-3.3-70b") {
		t.Errorf("Resolve(fast) = %v, want first alias candidate", id)
	}
	if model == nil || model.ID != "meta/llama-3.3-70b" {
		t.Errorf("expected catalog entry for resolved id, got %v", model)
	}
}

func TestResolver_CanonicalPassthrough(t *testing.T) {
	r := newTestResolver()

	id, model := r.Resolve("openai/gpt-4o")
	if id.Provider != "openai" || id.Path != "gpt-4o" {
		t.Errorf("unexpected id %v", id)
	}
	if model == nil {
		t.Fatal("expected catalog entry for canonical id")
	}
	if !model.Vision {
		t.Error("expected capability flags preserved")
	}
}

func TestResolver_UnknownProviderFallback(t *testing.T) {
	r := newTestResolver()

	id, model := r.Resolve("justastring")
	if id.Provider != UnknownProvider || id.Path != "justastring" {
		t.Errorf("Resolve(justastring) = %v, want unknown/justastring", id)
	}
	if model != nil {
		t.Errorf("expected no catalog entry, got %v", model)
	}
}

func TestResolver_AliasToUnconfiguredModel(t *testing.T) {
	r := newTestResolver()

	id, model := r.Resolve("offmenu")
	if id != ParseModelID("mistral/mistral-large") {
		t.Errorf("unexpected id %v", id)
	}
	if model != nil {
		t.Error("alias target outside the catalog should return nil config")
	}
}

func TestResolver_DerivesProviderAndPath(t *testing.T) {
	r := NewResolver(&config.CatalogConfig{
		CanonicalModels: []config.CanonicalModel{{ID: "openai/gpt-4o"}},
	})

	_, model := r.Resolve("openai/gpt-4o")
	if model == nil {
		t.Fatal("expected catalog entry")
	}
	if model.Provider != "openai" || model.ModelPath != "gpt-4o" {
		t.Errorf("expected derived provider/path, got %q %q", model.Provider, model.ModelPath)
	}
}

func TestResolver_ModelsSorted(t *testing.T) {
	r := newTestResolver()

	models := r.Models()
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "meta/llama-3.3-70b" || models[1].ID != "openai/gpt-4o" {
		t.Errorf("expected sorted ids, got %q then %q", models[0].ID, models[1].ID)
	}
}
