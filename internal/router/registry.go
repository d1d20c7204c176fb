package router

import (
	"sort"
	"sync/atomic"

	"github.com/inflightops/courier-router/internal/catalog"
	"github.com/inflightops/courier-router/internal/config"
)

// snapshot is one immutable view of the catalog. Reload and health updates
// replace the whole snapshot; readers never observe partial state.
type snapshot struct {
	resolver  *catalog.Resolver
	providers []config.ProviderConfig // sorted by key
	byKey     map[string]int
}

func newSnapshot(cfg *config.CatalogConfig) *snapshot {
	providers := make([]config.ProviderConfig, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Key < providers[j].Key })

	byKey := make(map[string]int, len(providers))
	for i, p := range providers {
		byKey[p.Key] = i
	}

	return &snapshot{
		resolver:  catalog.NewResolver(cfg),
		providers: providers,
		byKey:     byKey,
	}
}

// Registry holds the current catalog snapshot behind an atomic pointer, so
// resolution never blocks a reload.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

func NewRegistry(cfg *config.CatalogConfig) *Registry {
	r := &Registry{}
	r.snap.Store(newSnapshot(cfg))
	return r
}

// Reload replaces the snapshot wholesale. In-flight resolutions keep the
// snapshot they started with.
func (r *Registry) Reload(cfg *config.CatalogConfig) {
	r.snap.Store(newSnapshot(cfg))
}

// Resolver returns the current snapshot's catalog resolver.
func (r *Registry) Resolver() *catalog.Resolver {
	return r.snap.Load().resolver
}

// Providers returns every provider in the current snapshot, sorted by key.
func (r *Registry) Providers() []config.ProviderConfig {
	snap := r.snap.Load()
	out := make([]config.ProviderConfig, len(snap.providers))
	copy(out, snap.providers)
	return out
}

// Provider looks up one provider by key.
func (r *Registry) Provider(key string) (config.ProviderConfig, bool) {
	snap := r.snap.Load()
	i, ok := snap.byKey[key]
	if !ok {
		return config.ProviderConfig{}, false
	}
	return snap.providers[i], true
}

// Candidates returns the enabled providers serving the canonical model on
// the given endpoint kind, in key order. Ordering by preference is the
// Ranker's job.
func (r *Registry) Candidates(id catalog.ModelID, kind EndpointKind) []config.ProviderConfig {
	snap := r.snap.Load()
	var out []config.ProviderConfig
	for _, p := range snap.providers {
		if !p.Enabled {
			continue
		}
		if !servesModel(p, id) {
			continue
		}
		if !servesKind(p, kind) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// servesModel reports whether the provider lists the canonical model. Full
// canonical ids always match; a bare model path matches only when the
// provider's key is the canonical provider.
func servesModel(p config.ProviderConfig, id catalog.ModelID) bool {
	full := id.String()
	for _, m := range p.Models {
		if m == full {
			return true
		}
		if p.Key == id.Provider && m == id.Path {
			return true
		}
	}
	return false
}

func servesKind(p config.ProviderConfig, kind EndpointKind) bool {
	if len(p.EndpointKinds) == 0 || kind == "" {
		return true
	}
	for _, k := range p.EndpointKinds {
		if EndpointKind(k) == kind {
			return true
		}
	}
	return false
}

// HealthUpdate carries health-monitor observations for one provider. Nil
// fields leave the current value unchanged.
type HealthUpdate struct {
	AverageLatencyMs        *float64
	EstimatedQuotaRemaining *float64
}

// ApplyHealth publishes updated health fields for one provider by swapping
// in a rebuilt snapshot. Retries on conflict with a concurrent reload.
// Returns false when the provider is no longer in the catalog.
func (r *Registry) ApplyHealth(key string, update HealthUpdate) bool {
	for {
		old := r.snap.Load()
		i, ok := old.byKey[key]
		if !ok {
			return false
		}

		next := &snapshot{
			resolver:  old.resolver,
			providers: make([]config.ProviderConfig, len(old.providers)),
			byKey:     old.byKey,
		}
		copy(next.providers, old.providers)

		p := next.providers[i]
		if update.AverageLatencyMs != nil {
			v := *update.AverageLatencyMs
			p.AverageLatencyMs = &v
		}
		if update.EstimatedQuotaRemaining != nil {
			v := *update.EstimatedQuotaRemaining
			if v < 0 {
				v = 0
			}
			if v > 100 {
				v = 100
			}
			p.EstimatedQuotaRemaining = &v
		}
		next.providers[i] = p

		if r.snap.CompareAndSwap(old, next) {
			return true
		}
	}
}
