package router

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/inflightops/courier-router/internal/catalog"
	"github.com/inflightops/courier-router/internal/config"
	"github.com/inflightops/courier-router/internal/telemetry"
)

// ResolveOptions carries the per-request inputs to resolution.
type ResolveOptions struct {
	EndpointKind         EndpointKind
	RequiredCapabilities catalog.RequiredCapabilities
	// OrganizationID attributes cost-optimization events to the caller.
	OrganizationID string
}

// Router ties resolution, ranking, and failover together. Resolution is a
// pure read of the current snapshot; Execute drives dispatch.
type Router struct {
	registry *Registry
	ranker   atomic.Pointer[Ranker]
	executor *Executor
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func New(registry *Registry, ranker *Ranker, executor *Executor, metrics *telemetry.Metrics, logger *slog.Logger) *Router {
	r := &Router{
		registry: registry,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
	}
	r.ranker.Store(ranker)
	return r
}

// Reload swaps in a new catalog snapshot and ranking policy. In-flight
// requests keep the snapshot they resolved against.
func (r *Router) Reload(ranking config.RankingConfig, catalogCfg *config.CatalogConfig) {
	r.registry.Reload(catalogCfg)
	r.ranker.Store(NewRanker(ranking))
	r.logger.Info("routing catalog reloaded",
		"providers", len(catalogCfg.Providers),
		"models", len(catalogCfg.CanonicalModels),
		"aliases", len(catalogCfg.Aliases))
}

// Resolve maps a requested model name to its canonical identity and the
// ranked candidates able to serve it. An empty candidate list is a
// legitimate outcome, not an error: capability mismatches and unknown
// models land here.
func (r *Router) Resolve(requested string, opts ResolveOptions) *Resolution {
	id, model := r.registry.Resolver().Resolve(requested)

	res := &Resolution{
		RequestedModel: requested,
		CanonicalID:    id,
		Model:          model,
		EndpointKind:   opts.EndpointKind,
	}

	if !opts.RequiredCapabilities.Match(model) {
		r.logger.Debug("capability requirements not met",
			"model", id.String(), "requested", requested)
		if r.metrics != nil {
			r.metrics.RecordResolution(id.String(), "capability_mismatch")
		}
		return res
	}

	ranker := r.ranker.Load()
	res.Candidates = ranker.Rank(r.registry.Candidates(id, opts.EndpointKind))
	res.CostOptimization = ranker.costOptimization(res.Candidates, opts.OrganizationID)

	outcome := "ok"
	if len(res.Candidates) == 0 {
		outcome = "no_candidates"
	}
	if r.metrics != nil {
		r.metrics.RecordResolution(id.String(), outcome)
	}
	return res
}

// Execute runs the failover loop over a resolution's candidates.
func (r *Router) Execute(ctx context.Context, res *Resolution, dispatch DispatchFunc) (*DispatchResult, error) {
	return r.executor.Execute(ctx, res, dispatch)
}

// Breakers exposes the breaker set for admin and health surfaces.
func (r *Router) Breakers() *BreakerSet {
	return r.executor.breakers
}

// Registry exposes the provider registry.
func (r *Router) Registry() *Registry {
	return r.registry
}
