package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/inflightops/courier-router/internal/config"
)

// ProviderGate enforces per-provider request and token budgets. The
// executor consults it before dispatching; a denial skips the candidate
// instead of failing the request. It also reports window usage so the
// health monitor can estimate remaining quota.
type ProviderGate struct {
	limiter *Limiter
	tokens  *TokenTracker
	logger  *slog.Logger
}

func NewProviderGate(limiter *Limiter, tokens *TokenTracker, logger *slog.Logger) *ProviderGate {
	return &ProviderGate{limiter: limiter, tokens: tokens, logger: logger}
}

func providerRPMKey(key string) string {
	return "provider:rpm:" + key
}

// AllowProvider reports whether the provider has request and token budget
// left in the current minute. Providers without configured limits always
// pass.
func (g *ProviderGate) AllowProvider(ctx context.Context, p config.ProviderConfig) bool {
	if p.RateLimitRPM != nil && *p.RateLimitRPM > 0 {
		result, err := g.limiter.Check(ctx, providerRPMKey(p.Key), int64(*p.RateLimitRPM), time.Minute)
		if err == nil && !result.Allowed {
			g.logger.Debug("provider request budget exhausted",
				"provider", p.Key, "rpm_limit", *p.RateLimitRPM)
			return false
		}
	}

	if p.RateLimitTPM != nil && *p.RateLimitTPM > 0 {
		result, err := g.tokens.CheckTokens(ctx, p.Key, int64(*p.RateLimitTPM))
		if err == nil && !result.Allowed {
			g.logger.Debug("provider token budget exhausted",
				"provider", p.Key, "tpm_limit", *p.RateLimitTPM, "used", result.Used)
			return false
		}
	}

	return true
}

// RecordTokens charges a completed response's token usage against the
// provider's window. Errors are logged, not surfaced; the budget is
// advisory.
func (g *ProviderGate) RecordTokens(ctx context.Context, provider string, tokens int) {
	if tokens <= 0 {
		return
	}
	if err := g.tokens.RecordTokens(ctx, provider, int64(tokens)); err != nil {
		g.logger.Warn("token usage not recorded", "provider", provider, "error", err)
	}
}

// RemainingPercent estimates the share of the provider's RPM budget still
// available in the current window. Providers without an RPM limit report
// no estimate.
func (g *ProviderGate) RemainingPercent(ctx context.Context, p config.ProviderConfig) (float64, bool) {
	if p.RateLimitRPM == nil || *p.RateLimitRPM <= 0 {
		return 0, false
	}

	used, err := g.limiter.Usage(ctx, providerRPMKey(p.Key), time.Minute)
	if err != nil {
		return 0, false
	}

	remaining := 100 * (1 - float64(used)/float64(*p.RateLimitRPM))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
