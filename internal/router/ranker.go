package router

import (
	"fmt"
	"sort"
	"time"

	"github.com/inflightops/courier-router/internal/config"
)

// comparator orders two providers: negative ranks a before b.
type comparator func(a, b config.ProviderConfig) int

var comparators = map[string]comparator{
	"free":    compareFree,
	"quota":   compareQuota,
	"quality": compareQuality,
	"latency": compareLatency,
	"key":     compareKey,
}

// defaultTieBreakers is the documented within-tier order: free providers
// first, then remaining quota, quality score, latency, and finally key for
// full determinism.
var defaultTieBreakers = []string{"free", "quota", "quality", "latency", "key"}

func compareFree(a, b config.ProviderConfig) int {
	if a.IsFree == b.IsFree {
		return 0
	}
	if a.IsFree {
		return -1
	}
	return 1
}

func compareQuota(a, b config.ProviderConfig) int {
	qa, qb := quotaOf(a), quotaOf(b)
	switch {
	case qa > qb:
		return -1
	case qa < qb:
		return 1
	}
	return 0
}

func quotaOf(p config.ProviderConfig) float64 {
	if p.EstimatedQuotaRemaining == nil {
		return 100
	}
	return *p.EstimatedQuotaRemaining
}

func compareQuality(a, b config.ProviderConfig) int {
	switch {
	case a.QualityScore > b.QualityScore:
		return -1
	case a.QualityScore < b.QualityScore:
		return 1
	}
	return 0
}

// compareLatency prefers lower average latency; providers with no latency
// observation sort last.
func compareLatency(a, b config.ProviderConfig) int {
	la, lb := a.AverageLatencyMs, b.AverageLatencyMs
	switch {
	case la == nil && lb == nil:
		return 0
	case la == nil:
		return 1
	case lb == nil:
		return -1
	case *la < *lb:
		return -1
	case *la > *lb:
		return 1
	}
	return 0
}

func compareKey(a, b config.ProviderConfig) int {
	switch {
	case a.Key < b.Key:
		return -1
	case a.Key > b.Key:
		return 1
	}
	return 0
}

// Ranker orders candidates by tier and the configured policy. It is a pure
// function of the candidate snapshot and never consults breaker state:
// open providers stay visible here and are skipped at dispatch instead.
type Ranker struct {
	policy string
	chain  []comparator
}

func NewRanker(cfg config.RankingConfig) *Ranker {
	policy := cfg.Policy
	if policy == "" {
		policy = config.RankingPolicyUltraMiser
	}

	var names []string
	switch policy {
	case config.RankingPolicyQuality:
		names = []string{"quality", "key"}
	default:
		policy = config.RankingPolicyUltraMiser
		names = cfg.TieBreakers
		if len(names) == 0 {
			names = defaultTieBreakers
		}
	}

	chain := make([]comparator, 0, len(names)+1)
	hasKey := false
	for _, name := range names {
		cmp, ok := comparators[name]
		if !ok {
			continue
		}
		chain = append(chain, cmp)
		if name == "key" {
			hasKey = true
		}
	}
	// Key order terminates every chain so equal candidates rank
	// deterministically.
	if !hasKey {
		chain = append(chain, compareKey)
	}

	return &Ranker{policy: policy, chain: chain}
}

// Rank returns the candidates in dispatch order: stable sort, tier
// ascending, then the tie-break chain within a tier.
func (r *Ranker) Rank(candidates []config.ProviderConfig) []config.ProviderConfig {
	ranked := make([]config.ProviderConfig, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return r.less(ranked[i], ranked[j])
	})
	return ranked
}

func (r *Ranker) less(a, b config.ProviderConfig) bool {
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	for _, cmp := range r.chain {
		if c := cmp(a, b); c != 0 {
			return c < 0
		}
	}
	return false
}

// costOptimization describes the swap when the ranked pick differs from
// what a quality-only ordering would choose over the same candidates.
func (r *Ranker) costOptimization(ranked []config.ProviderConfig, orgID string) *CostOptimization {
	if r.policy == config.RankingPolicyQuality || len(ranked) < 2 {
		return nil
	}

	chosen := ranked[0]
	quality := qualityPick(ranked)
	if quality.Key == chosen.Key {
		return nil
	}

	savings := quality.CostPer1MTokens - chosen.CostPer1MTokens
	if savings < 0 {
		savings = 0
	}

	return &CostOptimization{
		OrganizationID: orgID,
		FromProvider:   quality.Key,
		ToProvider:     chosen.Key,
		Reason: fmt.Sprintf("preferred %s (free=%t, quota=%.0f%%, quality=%d) over %s (quality=%d)",
			chosen.Key, chosen.IsFree, quotaOf(chosen), chosen.QualityScore, quality.Key, quality.QualityScore),
		SavingsPer1MTokens: savings,
		AppliedAt:          time.Now(),
	}
}

// qualityPick returns the provider a quality-only ordering would choose:
// highest quality score, key as the tie-break.
func qualityPick(candidates []config.ProviderConfig) config.ProviderConfig {
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.QualityScore > best.QualityScore {
			best = p
			continue
		}
		if p.QualityScore == best.QualityScore && p.Key < best.Key {
			best = p
		}
	}
	return best
}
