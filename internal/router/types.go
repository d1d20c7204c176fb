// Package router resolves requested models to ranked provider candidates
// and drives failover dispatch across them.
package router

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/inflightops/courier-router/internal/catalog"
	"github.com/inflightops/courier-router/internal/config"
)

// EndpointKind names the API surface a request arrived on. Providers may
// restrict which kinds they serve.
type EndpointKind string

const (
	EndpointChatCompletions EndpointKind = "chat_completions"
	EndpointMessages        EndpointKind = "messages"
	EndpointEmbeddings      EndpointKind = "embeddings"
)

// Resolution is the outcome of resolving a requested model: its canonical
// identity and the ranked providers able to serve it. Empty Candidates
// means no eligible provider; that is a result, not an error.
type Resolution struct {
	RequestedModel string
	CanonicalID    catalog.ModelID
	// Model is the catalog entry for the canonical id, nil when the id is
	// not configured.
	Model        *config.CanonicalModel
	EndpointKind EndpointKind
	Candidates   []config.ProviderConfig
	// CostOptimization is set when the top-ranked candidate differs from
	// the quality-only pick.
	CostOptimization *CostOptimization
}

// CostOptimization describes a ranking decision that chose a cheaper
// provider over the quality-only pick. Emitted as an event when the
// dispatch actually lands on the cheaper provider; never persisted.
type CostOptimization struct {
	OrganizationID     string
	FromProvider       string
	ToProvider         string
	Reason             string
	SavingsPer1MTokens float64
	AppliedAt          time.Time
}

// DispatchFunc performs the actual call to one provider. The router never
// speaks a provider protocol itself.
type DispatchFunc func(ctx context.Context, provider config.ProviderConfig) (*DispatchResult, error)

// DispatchResult is a successful dispatch outcome. Streamed results carry
// the live upstream body in Stream instead of Body; the caller owns
// closing it.
type DispatchResult struct {
	Provider   string
	Model      string
	StatusCode int
	Header     map[string][]string
	Body       []byte
	Stream     io.ReadCloser
	Usage      Usage
	Latency    time.Duration
	Streamed   bool
}

// Usage carries token counts reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Attempt outcomes recorded during failover.
const (
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeRateLimited = "rate_limited"
)

// AttemptOutcome records what happened to one candidate during failover.
type AttemptOutcome struct {
	Provider string
	Outcome  string
	Err      error
}

// ExhaustedError reports that every candidate was skipped or failed.
type ExhaustedError struct {
	Model    string
	Attempts []AttemptOutcome
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no providers available for model %s", e.Model)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %s (%v)", a.Provider, a.Outcome, a.Err))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Outcome))
		}
	}
	return fmt.Sprintf("all providers exhausted for model %s: %s", e.Model, strings.Join(parts, "; "))
}
