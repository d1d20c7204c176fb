package catalog

import "github.com/inflightops/courier-router/internal/config"

// RequiredCapabilities names the features a request needs from a model.
// The zero value requires nothing.
type RequiredCapabilities struct {
	Streaming        bool
	Tools            bool
	Vision           bool
	StructuredOutput bool
	LogProbs         bool
}

// Match reports whether the model satisfies every requested capability.
// A nil model has no declared capability data and matches trivially.
func (r RequiredCapabilities) Match(model *config.CanonicalModel) bool {
	if model == nil {
		return true
	}
	if r.Streaming && !model.Streaming {
		return false
	}
	if r.Tools && !model.Tools {
		return false
	}
	if r.Vision && !model.Vision {
		return false
	}
	if r.StructuredOutput && !model.StructuredOutput {
		return false
	}
	if r.LogProbs && !model.LogProbs {
		return false
	}
	return true
}

// Any reports whether at least one capability is required.
func (r RequiredCapabilities) Any() bool {
	return r.Streaming || r.Tools || r.Vision || r.StructuredOutput || r.LogProbs
}
