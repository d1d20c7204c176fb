package catalog

import (
	"testing"

	"github.com/inflightops/courier-router/internal/config"
)

func TestRequiredCapabilities_Match(t *testing.T) {
	model := &config.CanonicalModel{
		ID:        "openai/gpt-4o",
		Streaming: true,
		Tools:     true,
		Vision:    false,
	}

	tests := []struct {
		name     string
		required RequiredCapabilities
		want     bool
	}{
		{"nothing required", RequiredCapabilities{}, true},
		{"supported capability", RequiredCapabilities{Streaming: true}, true},
		{"two supported capabilities", RequiredCapabilities{Streaming: true, Tools: true}, true},
		{"unsupported vision", RequiredCapabilities{Vision: true}, false},
		{"one unsupported among supported", RequiredCapabilities{Tools: true, LogProbs: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.required.Match(model); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequiredCapabilities_MatchNilModel(t *testing.T) {
	required := RequiredCapabilities{Vision: true, Tools: true}
	if !required.Match(nil) {
		t.Error("unconfigured model should match any requirement")
	}
}

func TestRequiredCapabilities_Any(t *testing.T) {
	if (RequiredCapabilities{}).Any() {
		t.Error("zero value should require nothing")
	}
	if !(RequiredCapabilities{StructuredOutput: true}).Any() {
		t.Error("expected Any to report a set flag")
	}
}
