package catalog

import "testing"

func TestParseModelID(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantPath     string
	}{
		{"simple", "openai/gpt-4o", "openai", "gpt-4o"},
		{"nested path", "openrouter/meta-llama/llama-3.3-70b", "openrouter", "meta-llama/llama-3.3-70b"},
		{"no separator", "justastring", "unknown", "justastring"},
		{"empty", "", "unknown", ""},
		{"trailing slash", "openai/", "openai", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseModelID(tt.input)
			if got.Provider != tt.wantProvider {
				t.Errorf("Provider = %q, want %q", got.Provider, tt.wantProvider)
			}
			if got.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Path, tt.wantPath)
			}
		})
	}
}

func TestModelID_String(t *testing.T) {
	id := ParseModelID("anthropic/claude-sonnet-4")
	if got := id.String(); got != "anthropic/claude-sonnet-4" {
		t.Errorf("String() = %q, want round-trip", got)
	}

	id = ParseModelID("bare")
	if got := id.String(); got != "unknown/bare" {
		t.Errorf("String() = %q, want unknown-prefixed", got)
	}
}
