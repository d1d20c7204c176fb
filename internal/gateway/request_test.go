package gateway

import (
	"testing"

	"github.com/inflightops/courier-router/internal/catalog"
)

func TestParseInferenceRequest_InvalidJSON(t *testing.T) {
	if _, _, err := parseInferenceRequest([]byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInferenceRequest_ForwardingBodyKeepsUnknownFields(t *testing.T) {
	raw := []byte(`{"model":"openai/gpt-4o","messages":[{"role":"user","content":"hi"}],"temperature":0.2,"vendor_extension":{"a":1}}`)

	req, body, err := parseInferenceRequest(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Model != "openai/gpt-4o" {
		t.Errorf("model = %q", req.Model)
	}
	if _, ok := body["temperature"]; !ok {
		t.Error("temperature missing from forwarding body")
	}
	if _, ok := body["vendor_extension"]; !ok {
		t.Error("vendor_extension missing from forwarding body")
	}
}

func TestRequiredCapabilities(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want catalog.RequiredCapabilities
	}{
		{
			name: "plain request needs nothing",
			raw:  `{"model":"m","messages":[{"role":"user","content":"hi"}]}`,
			want: catalog.RequiredCapabilities{},
		},
		{
			name: "stream flag",
			raw:  `{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true}`,
			want: catalog.RequiredCapabilities{Streaming: true},
		},
		{
			name: "tools present",
			raw:  `{"model":"m","messages":[],"tools":[{"type":"function","function":{"name":"f"}}]}`,
			want: catalog.RequiredCapabilities{Tools: true},
		},
		{
			name: "empty tools array is not a tools request",
			raw:  `{"model":"m","messages":[],"tools":[]}`,
			want: catalog.RequiredCapabilities{},
		},
		{
			name: "json_schema response format",
			raw:  `{"model":"m","messages":[],"response_format":{"type":"json_schema"}}`,
			want: catalog.RequiredCapabilities{StructuredOutput: true},
		},
		{
			name: "json_object response format is not structured output",
			raw:  `{"model":"m","messages":[],"response_format":{"type":"json_object"}}`,
			want: catalog.RequiredCapabilities{},
		},
		{
			name: "logprobs",
			raw:  `{"model":"m","messages":[],"logprobs":true}`,
			want: catalog.RequiredCapabilities{LogProbs: true},
		},
		{
			name: "openai image part",
			raw:  `{"model":"m","messages":[{"role":"user","content":[{"type":"text","text":"what is this"},{"type":"image_url","image_url":{"url":"https://x/y.png"}}]}]}`,
			want: catalog.RequiredCapabilities{Vision: true},
		},
		{
			name: "anthropic image part",
			raw:  `{"model":"m","messages":[{"role":"user","content":[{"type":"image","source":{"type":"base64"}}]}]}`,
			want: catalog.RequiredCapabilities{Vision: true},
		},
		{
			name: "string content never needs vision",
			raw:  `{"model":"m","messages":[{"role":"user","content":"describe [image_url] syntax"}]}`,
			want: catalog.RequiredCapabilities{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _, err := parseInferenceRequest([]byte(tt.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := req.requiredCapabilities()
			if got != tt.want {
				t.Errorf("requiredCapabilities() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
