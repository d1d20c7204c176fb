package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/inflightops/courier-router/internal/catalog"
)

// inferenceRequest is the typed view of an OpenAI-compatible request body.
// Only the fields routing cares about are declared; the full body is
// forwarded from the raw bytes, so unknown fields survive untouched.
type inferenceRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Tools          json.RawMessage `json:"tools"`
	ResponseFormat *responseFormat `json:"response_format"`
	LogProbs       bool            `json:"logprobs"`
}

// message content is either a plain string or an array of typed parts;
// RawMessage defers that decision to capability derivation.
type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type contentPart struct {
	Type string `json:"type"`
}

// parseInferenceRequest decodes the typed routing view plus the generic
// body map used for forwarding.
func parseInferenceRequest(raw []byte) (*inferenceRequest, map[string]any, error) {
	var req inferenceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &req, body, nil
}

// requiredCapabilities derives what the request demands from a serving
// model: streaming, tool calls, image inputs, structured output, logprobs.
func (req *inferenceRequest) requiredCapabilities() catalog.RequiredCapabilities {
	caps := catalog.RequiredCapabilities{
		Streaming: req.Stream,
		LogProbs:  req.LogProbs,
	}

	var tools []json.RawMessage
	if len(req.Tools) > 0 && json.Unmarshal(req.Tools, &tools) == nil && len(tools) > 0 {
		caps.Tools = true
	}

	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		caps.StructuredOutput = true
	}

	for _, m := range req.Messages {
		if hasImagePart(m.Content) {
			caps.Vision = true
			break
		}
	}

	return caps
}

// hasImagePart reports whether a message content value is a part array
// containing an image. Plain string content never carries images.
func hasImagePart(content json.RawMessage) bool {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}

	var parts []contentPart
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return false
	}
	for _, p := range parts {
		// "image_url" is the OpenAI part type, "image" the Anthropic one.
		if p.Type == "image_url" || p.Type == "image" {
			return true
		}
	}
	return false
}
