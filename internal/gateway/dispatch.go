package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/inflightops/courier-router/internal/config"
	"github.com/inflightops/courier-router/internal/router"
)

// maxErrorBodyBytes bounds how much of an upstream error body gets read
// for logging.
const maxErrorBodyBytes = 4 * 1024

// Dispatcher forwards OpenAI-compatible JSON bodies to provider endpoints.
// One Dispatcher serves all providers; per-provider settings (endpoint,
// key, headers, timeout) come from the candidate being tried.
type Dispatcher struct {
	client      *http.Client
	timeout     time.Duration
	streamFirst time.Duration
	streamIdle  time.Duration
	logger      *slog.Logger
}

// NewDispatcher wraps an http.Client for provider calls. DefaultTimeout
// bounds buffered attempts when the provider config sets none; the stream
// chunk timeouts guard live bodies instead, since streams run without an
// attempt deadline. The client itself must not carry a Timeout, or long
// streams get cut off mid-body.
func NewDispatcher(client *http.Client, routing config.RoutingConfig, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		client:      client,
		timeout:     routing.DefaultTimeout,
		streamFirst: routing.StreamFirstChunkTimeout,
		streamIdle:  routing.StreamChunkTimeout,
		logger:      logger,
	}
}

// upstreamError marks responses that count against the provider's breaker:
// server errors and provider-side rate limits.
type upstreamError struct {
	provider string
	status   int
	body     string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.provider, e.status, e.body)
}

// Dispatch returns the executor callback for one parsed request. The body
// map is shared across candidates; only the model field differs per
// provider, so each attempt re-marshals with its own value.
func (d *Dispatcher) Dispatch(res *router.Resolution, body map[string]any) router.DispatchFunc {
	streaming, _ := body["stream"].(bool)

	return func(ctx context.Context, p config.ProviderConfig) (*router.DispatchResult, error) {
		sentModel := modelForProvider(p, res)
		body["model"] = sentModel

		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}

		// Streams skip the attempt timeout: the deferred cancel would tear
		// down the body right after a 200 commits it. They run on the
		// caller's context instead.
		timeout := p.Timeout
		if timeout == 0 {
			timeout = d.timeout
		}
		if timeout > 0 && !streaming {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := d.send(ctx, p, p.Endpoint, data)
		if err != nil {
			// A connect failure burns no provider capacity; the fallback
			// endpoint gets one shot within the same attempt.
			if p.FallbackEndpoint != "" && ctx.Err() == nil {
				d.logger.Warn("endpoint unreachable, trying fallback",
					"provider", p.Key, "error", err)
				resp, err = d.send(ctx, p, p.FallbackEndpoint, data)
			}
			if err != nil {
				return nil, fmt.Errorf("dispatch %s: %w", p.Key, err)
			}
		}
		latency := time.Since(start)

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			resp.Body.Close()
			return nil, &upstreamError{provider: p.Key, status: resp.StatusCode, body: string(snippet)}
		}

		result := &router.DispatchResult{
			Provider:   p.Key,
			Model:      sentModel,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Latency:    latency,
		}

		// A streaming 200 commits on the connection; the body proxies live,
		// guarded against upstream stalls.
		if streaming && resp.StatusCode == http.StatusOK {
			result.Streamed = true
			result.Stream = guardStream(resp.Body, d.streamFirst, d.streamIdle)
			return result, nil
		}

		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", p.Key, err)
		}
		result.Body = payload
		result.Usage = parseUsage(payload)
		return result, nil
	}
}

func (d *Dispatcher) send(ctx context.Context, p config.ProviderConfig, endpoint string, data []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	for k, v := range p.CustomHeaders {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	return d.client.Do(req)
}

// stallGuard closes a streaming body when the next chunk takes too long,
// so a stalled upstream fails the blocked Read instead of hanging the
// client forever.
type stallGuard struct {
	body  io.ReadCloser
	timer *time.Timer
	idle  time.Duration
}

// guardStream wraps a live response body with stall detection. first bounds
// the wait for the initial bytes, idle the gap between subsequent reads.
// Zero durations disable the corresponding guard.
func guardStream(body io.ReadCloser, first, idle time.Duration) io.ReadCloser {
	if first <= 0 && idle <= 0 {
		return body
	}
	if first <= 0 {
		first = idle
	}
	g := &stallGuard{body: body, idle: idle}
	g.timer = time.AfterFunc(first, func() { body.Close() })
	return g
}

func (g *stallGuard) Read(p []byte) (int, error) {
	n, err := g.body.Read(p)
	if err != nil {
		g.timer.Stop()
		return n, err
	}
	if g.idle > 0 {
		g.timer.Reset(g.idle)
	} else {
		g.timer.Stop()
	}
	return n, err
}

func (g *stallGuard) Close() error {
	g.timer.Stop()
	return g.body.Close()
}

// modelForProvider picks the model string the provider expects: its native
// path when the provider owns the model, the full canonical id when it is
// an aggregator relaying someone else's.
func modelForProvider(p config.ProviderConfig, res *router.Resolution) string {
	if p.Key == res.CanonicalID.Provider {
		return res.CanonicalID.Path
	}
	return res.CanonicalID.String()
}

// parseUsage pulls token counts out of a response body. OpenAI-style
// prompt/completion names are canonical; Anthropic's input/output names
// fold into them.
func parseUsage(payload []byte) router.Usage {
	var envelope struct {
		Usage struct {
			router.Usage
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return router.Usage{}
	}

	usage := envelope.Usage.Usage
	if usage.PromptTokens == 0 && envelope.Usage.InputTokens > 0 {
		usage.PromptTokens = envelope.Usage.InputTokens
	}
	if usage.CompletionTokens == 0 && envelope.Usage.OutputTokens > 0 {
		usage.CompletionTokens = envelope.Usage.OutputTokens
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}
