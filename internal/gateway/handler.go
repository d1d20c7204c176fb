package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inflightops/courier-router/internal/auth"
	"github.com/inflightops/courier-router/internal/circuit"
	"github.com/inflightops/courier-router/internal/config"
	"github.com/inflightops/courier-router/internal/health"
	"github.com/inflightops/courier-router/internal/httputil"
	"github.com/inflightops/courier-router/internal/ratelimit"
	"github.com/inflightops/courier-router/internal/router"
	"github.com/inflightops/courier-router/internal/telemetry"
)

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	router     *router.Router
	catalog    func() *config.CatalogConfig
	monitor    *health.Monitor
	gate       *ratelimit.ProviderGate
	dispatcher *Dispatcher
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

func NewHandler(rt *router.Router, catalog func() *config.CatalogConfig, monitor *health.Monitor, gate *ratelimit.ProviderGate, dispatcher *Dispatcher, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		router:     rt,
		catalog:    catalog,
		monitor:    monitor,
		gate:       gate,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// ChatCompletions handles POST /v1/chat/completions
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.handleInference(w, r, router.EndpointChatCompletions)
}

// Messages handles POST /v1/messages
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	h.handleInference(w, r, router.EndpointMessages)
}

// Embeddings handles POST /v1/embeddings
func (h *Handler) Embeddings(w http.ResponseWriter, r *http.Request) {
	h.handleInference(w, r, router.EndpointEmbeddings)
}

func (h *Handler) handleInference(w http.ResponseWriter, r *http.Request, kind router.EndpointKind) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	req, body, err := parseInferenceRequest(raw)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	if req.Model == "" {
		httputil.WriteBadRequestError(w, reqID, "model is required")
		return
	}
	if kind == router.EndpointEmbeddings {
		if _, ok := body["input"]; !ok {
			httputil.WriteBadRequestError(w, reqID, "input is required")
			return
		}
	} else if len(req.Messages) == 0 {
		httputil.WriteBadRequestError(w, reqID, "messages is required")
		return
	}

	res := h.router.Resolve(req.Model, router.ResolveOptions{
		EndpointKind:         kind,
		RequiredCapabilities: req.requiredCapabilities(),
		OrganizationID:       authInfo.OrganizationID,
	})

	// Keys scoped to a model list see everything else as nonexistent.
	if !authInfo.ModelAllowed(req.Model, res.CanonicalID.String()) {
		httputil.WriteModelNotFoundError(w, reqID, fmt.Sprintf("The model %q does not exist or you do not have access to it", req.Model))
		return
	}

	if len(res.Candidates) == 0 {
		if res.Model == nil {
			httputil.WriteModelNotFoundError(w, reqID, fmt.Sprintf("The model %q does not exist or you do not have access to it", req.Model))
			return
		}
		httputil.WriteServiceUnavailableError(w, reqID, "No provider currently serves "+res.CanonicalID.String())
		return
	}

	result, err := h.router.Execute(r.Context(), res, h.dispatcher.Dispatch(res, body))
	if err != nil {
		var exhausted *router.ExhaustedError
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			// Client is gone; nothing left to write.
			h.logger.Info("request abandoned",
				"request_id", reqID,
				"model_requested", req.Model,
				"org_id", authInfo.OrganizationID)
		case errors.As(err, &exhausted):
			h.logger.Error("all providers exhausted",
				"request_id", reqID,
				"model_requested", req.Model,
				"attempts", len(exhausted.Attempts),
				"org_id", authInfo.OrganizationID)
			httputil.WriteServiceUnavailableError(w, reqID, err.Error())
		default:
			h.logger.Error("dispatch failed", "request_id", reqID, "error", err)
			httputil.WriteServiceUnavailableError(w, reqID, "Provider request failed")
		}
		return
	}

	if result.Streamed {
		h.logger.Info("streaming started",
			"request_id", reqID,
			"model_requested", req.Model,
			"provider", result.Provider,
			"org_id", authInfo.OrganizationID)
		streamSSE(w, reqID, result.Provider, result.Stream, h.logger)
		return
	}

	if h.gate != nil && result.Usage.TotalTokens > 0 {
		h.gate.RecordTokens(r.Context(), result.Provider, result.Usage.TotalTokens)
	}

	totalDuration := time.Since(receivedAt)
	overheadMs := float64((totalDuration - result.Latency).Milliseconds())
	if overheadMs < 0 {
		overheadMs = 0
	}

	h.logger.Info("request completed",
		"request_id", reqID,
		"model_requested", req.Model,
		"model_served", result.Model,
		"provider", result.Provider,
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
		"total_tokens", result.Usage.TotalTokens,
		"duration_ms", totalDuration.Milliseconds(),
		"status_code", result.StatusCode,
		"stream", false,
		"org_id", authInfo.OrganizationID,
		"team_id", authInfo.TeamID,
	)

	if h.metrics != nil {
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Org:              authInfo.OrganizationID,
			Model:            req.Model,
			Provider:         result.Provider,
			Status:           strconv.Itoa(result.StatusCode),
			DurationMs:       float64(totalDuration.Milliseconds()),
			OverheadMs:       overheadMs,
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
		})
	}

	contentType := result.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	cat := h.catalog()
	models := make([]modelObject, 0, len(cat.CanonicalModels)+len(cat.Aliases))
	for _, m := range cat.CanonicalModels {
		if !authInfo.ModelAllowed(m.ID) {
			continue
		}
		models = append(models, modelObject{ID: m.ID, Object: "model", OwnedBy: "courier"})
	}
	for name := range cat.Aliases {
		if !authInfo.ModelAllowed(name) {
			continue
		}
		models = append(models, modelObject{ID: name, Object: "model", OwnedBy: "courier"})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelListResponse{
		Object: "list",
		Data:   models,
	})
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

// providerStatus is one row of the admin health listing: static catalog
// facts joined with breaker counters and the monitor's last probe.
type providerStatus struct {
	Key                     string     `json:"key"`
	Tier                    int        `json:"tier"`
	Enabled                 bool       `json:"enabled"`
	BreakerState            string     `json:"breaker_state"`
	FailureRate             float64    `json:"failure_rate"`
	Healthy                 *bool      `json:"healthy,omitempty"`
	AverageLatencyMs        *float64   `json:"average_latency_ms,omitempty"`
	EstimatedQuotaRemaining *float64   `json:"estimated_quota_remaining,omitempty"`
	CheckedAt               *time.Time `json:"checked_at,omitempty"`
}

// ProvidersStatus handles GET /admin/v1/providers/health
func (h *Handler) ProvidersStatus(w http.ResponseWriter, r *http.Request) {
	breakers := h.router.Breakers().Snapshot()
	var probes map[string]health.Status
	if h.monitor != nil {
		probes = h.monitor.Snapshot()
	}

	providers := h.router.Registry().Providers()
	out := make([]providerStatus, 0, len(providers))
	for _, p := range providers {
		entry := providerStatus{
			Key:                     p.Key,
			Tier:                    p.Tier,
			Enabled:                 p.Enabled,
			BreakerState:            circuit.StateClosed.String(),
			EstimatedQuotaRemaining: p.EstimatedQuotaRemaining,
			AverageLatencyMs:        p.AverageLatencyMs,
		}
		if m, ok := breakers[p.Key]; ok {
			entry.BreakerState = m.State.String()
			entry.FailureRate = m.FailureRate
		}
		if st, ok := probes[p.Key]; ok {
			healthy := st.Healthy
			checked := st.CheckedAt
			entry.Healthy = &healthy
			entry.CheckedAt = &checked
			if st.AverageLatencyMs != nil {
				entry.AverageLatencyMs = st.AverageLatencyMs
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"providers": out})
}

// ResetBreaker handles POST /admin/v1/providers/{provider}/breaker/reset
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	key := chi.URLParam(r, "provider")

	if _, ok := h.router.Registry().Provider(key); !ok {
		httputil.WriteError(w, reqID, http.StatusNotFound, "invalid_request_error", "provider_not_found", fmt.Sprintf("No provider named %q", key))
		return
	}

	h.router.Breakers().Reset(key)
	h.logger.Info("breaker reset", "provider", key, "request_id", reqID)
	w.WriteHeader(http.StatusNoContent)
}
