// Package llmproxy implements the OpenAI-shaped LLM reverse proxy
// (spec.md §4.4): /chat/completions, /responses and /models, dispatching
// to one of several upstream providers selected per request via the
// routing table (internal/routing), rewriting credentials and model
// identifiers, and handling both buffered and SSE-streaming responses.
package llmproxy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/harnessd/agentharness/internal/routing"
)

// Handler serves the three LLM proxy endpoints.
type Handler struct {
	router   *routing.Router
	client   *http.Client
	observer Observer
	logger   *log.Logger
}

// NewHandler builds a Handler. client should be built with
// NewUpstreamClient; observer defaults to NoopObserver when nil.
func NewHandler(router *routing.Router, client *http.Client, observer Observer, logger *log.Logger) *Handler {
	if client == nil {
		client = NewUpstreamClient()
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{router: router, client: client, observer: observer, logger: logger}
}

// ChatCompletions serves POST /chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.proxyJSON(w, r, "chat.completions", func(d routing.ProviderDetails) string {
		return d.ChatCompletionsEndpoint
	})
}

// Responses serves POST /responses. The body is an opaque JSON object
// rather than the OpenAI completion shape, but routing/streaming/patch
// behavior mirrors ChatCompletions exactly (spec.md §4.4).
func (h *Handler) Responses(w http.ResponseWriter, r *http.Request) {
	h.proxyJSON(w, r, "responses", func(d routing.ProviderDetails) string {
		return d.ResponsesEndpoint
	})
}

// Models serves GET /models: forward to the default provider's models
// endpoint with that provider's credential and extra headers, no request
// body, relaying status/content-type/body verbatim.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	provider, details := h.router.DefaultDetails()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, details.ModelsEndpoint, nil)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	applyUpstreamHeaders(req, details, false)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Printf("llmproxy: models transport error to provider %s: %v", provider, err)
		http.Error(w, "upstream transport error", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "failed to read upstream response", http.StatusInternalServerError)
		return
	}
	h.relayStatus(w, resp.StatusCode, body, provider)
}

// proxyJSON implements the shared dispatch/stream/buffer logic behind
// /chat/completions and /responses.
func (h *Handler) proxyJSON(w http.ResponseWriter, r *http.Request, endpoint string, endpointURL func(routing.ProviderDetails) string) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	modelSpec, _ := payload["model"].(string)
	provider, details, model := h.router.DetailsForModel(modelSpec)
	if model != "" {
		payload["model"] = model
	}

	stream, _ := payload["stream"].(bool)

	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode upstream payload", http.StatusInternalServerError)
		return
	}

	upstreamURL := endpointURL(details)

	if stream {
		h.observer.Observe(Call{Endpoint: endpoint, Provider: provider, Model: model, Request: payload, Response: nil})
		h.streamUpstream(w, r, upstreamURL, details, body, provider)
		return
	}

	h.bufferUpstream(w, r, upstreamURL, details, body, endpoint, provider, model, payload)
}

func (h *Handler) bufferUpstream(w http.ResponseWriter, r *http.Request, upstreamURL string, details routing.ProviderDetails, body []byte, endpoint, provider, model string, reqPayload map[string]interface{}) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	applyUpstreamHeaders(req, details, true)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Printf("llmproxy: transport error calling provider %s: %v", provider, err)
		http.Error(w, "upstream transport error", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "failed to read upstream response", http.StatusInternalServerError)
		return
	}

	if resp.StatusCode >= 400 {
		h.relayStatus(w, resp.StatusCode, respBody, provider)
		return
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// Not JSON: relay verbatim rather than fail a response the
		// upstream already considered successful.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(respBody)
		return
	}

	if id, ok := parsed["id"]; !ok || id == "" || id == nil {
		parsed["id"] = uuid.New().String()
	}

	patched, err := json.Marshal(parsed)
	if err != nil {
		http.Error(w, "failed to encode patched response", http.StatusInternalServerError)
		return
	}

	h.observer.Observe(Call{Endpoint: endpoint, Provider: provider, Model: model, Request: reqPayload, Response: parsed})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(patched)
}

// streamUpstream pipes the upstream SSE response to the client unmodified,
// flushing at each chunk boundary so the agent sees tokens as they arrive
// (spec.md §4.4/§9 "do not buffer SSE").
func (h *Handler) streamUpstream(w http.ResponseWriter, r *http.Request, upstreamURL string, details routing.ProviderDetails, body []byte, provider string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	applyUpstreamHeaders(req, details, true)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Printf("llmproxy: transport error streaming from provider %s: %v", provider, err)
		http.Error(w, "upstream transport error", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		h.relayStatus(w, resp.StatusCode, respBody, provider)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	reader := bufio.NewReader(resp.Body)
	buf := make([]byte, 4096)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			// Cancellation or upstream close both surface as premature
			// connection close to the client (spec.md §5 "Cancellation").
			return
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

// relayStatus surfaces an upstream 4xx body to the agent as a 400 (so it
// sees validation errors) and logs-but-suppresses a 5xx as a plain 500
// (spec.md §4.4 "Upstream call policy").
func (h *Handler) relayStatus(w http.ResponseWriter, upstreamStatus int, body []byte, provider string) {
	if upstreamStatus >= 500 {
		h.logger.Printf("llmproxy: provider %s returned %d: %s", provider, upstreamStatus, truncate(body, 2000))
		http.Error(w, "upstream server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(body)
}

func applyUpstreamHeaders(req *http.Request, details routing.ProviderDetails, jsonBody bool) {
	req.Header.Set("Authorization", "Bearer "+details.Credential)
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range details.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
