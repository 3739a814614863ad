package llmproxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harnessd/agentharness/internal/routing"
)

func newTestRouter(t *testing.T, upstreamURL string) *routing.Router {
	t.Helper()
	router, err := routing.NewRouter(&routing.Table{
		DefaultProvider: "openai",
		Providers: map[string]routing.ProviderDetails{
			"openai": {
				ChatCompletionsEndpoint: upstreamURL + "/v1/chat/completions",
				ResponsesEndpoint:       upstreamURL + "/v1/responses",
				ModelsEndpoint:          upstreamURL + "/v1/models",
				Credential:              "upstream-secret",
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error building router: %v", err)
	}
	return router
}

func TestChatCompletions_PatchesMissingID(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer upstream-secret" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"chat.completion","choices":[]}`))
	}))
	defer upstream.Close()

	h := NewHandler(newTestRouter(t, upstream.URL), nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o","stream":false}`))
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	id, ok := parsed["id"].(string)
	if !ok || id == "" {
		t.Fatalf("expected a patched non-empty id, got %v", parsed["id"])
	}
}

func TestChatCompletions_PreservesExistingID(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-existing","object":"chat.completion"}`))
	}))
	defer upstream.Close()

	h := NewHandler(newTestRouter(t, upstream.URL), nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	var parsed map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if parsed["id"] != "chatcmpl-existing" {
		t.Fatalf("expected existing id to be preserved, got %v", parsed["id"])
	}
}

func TestChatCompletions_RoutesByModelPrefix(t *testing.T) {
	var gotPath string
	anthropicUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if auth := r.Header.Get("Authorization"); auth != "Bearer anthropic-secret" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer anthropicUpstream.Close()

	router, err := routing.NewRouter(&routing.Table{
		DefaultProvider: "openai",
		Providers: map[string]routing.ProviderDetails{
			"openai":    {ChatCompletionsEndpoint: "http://unused.invalid", Credential: "openai-secret"},
			"anthropic": {ChatCompletionsEndpoint: anthropicUpstream.URL + "/v1/messages", Credential: "anthropic-secret"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := NewHandler(router, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"anthropic/claude-3"}`))
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("expected request forwarded to anthropic upstream, got path %q", gotPath)
	}
}

func TestChatCompletions_RelaysUpstream4xxAsBadRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad request body"}`))
	}))
	defer upstream.Close()

	h := NewHandler(newTestRouter(t, upstream.URL), nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletions_SuppressesUpstream5xx(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`internal upstream failure detail`))
	}))
	defer upstream.Close()

	h := NewHandler(newTestRouter(t, upstream.URL), nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "internal upstream failure detail") {
		t.Fatal("upstream 5xx body detail must not leak to the client")
	}
}

func TestModels_ForwardsToDefaultProvider(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
	}))
	defer upstream.Close()

	h := NewHandler(newTestRouter(t, upstream.URL), nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	h.Models(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestChatCompletions_InvalidJSONBody(t *testing.T) {
	h := NewHandler(newTestRouter(t, "http://unused.invalid"), nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletions_ObserverSeesResolvedCall(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1"}`))
	}))
	defer upstream.Close()

	var seen Call
	observer := ObserverFunc(func(c Call) { seen = c })

	h := NewHandler(newTestRouter(t, upstream.URL), nil, observer, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if seen.Provider != "openai" || seen.Model != "gpt-4o" {
		t.Fatalf("unexpected observed call: %+v", seen)
	}
}
