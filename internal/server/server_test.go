package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harnessd/agentharness/internal/agentapi"
	"github.com/harnessd/agentharness/internal/gitproxy"
	"github.com/harnessd/agentharness/internal/harness"
	"github.com/harnessd/agentharness/internal/llmproxy"
	"github.com/harnessd/agentharness/internal/routing"
)

type noPrompt struct{}

func (noPrompt) Prompt(string) (string, error) { return "", nil }

func testOptions(t *testing.T) (Options, *harness.Context, *harness.Lifecycle) {
	t.Helper()
	router, err := routing.NewRouter(&routing.Table{
		DefaultProvider: "openai",
		Providers: map[string]routing.ProviderDetails{
			"openai": {ChatCompletionsEndpoint: "http://unused.invalid"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hctx := &harness.Context{AgentAPIKey: "secret-key", GitRepoPath: t.TempDir(), GitBranch: "fork-branch"}
	lifecycle := harness.NewLifecycle()

	opts := Options{
		Context:      hctx,
		Lifecycle:    lifecycle,
		GitHandler:   gitproxy.NewHandler(nil, nil),
		LLMHandler:   llmproxy.NewHandler(router, nil, nil, nil),
		AgentHandler: agentapi.NewHandler(hctx, lifecycle, noPrompt{}, nil),
	}
	return opts, hctx, lifecycle
}

func TestNewRouterUnauthenticatedProbes(t *testing.T) {
	opts, _, _ := testOptions(t)
	router := NewRouter(opts)

	for _, path := range []string{"/ready", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestNewRouterRequiresBearerForAgentAPI(t *testing.T) {
	opts, _, _ := testOptions(t)
	router := NewRouter(opts)

	req := httptest.NewRequest(http.MethodGet, "/api/agent/task", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/agent/task", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouterRequiresBasicForGitProxy(t *testing.T) {
	opts, _, _ := testOptions(t)
	router := NewRouter(opts)

	req := httptest.NewRequest(http.MethodGet, "/api/agent/git/info/refs?service=git-upload-pack", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRunCompletesOnOutcomeSignal(t *testing.T) {
	opts, _, lifecycle := testOptions(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := New(ln, opts)

	resultCh := make(chan harness.TaskOutcome, 1)
	go func() {
		resultCh <- Run(context.Background(), ln, srv)
	}()

	lifecycle.SignalOutcome(harness.OutcomeCompleted)

	select {
	case outcome := <-resultCh:
		if outcome != harness.OutcomeCompleted {
			t.Fatalf("outcome = %v, want Completed", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after outcome signal")
	}
}

func TestRunReturnsFailureOnContextCancel(t *testing.T) {
	opts, _, _ := testOptions(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := New(ln, opts)
	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan harness.TaskOutcome, 1)
	go func() {
		resultCh <- Run(ctx, ln, srv)
	}()

	cancel()

	select {
	case outcome := <-resultCh:
		if outcome != harness.OutcomeFailure {
			t.Fatalf("outcome = %v, want Failure", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
