package harness

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth(t *testing.T) {
	ctx := &Context{AgentAPIKey: "secret-key"}
	handler := BearerAuth(ctx, okHandler())

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer secret-key", http.StatusOK},
		{"wrong token", "Bearer wrong-key", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"missing prefix", "secret-key", http.StatusUnauthorized},
		{"empty token after prefix", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestBasicAuthLocalForward(t *testing.T) {
	ctx := &Context{AgentAPIKey: "secret-key", GitRepoPath: "/workspace/repo", GitBranch: "fork-branch"}
	handler := BasicAuth(ctx, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/agent/git/info/refs", nil)
	req.SetBasicAuth("ignored-user", "secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBasicAuthRejectsBadPassword(t *testing.T) {
	ctx := &Context{AgentAPIKey: "secret-key", GitRepoPath: "/workspace/repo"}
	handler := BasicAuth(ctx, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/agent/git/info/refs", nil)
	req.SetBasicAuth("x", "wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBasicAuthRejectsMissingCredentials(t *testing.T) {
	ctx := &Context{AgentAPIKey: "secret-key", GitRepoPath: "/workspace/repo"}
	handler := BasicAuth(ctx, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/agent/git/info/refs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
