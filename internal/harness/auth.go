package harness

import (
	"crypto/subtle"
	"net/http"

	"github.com/harnessd/agentharness/internal/gitproxy"
)

// BearerAuth guards the agent control API and LLM proxy scopes (spec.md
// §4.7): the presented token must byte-for-byte equal the Context's
// AgentAPIKey.
func BearerAuth(ctx *Context, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(ctx.AgentAPIKey)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

// BasicAuth guards the git proxy scope (spec.md §4.7): the username is
// ignored, the password must byte-for-byte equal AgentAPIKey. On success it
// attaches a gitproxy.Behavior — allowed_ref = "refs/heads/<GitBranch>",
// forwarding either to the local repository path or, when Context.RemoteGit
// is configured, to the upstream git server with a freshly issued
// credential (SPEC_FULL.md §4.3a) — before routing continues.
func BasicAuth(ctx *Context, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(ctx.AgentAPIKey)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="agentharness"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		forward := gitproxy.LocalForward(ctx.GitRepoPath)
		if ctx.RemoteGit != nil {
			token, err := ctx.RemoteGit.Token()
			if err != nil {
				http.Error(w, "upstream credential unavailable", http.StatusBadGateway)
				return
			}
			forward = gitproxy.RemoteForward(ctx.RemoteGit.RemoteURL(), "", token)
		}

		behavior := gitproxy.Behavior{
			AllowedRef: ctx.AllowedRef(),
			Forward:    forward,
		}
		next.ServeHTTP(w, r.WithContext(gitproxy.WithBehavior(r.Context(), behavior)))
	})
}
