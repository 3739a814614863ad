// Package harness holds the per-task Context (spec.md §3) and the
// single-shot shutdown/outcome signalling the server lifecycle races
// against (spec.md §4.8).
package harness

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/harnessd/agentharness/internal/routing"
)

const apiKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateAgentAPIKey returns a randomly generated 32-character alphanumeric
// key, used as the agent's Bearer credential and the git proxy's Basic
// password (spec.md §3/§4.7).
func GenerateAgentAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = apiKeyAlphabet[int(b)%len(apiKeyAlphabet)]
	}
	return string(buf), nil
}

// NewForkBranchName returns a time-ordered UUID (v7) branch name, per
// spec.md §3's "Fork branch" definition.
func NewForkBranchName() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Context is the immutable, per-task value shared by every handler:
// constructed once at task start, read-only thereafter, dropped at task
// end. Nothing in the service may mutate it after construction (spec.md
// §3, §5 "Shared resources").
type Context struct {
	// Routing is the per-task routing table, cloned at construction and
	// never mutated afterward.
	Routing *routing.Table

	// AgentAPIKey is the randomly generated 32-character alphanumeric
	// credential the agent must present as a Bearer token (control API,
	// LLM proxy) and as the Basic password (git proxy).
	AgentAPIKey string

	// TaskDescription is the human task description exposed via
	// GET /agent/task.
	TaskDescription string

	// GitUserName and GitUserEmail are the machine-generated commit
	// identity the in-container agent should configure.
	GitUserName  string
	GitUserEmail string

	// GitRepoURL is the repository URL as the agent will see it: pointing
	// at this host-side git proxy, not the real upstream.
	GitRepoURL string

	// GitBranch is the fork branch name (a time-ordered UUID) the agent
	// is permitted to push to.
	GitBranch string

	// GitRepoPath is the local filesystem path to the repository on the
	// host, used for local git forwarding.
	GitRepoPath string

	// RemoteGit, if non-nil, makes the git proxy forward to an upstream
	// git server using a freshly issued credential instead of spawning
	// local git subprocesses against GitRepoPath (SPEC_FULL.md §4.3a).
	RemoteGit RemoteGitCredential

	// BaseURL is this service's address as reachable from inside the task
	// container (the bridge-gateway address on Linux, loopback elsewhere —
	// spec.md §2), e.g. "http://172.17.0.1:8080". Agent adapters derive
	// every in-container endpoint URL from it.
	BaseURL string
}

// LLMProxyURL is the base URL the in-container agent should point its
// OpenAI-compatible client at (spec.md §4.4).
func (c *Context) LLMProxyURL() string {
	return c.BaseURL + "/api"
}

// AgentAPIURL is the base URL for the agent control API (spec.md §4.6).
func (c *Context) AgentAPIURL() string {
	return c.BaseURL + "/api/agent"
}

// GitProxyURL is the URL the in-container agent should clone/push against
// (spec.md §4.3); the agent authenticates with AgentAPIKey as the Basic
// password.
func (c *Context) GitProxyURL() string {
	return c.BaseURL + "/api/agent/git"
}

// RemoteGitCredential supplies the upstream URL and a freshly issued
// credential for remote git forwarding. internal/github.TokenManager
// satisfies this indirectly via a thin adapter, refreshing the
// installation token with a 60-second safety margin before it expires.
type RemoteGitCredential interface {
	RemoteURL() string
	Token() (string, error)
}

// AllowedRef is the fully-qualified ref the git proxy permits pushes to:
// "refs/heads/<GitBranch>" (spec.md §4.7).
func (c *Context) AllowedRef() string {
	return "refs/heads/" + c.GitBranch
}
