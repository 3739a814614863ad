// Package codex adapts OpenAI's Codex CLI to the agent.Agent interface.
package codex

import (
	"github.com/harnessd/agentharness/internal/agent"
	"github.com/harnessd/agentharness/internal/harness"
)

// DefaultImage is the default container image for Codex CLI.
const DefaultImage = "ghcr.io/harnessd/agentharness-codex:latest"

// Adapter implements agent.Agent for Codex CLI.
type Adapter struct {
	image string
}

// New creates a Codex adapter using DefaultImage.
func New() *Adapter {
	return &Adapter{image: DefaultImage}
}

func (a *Adapter) Name() string { return "codex" }

func (a *Adapter) ContainerImage() string { return a.image }

// BuildEnv points Codex's OpenAI-compatible client at the LLM proxy and
// hands it the control-API credential and base URL; Codex reads credentials
// from the environment rather than flags.
func (a *Adapter) BuildEnv(ctx *harness.Context) []string {
	return []string{
		"OPENAI_API_KEY=" + ctx.AgentAPIKey,
		"OPENAI_BASE_URL=" + ctx.LLMProxyURL(),
		"AGENTHARNESS_API_KEY=" + ctx.AgentAPIKey,
		"AGENTHARNESS_API_URL=" + ctx.AgentAPIURL(),
		"AGENTHARNESS_GIT_URL=" + ctx.GitProxyURL(),
		"AGENTHARNESS_GIT_BRANCH=" + ctx.GitBranch,
	}
}

// BuildCommand runs Codex non-interactively against the task description,
// auto-approving actions since this container is already sandboxed
// (spec.md §6's container isolation takes the place of Codex's own
// approval prompts).
func (a *Adapter) BuildCommand(ctx *harness.Context) []string {
	return []string{
		"codex", "exec",
		"--json",
		"--yolo",
		"--skip-git-repo-check",
		"--cd", "/workspace",
		ctx.TaskDescription,
	}
}

func init() {
	agent.Register("codex", func() agent.Agent {
		return New()
	})
}
