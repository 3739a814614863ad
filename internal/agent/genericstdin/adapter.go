// Package genericstdin adapts any OpenAI-client-compatible CLI that reads
// its task prompt from stdin, for agent CLIs with no dedicated adapter.
package genericstdin

import (
	"github.com/harnessd/agentharness/internal/agent"
	"github.com/harnessd/agentharness/internal/harness"
)

// DefaultImage is the container image used when no image is configured.
const DefaultImage = "ghcr.io/harnessd/agentharness-generic:latest"

// Adapter implements agent.Agent by piping the task description over
// stdin to a configurable command, with no CLI-specific credential
// mounting or flag handling (spec.md §4.13's fallback adapter).
type Adapter struct {
	image   string
	command []string
}

// New creates a generic stdin adapter. command is the argv to run inside
// the container; the task description is written to its stdin rather than
// appended as an argument.
func New(image string, command []string) *Adapter {
	if image == "" {
		image = DefaultImage
	}
	return &Adapter{image: image, command: command}
}

func (a *Adapter) Name() string { return "generic-stdin" }

func (a *Adapter) ContainerImage() string { return a.image }

// BuildEnv exposes the same OpenAI-compatible and control-API variables as
// every other adapter; a generic CLI reading OPENAI_API_KEY/OPENAI_BASE_URL
// needs nothing else to reach the LLM proxy.
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

// BuildCommand returns the configured command unchanged: the task
// description is delivered over stdin by the container runtime, not as an
// argument, so adapters with no special prompt-shaping needs can be
// wired up purely from configuration.
func (a *Adapter) BuildCommand(ctx *harness.Context) []string {
	return a.command
}

func init() {
	agent.Register("generic-stdin", func() agent.Agent {
		return New("", []string{"agent-cli"})
	})
}
