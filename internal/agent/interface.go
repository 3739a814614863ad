// Package agent defines the adapter surface between the harness and the
// coding-agent CLI running inside the task container (spec.md §4.13/§6):
// what image to run it in, what environment it needs, and how to invoke it.
// The agent reports its own outcome back through the control API
// (internal/agentapi) rather than through parsed stdout, so adapters here
// are deliberately thin compared to a full process-supervision interface.
package agent

import "github.com/harnessd/agentharness/internal/harness"

// Agent describes one coding-agent CLI's container wiring. Implementations
// live under internal/agent/<name> and register themselves via Register in
// an init func.
type Agent interface {
	// Name returns the adapter's registry key (e.g. "codex").
	Name() string

	// ContainerImage returns the Docker image the task container should run.
	ContainerImage() string

	// BuildEnv returns the environment variables the container needs to
	// reach the harness's git and LLM proxy endpoints and identify itself,
	// given the task's harness.Context.
	BuildEnv(ctx *harness.Context) []string

	// BuildCommand returns the argv to execute as the container's
	// entrypoint, given the task's harness.Context.
	BuildCommand(ctx *harness.Context) []string
}
