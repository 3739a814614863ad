// Package container defines the task container runtime surface (spec.md
// §6) and its Docker-CLI-backed implementation, grounded in the teacher's
// own docker exec-wrapping (validated exec.Command invocations, GHCR auth,
// concurrent stdout/stderr draining).
package container

import "context"

// RunSpec describes one task container invocation.
type RunSpec struct {
	Image   string
	Env     []string
	Command []string
	// WorkspaceDir is the host path bind-mounted at /workspace.
	WorkspaceDir string
	// Stdin, if non-empty, is piped to the container's stdin (for
	// generic-stdin-style agent adapters) and the container is started
	// with stdin kept open.
	Stdin string
}

// RunResult carries the container's resource handle and terminal state.
type RunResult struct {
	ContainerID string
	ExitCode    int
}

// ContainerRuntime is the host-side task container surface: one task, one
// container, for the container's entire lifetime (spec.md §6).
type ContainerRuntime interface {
	// Connect verifies the runtime is reachable (e.g. the Docker daemon
	// socket responds) before the harness commits to using it.
	Connect(ctx context.Context) error

	// BridgeNetworkIP returns the address the task container can reach
	// this host's listener on: the bridge-gateway IP on Linux, loopback
	// elsewhere (spec.md §2).
	BridgeNetworkIP(ctx context.Context) (string, error)

	// PullImage ensures image is present locally, authenticating with the
	// registry first if credentials are configured.
	PullImage(ctx context.Context, image string) error

	// Run starts the task container and blocks until it exits, returning
	// its exit code. The container is removed on exit regardless of
	// outcome (spec.md §6 "one task, one container").
	Run(ctx context.Context, spec RunSpec) (RunResult, error)

	// Delete forcibly removes a container by ID, used to enforce the
	// harness's own shutdown against a container that didn't exit on its
	// own (spec.md §4.8's three-way race).
	Delete(ctx context.Context, containerID string) error
}
