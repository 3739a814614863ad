package container

import (
	"context"
	"sync"
)

// NullContainerRuntime is a ContainerRuntime that never execs a real
// process — it records every call, useful for exercising the server's
// lifecycle wiring without a Docker daemon.
type NullContainerRuntime struct {
	mu      sync.Mutex
	Pulled  []string
	Ran     []RunSpec
	Deleted []string

	// RunExitCode is returned by every Run call.
	RunExitCode int
}

func NewNullContainerRuntime() *NullContainerRuntime {
	return &NullContainerRuntime{}
}

func (n *NullContainerRuntime) Connect(ctx context.Context) error { return nil }

func (n *NullContainerRuntime) BridgeNetworkIP(ctx context.Context) (string, error) {
	return "127.0.0.1", nil
}

func (n *NullContainerRuntime) PullImage(ctx context.Context, image string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Pulled = append(n.Pulled, image)
	return nil
}

func (n *NullContainerRuntime) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Ran = append(n.Ran, spec)
	return RunResult{ContainerID: "null", ExitCode: n.RunExitCode}, nil
}

func (n *NullContainerRuntime) Delete(ctx context.Context, containerID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Deleted = append(n.Deleted, containerID)
	return nil
}

var _ ContainerRuntime = (*NullContainerRuntime)(nil)
