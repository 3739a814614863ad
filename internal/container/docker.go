package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/harnessd/agentharness/internal/security"
)

// DockerContainerRuntime shells out to the docker CLI exactly the way the
// controller's container runner does (docker.go in this repo's original
// form): every argv is built up front and validated before exec.Command
// ever sees it.
type DockerContainerRuntime struct {
	validator *security.CommandValidator

	registryUser string
	registryPass string
	authedOnce   sync.Once
	authErr      error
}

// NewDockerContainerRuntime builds a runtime that authenticates against a
// registry (e.g. ghcr.io) with the given credentials before the first pull,
// if both are non-empty.
func NewDockerContainerRuntime(registryUser, registryPass string) *DockerContainerRuntime {
	return &DockerContainerRuntime{
		validator:    security.NewCommandValidator(),
		registryUser: registryUser,
		registryPass: registryPass,
	}
}

func (d *DockerContainerRuntime) Connect(ctx context.Context) error {
	if err := d.validator.ValidateCommand("docker", []string{"version"}); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "docker", "version", "--format", "{{.Server.Version}}")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("container: docker daemon unreachable: %w (%s)", err, string(out))
	}
	return nil
}

// BridgeNetworkIP returns docker0's address on Linux (the gateway the
// container sees the host at) and loopback everywhere else, per spec.md
// §2's platform note.
func (d *DockerContainerRuntime) BridgeNetworkIP(ctx context.Context) (string, error) {
	if runtime.GOOS != "linux" {
		return "127.0.0.1", nil
	}
	iface, err := net.InterfaceByName("docker0")
	if err != nil {
		return "", fmt.Errorf("container: docker0 bridge not found: %w", err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", fmt.Errorf("container: read docker0 addresses: %w", err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("container: docker0 has no IPv4 address")
}

func (d *DockerContainerRuntime) maybeAuthenticate(ctx context.Context, image string) {
	if d.registryUser == "" || d.registryPass == "" || !strings.Contains(image, "ghcr.io") {
		return
	}
	d.authedOnce.Do(func() {
		loginCmd := exec.CommandContext(ctx, "docker", "login", "ghcr.io",
			"-u", d.registryUser, "--password-stdin")
		loginCmd.Stdin = strings.NewReader(d.registryPass)
		if out, err := loginCmd.CombinedOutput(); err != nil {
			d.authErr = fmt.Errorf("container: docker login to ghcr.io failed: %w (%s)", err, string(out))
		}
	})
}

func (d *DockerContainerRuntime) PullImage(ctx context.Context, image string) error {
	d.maybeAuthenticate(ctx, image)
	if d.authErr != nil {
		return d.authErr
	}
	if err := d.validator.ValidateCommand("docker", []string{"pull", image}); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "docker", "pull", image)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("container: pull %s: %w (%s)", image, err, string(out))
	}
	return nil
}

func (d *DockerContainerRuntime) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	d.maybeAuthenticate(ctx, spec.Image)
	if d.authErr != nil {
		return RunResult{}, d.authErr
	}

	name := "agentharness-" + uuid.NewString()
	args := []string{
		"run", "--rm", "--name", name,
		"-v", spec.WorkspaceDir + ":/workspace",
		"-w", "/workspace",
		"--add-host", "host.docker.internal:host-gateway",
	}
	args = append(args, security.DefaultContainerSecurityOptions().ToDockerArgs()...)

	if spec.Stdin != "" {
		args = append(args, "-i")
	}
	for _, kv := range spec.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	if err := d.validator.ValidateCommand("docker", args); err != nil {
		return RunResult{}, err
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("container: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("container: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return RunResult{}, fmt.Errorf("container: start: %w", err)
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = io.Copy(&outBuf, stdout) }()
	go func() { defer wg.Done(); _, _ = io.Copy(&errBuf, stderr) }()
	wg.Wait()

	exitCode := 0
	if waitErr := cmd.Wait(); waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return RunResult{}, fmt.Errorf("container: wait: %w", waitErr)
		}
	}

	return RunResult{ContainerID: name, ExitCode: exitCode}, nil
}

// Delete forcibly stops and removes a container. --rm already cleans up on
// normal exit; this exists for the harness's own shutdown path (spec.md
// §4.8), where the container may still be running when the race resolves.
func (d *DockerContainerRuntime) Delete(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	if err := d.validator.ValidateCommand("docker", []string{"rm", "-f", containerID}); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", containerID)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("container: rm %s: %w (%s)", containerID, err, string(out))
	}
	return nil
}

var _ ContainerRuntime = (*DockerContainerRuntime)(nil)
