package codex

import (
	"strings"
	"testing"

	"github.com/harnessd/agentharness/internal/agent"
	"github.com/harnessd/agentharness/internal/harness"
)

func TestAdapter_Name(t *testing.T) {
	a := New()
	if got := a.Name(); got != "codex" {
		t.Errorf("Name() = %q, want %q", got, "codex")
	}
}

func TestAdapter_ContainerImage(t *testing.T) {
	a := New()
	if got := a.ContainerImage(); got != DefaultImage {
		t.Errorf("ContainerImage() = %q, want %q", got, DefaultImage)
	}
}

func TestAdapter_Registration(t *testing.T) {
	a, err := agent.Get("codex")
	if err != nil {
		t.Fatalf("Get(codex) returned error: %v", err)
	}
	if a.Name() != "codex" {
		t.Errorf("Registered agent Name() = %q, want %q", a.Name(), "codex")
	}
}

func testContext() *harness.Context {
	return &harness.Context{
		AgentAPIKey:     "test-key-1234",
		TaskDescription: "Fix the failing test in pkg/foo",
		GitBranch:       "0191f6b0-0000-7000-8000-000000000000",
		BaseURL:         "http://172.17.0.1:8080",
	}
}

func TestAdapter_BuildEnv(t *testing.T) {
	a := New()
	ctx := testContext()
	env := a.BuildEnv(ctx)

	want := map[string]string{
		"OPENAI_API_KEY":          ctx.AgentAPIKey,
		"OPENAI_BASE_URL":         ctx.LLMProxyURL(),
		"AGENTHARNESS_API_KEY":    ctx.AgentAPIKey,
		"AGENTHARNESS_API_URL":    ctx.AgentAPIURL(),
		"AGENTHARNESS_GIT_URL":    ctx.GitProxyURL(),
		"AGENTHARNESS_GIT_BRANCH": ctx.GitBranch,
	}
	for k, v := range want {
		entry := k + "=" + v
		found := false
		for _, e := range env {
			if e == entry {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("BuildEnv() missing entry %q in %v", entry, env)
		}
	}
}

func TestAdapter_BuildCommand(t *testing.T) {
	a := New()
	ctx := testContext()
	cmd := a.BuildCommand(ctx)

	required := []string{"codex", "exec", "--json", "--yolo", "--skip-git-repo-check"}
	for _, r := range required {
		found := false
		for _, arg := range cmd {
			if arg == r {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("BuildCommand() missing required arg %q in %v", r, cmd)
		}
	}

	if cmd[len(cmd)-1] != ctx.TaskDescription {
		t.Errorf("BuildCommand() last arg = %q, want task description %q", cmd[len(cmd)-1], ctx.TaskDescription)
	}

	foundCD := false
	for i, arg := range cmd {
		if arg == "--cd" && i+1 < len(cmd) && cmd[i+1] == "/workspace" {
			foundCD = true
		}
	}
	if !foundCD {
		t.Errorf("BuildCommand() missing --cd /workspace in %v", cmd)
	}
}

func TestAdapter_BuildEnv_NoSecretLeakIntoCommand(t *testing.T) {
	a := New()
	ctx := testContext()
	cmd := a.BuildCommand(ctx)
	for _, arg := range cmd {
		if strings.Contains(arg, ctx.AgentAPIKey) {
			t.Errorf("BuildCommand() leaked AgentAPIKey into argv: %v", cmd)
		}
	}
}
