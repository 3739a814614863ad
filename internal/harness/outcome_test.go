package harness

import "testing"

func TestLifecycleSignalOutcomeOnce(t *testing.T) {
	l := NewLifecycle()

	l.SignalOutcome(OutcomeCompleted)
	l.SignalOutcome(OutcomeFailure) // second call must be a silent no-op

	select {
	case got := <-l.Outcome():
		if got != OutcomeCompleted {
			t.Fatalf("expected first-signalled outcome Completed, got %v", got)
		}
	default:
		t.Fatal("expected an outcome to be available")
	}
}

func TestLifecycleRequestShutdownOnce(t *testing.T) {
	l := NewLifecycle()

	l.RequestShutdown()
	l.RequestShutdown() // must not panic on double-close

	select {
	case <-l.Shutdown():
	default:
		t.Fatal("expected shutdown channel to be closed")
	}
}

func TestTaskOutcomeString(t *testing.T) {
	if OutcomeCompleted.String() != "Completed" {
		t.Fatalf("unexpected string for OutcomeCompleted: %q", OutcomeCompleted.String())
	}
	if OutcomeFailure.String() != "Failure" {
		t.Fatalf("unexpected string for OutcomeFailure: %q", OutcomeFailure.String())
	}
}

func TestContextURLHelpers(t *testing.T) {
	c := &Context{BaseURL: "http://172.17.0.1:8080", GitBranch: "01900000-0000-7000-8000-000000000000"}

	if got, want := c.LLMProxyURL(), "http://172.17.0.1:8080/api"; got != want {
		t.Fatalf("LLMProxyURL() = %q, want %q", got, want)
	}
	if got, want := c.AgentAPIURL(), "http://172.17.0.1:8080/api/agent"; got != want {
		t.Fatalf("AgentAPIURL() = %q, want %q", got, want)
	}
	if got, want := c.GitProxyURL(), "http://172.17.0.1:8080/api/agent/git"; got != want {
		t.Fatalf("GitProxyURL() = %q, want %q", got, want)
	}
	if got, want := c.AllowedRef(), "refs/heads/01900000-0000-7000-8000-000000000000"; got != want {
		t.Fatalf("AllowedRef() = %q, want %q", got, want)
	}
}

func TestGenerateAgentAPIKeyLength(t *testing.T) {
	key, err := GenerateAgentAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected a 32-character key, got %d chars: %q", len(key), key)
	}
	for _, r := range key {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("expected alphanumeric key, found %q in %q", r, key)
		}
	}
}

func TestNewForkBranchNameIsUUID(t *testing.T) {
	name, err := NewForkBranchName()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(name) != 36 {
		t.Fatalf("expected a 36-character UUID string, got %d: %q", len(name), name)
	}
}
