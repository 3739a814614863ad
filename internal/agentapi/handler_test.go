package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harnessd/agentharness/internal/harness"
)

type fakePrompter struct {
	reply string
	err   error
	delay time.Duration
}

func (f fakePrompter) Prompt(question string) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.reply, f.err
}

func TestGetTask(t *testing.T) {
	hctx := &harness.Context{
		TaskDescription: "fix the bug",
		GitUserName:     "agent",
		GitUserEmail:    "agent@example.com",
		GitRepoURL:      "https://example.com/repo.git",
		GitBranch:       "fork-branch",
	}
	h := NewHandler(hctx, harness.NewLifecycle(), fakePrompter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/agent/task", nil)
	rec := httptest.NewRecorder()
	h.GetTask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var task Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("failed to decode task: %v", err)
	}
	if task.Description != "fix the bug" || task.GitBranch != "fork-branch" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestComplete_SignalsOutcomeAndShutdown(t *testing.T) {
	lifecycle := harness.NewLifecycle()
	h := NewHandler(&harness.Context{}, lifecycle, fakePrompter{}, nil)

	body, _ := json.Marshal(TaskCompletion{Description: "done"})
	req := httptest.NewRequest(http.MethodPost, "/agent/task/complete", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Complete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case outcome := <-lifecycle.Outcome():
		if outcome != harness.OutcomeCompleted {
			t.Fatalf("expected OutcomeCompleted, got %v", outcome)
		}
	default:
		t.Fatal("expected an outcome to be signalled")
	}
	select {
	case <-lifecycle.Shutdown():
	default:
		t.Fatal("expected shutdown to be requested")
	}
}

func TestFail_SignalsFailureOutcome(t *testing.T) {
	lifecycle := harness.NewLifecycle()
	h := NewHandler(&harness.Context{}, lifecycle, fakePrompter{}, nil)

	body, _ := json.Marshal(TaskFailure{Reason: ReasonTechnicalIssues, Description: "could not build"})
	req := httptest.NewRequest(http.MethodPost, "/agent/task/fail", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Fail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case outcome := <-lifecycle.Outcome():
		if outcome != harness.OutcomeFailure {
			t.Fatalf("expected OutcomeFailure, got %v", outcome)
		}
	default:
		t.Fatal("expected an outcome to be signalled")
	}
}

func TestComplete_InvalidJSON(t *testing.T) {
	h := NewHandler(&harness.Context{}, harness.NewLifecycle(), fakePrompter{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/agent/task/complete", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Complete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInquire_ReturnsPrompterReply(t *testing.T) {
	h := NewHandler(&harness.Context{}, harness.NewLifecycle(), fakePrompter{reply: "yes, proceed"}, nil)

	body, _ := json.Marshal(Inquiry{Inquiry: "should I proceed?"})
	req := httptest.NewRequest(http.MethodPost, "/agent/inquiry", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Inquire(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var reply string
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	if reply != "yes, proceed" {
		t.Fatalf("reply = %q, want %q", reply, "yes, proceed")
	}
}

func TestInquire_CancelledRequest(t *testing.T) {
	h := NewHandler(&harness.Context{}, harness.NewLifecycle(), fakePrompter{reply: "late", delay: 50 * time.Millisecond}, nil)

	body, _ := json.Marshal(Inquiry{Inquiry: "are you there?"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/agent/inquiry", bytes.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Inquire(rec, req)

	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want 408", rec.Code)
	}
}

func TestStdinPrompter(t *testing.T) {
	in := strings.NewReader("my answer\n")
	var out bytes.Buffer
	p := NewStdinPrompter(in, &out)

	reply, err := p.Prompt("what now?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "my answer" {
		t.Fatalf("reply = %q, want %q", reply, "my answer")
	}
	if !strings.Contains(out.String(), "what now?") {
		t.Fatalf("expected question echoed to output, got %q", out.String())
	}
}
