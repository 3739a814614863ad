package agentapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/harnessd/agentharness/internal/harness"
)

// Prompter synchronously asks a question on some interactive surface and
// returns the reply. The default implementation reads a line from the
// host's standard input (spec.md §4.6).
type Prompter interface {
	Prompt(question string) (string, error)
}

// StdinPrompter implements Prompter against os.Stdin (or any io.Reader),
// printing the question to an io.Writer first.
type StdinPrompter struct {
	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
}

// NewStdinPrompter builds a StdinPrompter. Concurrent Prompt calls are
// serialized through mu, since standard input is a process-wide singleton
// (spec.md §5 "Shared resources").
func NewStdinPrompter(in io.Reader, out io.Writer) *StdinPrompter {
	return &StdinPrompter{reader: bufio.NewReader(in), out: out}
}

func (p *StdinPrompter) Prompt(question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n[agent inquiry] %s\n> ", question)
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Handler serves the four agent control API endpoints.
type Handler struct {
	ctx       *harness.Context
	lifecycle *harness.Lifecycle
	prompter  Prompter
	logger    *log.Logger
}

// NewHandler builds a Handler. prompter is dispatched to on its own
// goroutine per inquiry so the blocking stdin read never stalls the async
// runtime (spec.md §5's "mandatory blocking worker").
func NewHandler(ctx *harness.Context, lifecycle *harness.Lifecycle, prompter Prompter, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{ctx: ctx, lifecycle: lifecycle, prompter: prompter, logger: logger}
}

// GetTask serves GET /agent/task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task := Task{
		Status:       "Running",
		Description:  h.ctx.TaskDescription,
		GitUserName:  h.ctx.GitUserName,
		GitUserEmail: h.ctx.GitUserEmail,
		GitRepoURL:   h.ctx.GitRepoURL,
		GitBranch:    h.ctx.GitBranch,
	}
	writeJSON(w, http.StatusOK, task)
}

// Complete serves POST /agent/task/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var body TaskCompletion
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	fmt.Println(body.Description)
	h.lifecycle.SignalOutcome(harness.OutcomeCompleted)
	h.lifecycle.RequestShutdown()
	w.WriteHeader(http.StatusOK)
}

// Fail serves POST /agent/task/fail.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request) {
	var body TaskFailure
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	fmt.Println(body.Description)
	h.lifecycle.SignalOutcome(harness.OutcomeFailure)
	h.lifecycle.RequestShutdown()
	w.WriteHeader(http.StatusOK)
}

// Inquire serves POST /agent/inquiry. It prompts on a blocking worker
// goroutine and waits for the reply, so the async runtime isn't stalled
// while the operator is typing (spec.md §4.6, §5).
func (h *Handler) Inquire(w http.ResponseWriter, r *http.Request) {
	var body Inquiry
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := h.prompter.Prompt(body.Inquiry)
		done <- result{reply, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			h.logger.Printf("agentapi: inquiry prompt failed: %v", res.err)
			http.Error(w, "failed to obtain reply", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, res.reply)
	case <-r.Context().Done():
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
