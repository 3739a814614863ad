package harness

import "sync"

// TaskOutcome is the terminal result of a task, produced exactly once per
// task lifetime (spec.md §3).
type TaskOutcome int

const (
	// OutcomeCompleted means the agent reported /agent/task/complete.
	OutcomeCompleted TaskOutcome = iota
	// OutcomeFailure means the agent reported /agent/task/fail, or the
	// server exited without either terminal call (spec.md §4.8's
	// "serve-error" transition).
	OutcomeFailure
)

func (o TaskOutcome) String() string {
	if o == OutcomeCompleted {
		return "Completed"
	}
	return "Failure"
}

// Lifecycle owns the two single-shot shutdown signals from spec.md §3: a
// task_outcome channel carrying the terminal TaskOutcome to the host, and
// a server_shutdown channel instructing the server to stop accepting and
// drain. Each may be signalled at most once; later attempts are silently
// ignored (spec.md §3's invariant, realized here as a guarded take-once
// discipline per spec.md §5's "asynchronous mutex that holds only across
// the take() of an Option<Sender>").
type Lifecycle struct {
	mu sync.Mutex

	outcomeCh  chan TaskOutcome
	outcomeSet bool

	shutdownCh  chan struct{}
	shutdownSet bool
}

// NewLifecycle creates a Lifecycle with both channels open.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		outcomeCh:  make(chan TaskOutcome, 1),
		shutdownCh: make(chan struct{}),
	}
}

// SignalOutcome sends outcome on the task_outcome channel. A second or
// later call is a silent no-op (spec.md §3, §8 "TaskOutcome signal fires
// at most once").
func (l *Lifecycle) SignalOutcome(outcome TaskOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcomeSet {
		return
	}
	l.outcomeSet = true
	l.outcomeCh <- outcome
}

// RequestShutdown closes the server_shutdown channel, waking anything
// selecting on Shutdown(). A second or later call is a silent no-op.
func (l *Lifecycle) RequestShutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdownSet {
		return
	}
	l.shutdownSet = true
	close(l.shutdownCh)
}

// Outcome returns the channel the three-way race (spec.md §4.8/§9) selects
// on to learn the task's terminal outcome.
func (l *Lifecycle) Outcome() <-chan TaskOutcome {
	return l.outcomeCh
}

// Shutdown returns the channel that closes once RequestShutdown has been
// called, used to drive graceful HTTP server shutdown.
func (l *Lifecycle) Shutdown() <-chan struct{} {
	return l.shutdownCh
}
