// Package server composes the four protocol surfaces (spec.md §1) onto one
// listener and drives the shutdown-coordination state machine (spec.md
// §4.8): accept an already-bound listener and a harness.Context, race
// {serve, task outcome, container exit}, and report exactly one
// harness.TaskOutcome.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/harnessd/agentharness/internal/agentapi"
	"github.com/harnessd/agentharness/internal/gitproxy"
	"github.com/harnessd/agentharness/internal/harness"
	"github.com/harnessd/agentharness/internal/llmproxy"
)

// Options configures the composed router.
type Options struct {
	Context      *harness.Context
	Lifecycle    *harness.Lifecycle
	GitHandler   *gitproxy.Handler
	LLMHandler   *llmproxy.Handler
	AgentHandler *agentapi.Handler
	Logger       *log.Logger
}

// NewRouter builds the http.Handler serving every path in spec.md §6:
// unauthenticated probes, Basic-authenticated git proxy routes, and
// Bearer-authenticated agent control API + LLM proxy routes.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ready"))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Healthy"))
	})

	gitMux := http.NewServeMux()
	gitMux.HandleFunc("GET /info/refs", opts.GitHandler.InfoRefs)
	gitMux.HandleFunc("POST /git-receive-pack", opts.GitHandler.GitReceivePack)
	gitMux.HandleFunc("POST /git-upload-pack", opts.GitHandler.GitUploadPack)
	mux.Handle("/api/agent/git/", http.StripPrefix("/api/agent/git", harness.BasicAuth(opts.Context, gitMux)))

	agentMux := http.NewServeMux()
	agentMux.HandleFunc("GET /agent/task", opts.AgentHandler.GetTask)
	agentMux.HandleFunc("POST /agent/task/complete", opts.AgentHandler.Complete)
	agentMux.HandleFunc("POST /agent/task/fail", opts.AgentHandler.Fail)
	agentMux.HandleFunc("POST /agent/inquiry", opts.AgentHandler.Inquire)
	agentMux.HandleFunc("POST /chat/completions", opts.LLMHandler.ChatCompletions)
	agentMux.HandleFunc("POST /responses", opts.LLMHandler.Responses)
	agentMux.HandleFunc("POST /models", opts.LLMHandler.Models)
	mux.Handle("/api/", http.StripPrefix("/api", harness.BearerAuth(opts.Context, agentMux)))

	return mux
}

// Server owns the bound listener and the *http.Server wrapping it.
type Server struct {
	httpServer *http.Server
	lifecycle  *harness.Lifecycle
	logger     *log.Logger
}

// New builds a Server bound to ln, serving opts' composed router.
func New(ln net.Listener, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		httpServer: &http.Server{Handler: NewRouter(opts)},
		lifecycle:  opts.Lifecycle,
		logger:     opts.Logger,
	}
}

// Run serves on ln until either the server exits on its own, the
// lifecycle's shutdown signal fires, or ctx is cancelled (standing in for
// "container exit" in the three-way race of spec.md §4.8/§9 — the caller
// is expected to cancel ctx when the container process ends). Whichever
// happens first wins; Run triggers RequestShutdown so the others unwind,
// and returns the resulting harness.TaskOutcome.
//
// If the HTTP server exits on its own (e.g. a listener error) before any
// terminal agent call arrived, that counts as a Failure outcome per
// spec.md §4.8's "serve-error" transition.
func Run(ctx context.Context, ln net.Listener, srv *Server) harness.TaskOutcome {
	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- srv.httpServer.Serve(ln)
	}()

	select {
	case outcome := <-srv.lifecycle.Outcome():
		srv.lifecycle.RequestShutdown()
		srv.drain()
		return outcome
	case <-ctx.Done():
		srv.lifecycle.RequestShutdown()
		srv.drain()
		select {
		case outcome := <-srv.lifecycle.Outcome():
			return outcome
		default:
			return harness.OutcomeFailure
		}
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Printf("server: serve exited with error: %v", err)
		}
		select {
		case outcome := <-srv.lifecycle.Outcome():
			return outcome
		default:
			return harness.OutcomeFailure
		}
	}
}

func (s *Server) drain() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Printf("server: graceful shutdown error: %v", err)
	}
}
