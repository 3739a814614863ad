package cli

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harnessd/agentharness/internal/agent"
	_ "github.com/harnessd/agentharness/internal/agent/codex"
	_ "github.com/harnessd/agentharness/internal/agent/genericstdin"
	"github.com/harnessd/agentharness/internal/agentapi"
	"github.com/harnessd/agentharness/internal/cloud/gcp"
	"github.com/harnessd/agentharness/internal/config"
	"github.com/harnessd/agentharness/internal/container"
	"github.com/harnessd/agentharness/internal/credentials"
	"github.com/harnessd/agentharness/internal/github"
	"github.com/harnessd/agentharness/internal/gitops"
	"github.com/harnessd/agentharness/internal/gitproxy"
	"github.com/harnessd/agentharness/internal/harness"
	"github.com/harnessd/agentharness/internal/llmproxy"
	"github.com/harnessd/agentharness/internal/observability"
	"github.com/harnessd/agentharness/internal/routing"
	"github.com/harnessd/agentharness/internal/security"
	"github.com/harnessd/agentharness/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one agent task",
	Long: `Start the harness for a single task: bind the control-plane listener,
launch the agent's container against it, and block until the agent reports
a terminal outcome or the container exits on its own.

Example:
  agentharness run --repo-path . --description "fix the flaky upload test"`,
	RunE: runTask,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("repo-path", "", "path to the git repository the agent will work in")
	runCmd.Flags().String("description", "", "task description handed to the agent")
	runCmd.Flags().String("agent", "", "registered agent adapter to run (default: codex)")
	runCmd.Flags().Bool("local", false, "use a no-op container runtime for interactive debugging")

	_ = viper.BindPFlag("session.repo_path", runCmd.Flags().Lookup("repo-path"))
	_ = viper.BindPFlag("session.description", runCmd.Flags().Lookup("description"))
	_ = viper.BindPFlag("session.agent", runCmd.Flags().Lookup("agent"))
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "agentharness: received interrupt, shutting down")
		cancel()
	}()

	cfg, err := config.LoadConfig(os.Getenv, readConfigFile)
	if err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}
	if repoPath := viper.GetString("session.repo_path"); repoPath != "" {
		cfg.Session.RepoPath = repoPath
	}
	if description := viper.GetString("session.description"); description != "" {
		cfg.Session.Description = description
	}
	if agentName := viper.GetString("session.agent"); agentName != "" {
		cfg.Session.Agent = agentName
	}
	if cfg.Session.RepoPath == "" {
		return fmt.Errorf("agentharness: --repo-path is required")
	}
	if cfg.Session.Description == "" {
		return fmt.Errorf("agentharness: --description is required")
	}

	if err := mergeCredentials(ctx, cfg); err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}

	adapter, err := agent.Get(cfg.Session.Agent)
	if err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}

	local, _ := cmd.Flags().GetBool("local")
	var runtime container.ContainerRuntime
	if local {
		runtime = container.NewNullContainerRuntime()
	} else {
		runtime = container.NewDockerContainerRuntime(os.Getenv("AGENTHARNESS_REGISTRY_USER"), os.Getenv("AGENTHARNESS_REGISTRY_PASS"))
	}
	if err := runtime.Connect(ctx); err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}

	bridgeIP, err := runtime.BridgeNetworkIP(ctx)
	if err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}

	apiKey, err := harness.GenerateAgentAPIKey()
	if err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}
	forkBranch, err := harness.NewForkBranchName()
	if err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}
	validator := security.NewCommandValidator()
	if err := validator.ValidateGitRef(forkBranch); err != nil {
		return fmt.Errorf("agentharness: generated fork branch failed validation: %w", err)
	}

	ops := gitops.NewGoGitOps("agentharness", "agentharness@localhost")
	baseBranch, err := ops.CurrentBranch(cfg.Session.RepoPath)
	if err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}
	if err := ops.CreateBranch(cfg.Session.RepoPath, forkBranch); err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}

	ln, err := net.Listen("tcp", bridgeIP+":0")
	if err != nil {
		return fmt.Errorf("agentharness: bind listener: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	taskCtx := &harness.Context{
		Routing:         &cfg.Routing,
		AgentAPIKey:     apiKey,
		TaskDescription: cfg.Session.Description,
		GitUserName:     "agentharness",
		GitUserEmail:    "agentharness@localhost",
		GitRepoURL:      fmt.Sprintf("http://%s:%d/api/agent/git", bridgeIP, port),
		GitBranch:       forkBranch,
		GitRepoPath:     cfg.Session.RepoPath,
		BaseURL:         fmt.Sprintf("http://%s:%d", bridgeIP, port),
	}
	if cfg.GitHub.AppID != 0 {
		manager, err := github.NewTokenManager(fmt.Sprintf("%d", cfg.GitHub.AppID), cfg.GitHub.InstallationID, []byte(cfg.GitHub.PrivateKeyPEM))
		if err != nil {
			return fmt.Errorf("agentharness: %w", err)
		}
		taskCtx.RemoteGit = github.NewRemoteCredential(manager, cfg.GitHub.RemoteURL)
	}

	router, err := routing.NewRouter(taskCtx.Routing)
	if err != nil {
		return fmt.Errorf("agentharness: %w", err)
	}

	logger := gcp.NewLogger(ctx, forkBranch, cfg.Cloud.LogName, cfg.Cloud.Enabled)
	defer logger.Close()

	tracer := buildTracer(cfg.Observability)
	defer tracer.Stop(context.Background())
	trace := tracer.StartTrace(forkBranch, observability.TraceOptions{
		Workflow:   cfg.Session.Agent,
		Repository: cfg.Session.RepoPath,
		SessionID:  forkBranch,
	})
	span := tracer.StartPhase(trace, "task", observability.SpanOptions{})
	taskStart := time.Now()

	lifecycle := harness.NewLifecycle()
	srv := server.New(ln, server.Options{
		Context:      taskCtx,
		Lifecycle:    lifecycle,
		GitHandler:   gitproxy.NewHandler(nil, nil),
		LLMHandler:   llmproxy.NewHandler(router, nil, tracingObserver{logger: logger, tracer: tracer, span: span}, nil),
		AgentHandler: agentapi.NewHandler(taskCtx, lifecycle, agentapi.NewStdinPrompter(os.Stdin, os.Stdout), nil),
	})

	containerDone := make(chan error, 1)
	go func() {
		if err := runtime.PullImage(ctx, adapter.ContainerImage()); err != nil {
			containerDone <- err
			return
		}
		stdin := ""
		if adapter.Name() == "generic-stdin" {
			stdin = cfg.Session.Description
		}
		result, err := runtime.Run(ctx, container.RunSpec{
			Image:        adapter.ContainerImage(),
			Env:          adapter.BuildEnv(taskCtx),
			Command:      adapter.BuildCommand(taskCtx),
			WorkspaceDir: cfg.Session.RepoPath,
			Stdin:        stdin,
		})
		if err != nil {
			containerDone <- err
			return
		}
		if result.ExitCode != 0 {
			lifecycle.SignalOutcome(harness.OutcomeFailure)
		}
		lifecycle.RequestShutdown()
		containerDone <- nil
	}()

	containerCtx, stopOnContainerExit := context.WithCancel(ctx)
	defer stopOnContainerExit()
	go func() {
		if err := <-containerDone; err != nil {
			fmt.Fprintf(os.Stderr, "agentharness: container runtime error: %v\n", err)
		}
		stopOnContainerExit()
	}()

	outcome := server.Run(containerCtx, ln, srv)
	fmt.Fprintf(os.Stderr, "agentharness: task outcome: %s\n", outcome)

	tracer.EndPhase(span, outcome.String(), time.Since(taskStart).Milliseconds())
	tracer.CompleteTrace(trace, observability.CompleteOptions{Status: outcome.String()})
	_ = tracer.Flush(context.Background())

	if outcome == harness.OutcomeCompleted {
		if err := ops.SquashMerge(cfg.Session.RepoPath, baseBranch, forkBranch); err != nil {
			return fmt.Errorf("agentharness: squash-merge onto %s: %w", baseBranch, err)
		}
	}

	if outcome != harness.OutcomeCompleted {
		return fmt.Errorf("agentharness: task did not complete successfully")
	}
	return nil
}

// readConfigFile reads name (the conventional default config path, or a
// --config override resolved by viper's own search path) relative to the
// current working directory, treating a missing file as "no file config".
func readConfigFile(name string) ([]byte, error) {
	if cfgFile != "" {
		name = cfgFile
	}
	return os.ReadFile(name)
}

// mergeCredentials resolves the routing table's provider credentials from
// the on-disk TOML credential store, filling in any ProviderDetails.Credential
// left blank in the YAML config (SPEC_FULL.md §4.11's layered-config
// philosophy).
func mergeCredentials(ctx context.Context, cfg *config.HarnessConfig) error {
	path := cfg.CredentialStore.Path
	if path == "" {
		defaultPath, err := credentials.DefaultPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}

	var fetcher credentials.SecretFetcher
	if cfg.Cloud.Enabled {
		client, err := gcp.NewSecretManagerClient(ctx, cfg.Cloud.ProjectID)
		if err == nil {
			fetcher = client
		}
	}

	store, err := credentials.Load(path, fetcher)
	if err != nil {
		return err
	}

	for name, details := range cfg.Routing.Providers {
		if details.Credential != "" {
			continue
		}
		cred, err := store.Credential(ctx, name)
		if err != nil {
			continue
		}
		details.Credential = cred
		cfg.Routing.Providers[name] = details
	}
	return nil
}

// buildTracer returns a LangfuseTracer when a public key is configured,
// otherwise a NoOpTracer — the common case, since this harness runs once
// per task and tracing is an optional add-on (SPEC_FULL.md §4.10's
// "Observers must not block the response path" applies here too).
func buildTracer(cfg config.ObservabilityConfig) observability.Tracer {
	if cfg.LangfusePublicKey == "" {
		return &observability.NoOpTracer{}
	}
	return observability.NewLangfuseTracer(observability.LangfuseConfig{
		PublicKey: cfg.LangfusePublicKey,
		SecretKey: cfg.LangfuseSecretKey,
		BaseURL:   cfg.LangfuseBaseURL,
	}, log.Default())
}

// tracingObserver mirrors every LLM-proxy call to the task's structured
// logger and Langfuse trace (SPEC_FULL.md §4.10), off the response path:
// Observe hands both to a goroutine rather than acting synchronously,
// since Observer implementations must never block the proxy's reply to
// the agent.
type tracingObserver struct {
	logger gcp.Logger
	tracer observability.Tracer
	span   observability.SpanContext
}

func (o tracingObserver) Observe(c llmproxy.Call) {
	go func() {
		o.logger.Info(fmt.Sprintf("llmproxy: %s provider=%s model=%s", c.Endpoint, c.Provider, c.Model))
		o.tracer.RecordGeneration(o.span, observability.GenerationInput{
			Name:   c.Endpoint,
			Model:  c.Model,
			Status: "completed",
		})
	}()
}
