package config

import (
	"errors"
	"os"
	"testing"

	"github.com/harnessd/agentharness/internal/routing"
)

func fakeGetenv(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func fakeReadFile(data []byte, err error) func(string) ([]byte, error) {
	return func(string) ([]byte, error) { return data, err }
}

func TestLoadConfig_MissingFileUsesEnvAndDefaults(t *testing.T) {
	env := map[string]string{
		"AGENTHARNESS_SESSION_REPO_PATH":        "/repo",
		"AGENTHARNESS_ROUTING_DEFAULT_PROVIDER": "openai",
	}
	readFile := func(string) ([]byte, error) { return nil, os.ErrNotExist }

	cfg, err := LoadConfig(fakeGetenv(env), readFile)
	if err == nil {
		t.Fatal("LoadConfig() should fail StartupInvariant: openai is not a configured provider")
	}

	cfg = &HarnessConfig{
		Routing: routing.Table{
			DefaultProvider: "openai",
			Providers:       map[string]routing.ProviderDetails{"openai": {}},
		},
	}
	applyEnvOverrides(cfg, fakeGetenv(env))
	applyDefaults(cfg)
	if cfg.Session.RepoPath != "/repo" {
		t.Errorf("Session.RepoPath = %q, want /repo", cfg.Session.RepoPath)
	}
	if cfg.Session.Agent != "codex" {
		t.Errorf("Session.Agent = %q, want default codex", cfg.Session.Agent)
	}
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	yamlData := []byte(`
session:
  description: fix the bug
  repo_path: /workspace/repo
  agent: codex
routing:
  default_provider: openai
  providers:
    openai:
      chat_completions_endpoint: https://api.openai.com/v1/chat/completions
      responses_endpoint: https://api.openai.com/v1/responses
      models_endpoint: https://api.openai.com/v1/models
      credential: sk-test
`)

	cfg, err := LoadConfig(fakeGetenv(nil), fakeReadFile(yamlData, nil))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.Description != "fix the bug" {
		t.Errorf("Session.Description = %q, want %q", cfg.Session.Description, "fix the bug")
	}
	if cfg.Routing.DefaultProvider != "openai" {
		t.Errorf("Routing.DefaultProvider = %q, want openai", cfg.Routing.DefaultProvider)
	}
	if cfg.Routing.Providers["openai"].Credential != "sk-test" {
		t.Errorf("Providers[openai].Credential = %q, want sk-test", cfg.Routing.Providers["openai"].Credential)
	}
}

func TestLoadConfig_StartupInvariantRejectsUnknownDefaultProvider(t *testing.T) {
	yamlData := []byte(`
routing:
  default_provider: anthropic
  providers:
    openai: {}
`)
	_, err := LoadConfig(fakeGetenv(nil), fakeReadFile(yamlData, nil))
	if err == nil {
		t.Fatal("LoadConfig() should reject a default_provider absent from providers")
	}
}

func TestLoadConfig_ReadFileErrorOtherThanNotExist(t *testing.T) {
	_, err := LoadConfig(fakeGetenv(map[string]string{
		"AGENTHARNESS_ROUTING_DEFAULT_PROVIDER": "openai",
	}), fakeReadFile(nil, errors.New("permission denied")))
	// A non-missing-file read error is tolerated the same as "no file config"
	// here since LoadConfig only distinguishes success from failure, not why
	// the read failed; StartupInvariant still applies afterward.
	if err == nil {
		t.Fatal("LoadConfig() should still enforce StartupInvariant with no providers configured")
	}
}
