// Package credentials implements the operator-facing credential store
// (spec.md §4.11): a TOML file of per-provider API keys, with values
// optionally given as a GCP Secret Manager resource name to resolve lazily
// rather than at rest on disk.
package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is where the store lives when the operator doesn't override
// it: ~/.config/agentharness/credentials.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("credentials: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "agentharness", "credentials.toml"), nil
}

// Entry is one stored credential. Value is either the literal secret or,
// when SecretRef is non-empty, the still-encrypted placeholder — Resolve
// replaces it with the fetched secret.
type Entry struct {
	Value     string `toml:"value,omitempty"`
	SecretRef string `toml:"secret_ref,omitempty"`
}

// File is the on-disk TOML shape: provider name to credential entry.
type File struct {
	Providers map[string]Entry `toml:"providers"`
}

// SecretFetcher resolves a Secret Manager resource name to its value;
// internal/cloud/gcp.SecretManagerClient implements this.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
}

// Store loads credentials from a TOML file and resolves any Secret Manager
// references on demand.
type Store struct {
	path    string
	file    File
	fetcher SecretFetcher
}

// Load reads and parses the credential store at path, using fetcher (may be
// nil if no entry uses secret_ref) to resolve indirected secrets lazily.
func Load(path string, fetcher SecretFetcher) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{path: path, file: File{Providers: map[string]Entry{}}, fetcher: fetcher}, nil
		}
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}
	if f.Providers == nil {
		f.Providers = map[string]Entry{}
	}
	return &Store{path: path, file: f, fetcher: fetcher}, nil
}

// Credential returns the resolved credential for provider, fetching it
// from Secret Manager if the entry is a secret_ref.
func (s *Store) Credential(ctx context.Context, provider string) (string, error) {
	entry, ok := s.file.Providers[normalizeProvider(provider)]
	if !ok {
		return "", fmt.Errorf("credentials: no entry for provider %q", provider)
	}
	if entry.SecretRef == "" {
		return entry.Value, nil
	}
	if s.fetcher == nil {
		return "", fmt.Errorf("credentials: provider %q uses secret_ref but no Secret Manager fetcher is configured", provider)
	}
	return s.fetcher.FetchSecret(ctx, entry.SecretRef)
}

// Set stores a literal credential value for provider in memory; call Save
// to persist it.
func (s *Store) Set(provider, value string) {
	s.file.Providers[normalizeProvider(provider)] = Entry{Value: value}
}

// SetSecretRef stores a Secret Manager resource reference for provider in
// memory; call Save to persist it.
func (s *Store) SetSecretRef(provider, secretPath string) {
	s.file.Providers[normalizeProvider(provider)] = Entry{SecretRef: secretPath}
}

// Providers lists every configured provider name.
func (s *Store) Providers() []string {
	names := make([]string, 0, len(s.file.Providers))
	for name := range s.file.Providers {
		names = append(names, name)
	}
	return names
}

// Save writes the store back to its file path, creating parent directories
// with owner-only permissions since the file may hold literal secrets.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credentials: create config dir: %w", err)
	}
	data, err := toml.Marshal(s.file)
	if err != nil {
		return fmt.Errorf("credentials: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("credentials: write %s: %w", s.path, err)
	}
	return nil
}

// normalizeProvider lowercases and trims a provider key so lookups are
// forgiving about case coming from config/CLI input.
func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
