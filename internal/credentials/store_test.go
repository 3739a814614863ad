package credentials

import (
	"context"
	"path/filepath"
	"testing"
)

type stubFetcher struct {
	values map[string]string
}

func (f stubFetcher) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	return f.values[secretPath], nil
}

func TestStore_LoadMissingFileStartsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "credentials.toml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Providers()) != 0 {
		t.Errorf("Providers() = %v, want empty", s.Providers())
	}
}

func TestStore_SetSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.toml")

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Set("OpenAI", "sk-test-123")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load (reload): %v", err)
	}
	got, err := reloaded.Credential(context.Background(), "openai")
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if got != "sk-test-123" {
		t.Errorf("Credential() = %q, want %q", got, "sk-test-123")
	}
}

func TestStore_SecretRefResolvesViaFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	fetcher := stubFetcher{values: map[string]string{
		"projects/p/secrets/openai-key/versions/latest": "resolved-secret",
	}}

	s, err := Load(path, fetcher)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.SetSecretRef("openai", "projects/p/secrets/openai-key/versions/latest")

	got, err := s.Credential(context.Background(), "openai")
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if got != "resolved-secret" {
		t.Errorf("Credential() = %q, want %q", got, "resolved-secret")
	}
}

func TestStore_SecretRefWithoutFetcherErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.SetSecretRef("openai", "projects/p/secrets/openai-key/versions/latest")

	if _, err := s.Credential(context.Background(), "openai"); err == nil {
		t.Error("Credential() should error when secret_ref is set but no fetcher is configured")
	}
}

func TestStore_UnknownProviderErrors(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "credentials.toml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := s.Credential(context.Background(), "nonexistent"); err == nil {
		t.Error("Credential() should error for unknown provider")
	}
}
