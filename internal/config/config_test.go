package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultHasAllProviders(t *testing.T) {
	cfg := Default()

	if len(cfg.Providers) != 3 {
		t.Fatalf("expected 3 default providers, got %d", len(cfg.Providers))
	}

	names := map[string]bool{}
	for _, p := range cfg.Providers {
		names[p.Name] = true
		if p.Endpoint == "" {
			t.Errorf("provider %q has no endpoint", p.Name)
		}
		if len(p.Models) == 0 {
			t.Errorf("provider %q has no models", p.Name)
		}
	}
	for _, want := range []string{"openai", "groq", "gemini"} {
		if !names[want] {
			t.Errorf("default config missing provider %q", want)
		}
	}

	if cfg.Auth.KeyPrefix != "relay_" {
		t.Errorf("key prefix = %q, want relay_", cfg.Auth.KeyPrefix)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestDefaultExpandsProviderKeysFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := Default()

	for _, p := range cfg.Providers {
		if strings.Contains(p.APIKey, "${") {
			t.Errorf("provider %q API key is the unexpanded placeholder %q", p.Name, p.APIKey)
		}
	}
	if cfg.Providers[0].APIKey != "sk-test-openai" {
		t.Errorf("openai key = %q, want value from environment", cfg.Providers[0].APIKey)
	}
	// Unset variables expand to empty, which buildRegistry treats as
	// "no key configured" rather than sending a literal placeholder upstream.
	if cfg.Providers[1].APIKey != "" {
		t.Errorf("groq key = %q, want empty", cfg.Providers[1].APIKey)
	}
}

func TestWriteDefaultKeepsPlaceholders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-should-not-leak")

	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "${OPENAI_API_KEY}") {
		t.Error("written config should reference ${OPENAI_API_KEY}, not a resolved value")
	}
	if strings.Contains(string(data), "sk-should-not-leak") {
		t.Error("written config leaked a resolved secret")
	}
}

func TestLoadExpandsEnvAndOverridesDefaults(t *testing.T) {
	t.Setenv("TEST_RELAY_OPENAI_KEY", "sk-from-env")

	content := `
server:
  port: 9090
auth:
  key_prefix: custom_
providers:
  - name: openai
    enabled: true
    endpoint: https://api.openai.com/v1
    api_key: ${TEST_RELAY_OPENAI_KEY}
    models: [gpt-4o]
`
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Auth.KeyPrefix != "custom_" {
		t.Errorf("key prefix = %q, want custom_", cfg.Auth.KeyPrefix)
	}
	// Defaults not named in the file survive.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default 0.0.0.0", cfg.Server.Host)
	}

	if len(cfg.Providers) != 1 {
		t.Fatalf("expected file providers to replace defaults, got %d", len(cfg.Providers))
	}
	if cfg.Providers[0].APIKey != "sk-from-env" {
		t.Errorf("api key = %q, want expanded env value", cfg.Providers[0].APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	// The written file references ${OPENAI_API_KEY}; with the variable unset
	// the expansion yields an empty key, which is still a valid config.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Providers) != 3 {
		t.Errorf("expected 3 providers after round trip, got %d", len(cfg.Providers))
	}
}
