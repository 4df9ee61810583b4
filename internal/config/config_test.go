package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Assistant.PlaybackRate != 24000 {
		t.Fatalf("expected default playback rate, got %d", cfg.Assistant.PlaybackRate)
	}
	if cfg.Assistant.DefaultLanguage != "en" {
		t.Fatalf("expected default language en, got %s", cfg.Assistant.DefaultLanguage)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CANVAS_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("CANVAS_BUS_USERNAME", "alice")
	t.Setenv("CANVAS_BUS_PASSWORD", "secret")
	t.Setenv("CANVAS_ASSISTANT_MODEL", "models/custom")
	t.Setenv("CANVAS_ASSISTANT_DEFAULT_LANGUAGE", "hu")
	t.Setenv("CANVAS_ASSISTANT_PLAYBACK_RATE", "48000")
	t.Setenv("CANVAS_EVENT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatal("expected credentials override")
	}
	if cfg.Assistant.Model != "models/custom" {
		t.Fatalf("expected model override, got %s", cfg.Assistant.Model)
	}
	if cfg.Assistant.DefaultLanguage != "hu" {
		t.Fatalf("expected language override, got %s", cfg.Assistant.DefaultLanguage)
	}
	if cfg.Assistant.PlaybackRate != 48000 {
		t.Fatalf("expected playback rate override, got %d", cfg.Assistant.PlaybackRate)
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention override, got %s", cfg.EventStore.RetentionMode)
	}
}

func TestValidateRejectsBadLanguage(t *testing.T) {
	t.Setenv("CANVAS_ASSISTANT_DEFAULT_LANGUAGE", "fr")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unsupported language")
	}
}

func TestValidateRejectsMissingCredentialSource(t *testing.T) {
	t.Setenv("CANVAS_ASSISTANT_API_KEY_ENV", " ")
	cfg := Default()
	cfg.Assistant.APIKeyEnv = ""
	cfg.Assistant.APIKeyFile = ""
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error when no credential source configured")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canvas.yaml")
	body := []byte("runtime_name: studio-test\nassistant:\n  model: models/from-file\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "studio-test" {
		t.Fatalf("expected file override, got %s", cfg.RuntimeName)
	}
	if cfg.Assistant.Model != "models/from-file" {
		t.Fatalf("expected nested override, got %s", cfg.Assistant.Model)
	}
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("TEST_CANVAS_KEY", "  secret-key  ")
	cfg := AssistantConfig{APIKeyEnv: "TEST_CANVAS_KEY"}
	if got := cfg.APIKey(); got != "secret-key" {
		t.Fatalf("expected trimmed env key, got %q", got)
	}

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("file-key\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	cfg = AssistantConfig{APIKeyEnv: "UNSET_CANVAS_KEY", APIKeyFile: keyFile}
	if got := cfg.APIKey(); got != "file-key" {
		t.Fatalf("expected file key fallback, got %q", got)
	}

	cfg = AssistantConfig{APIKeyEnv: "UNSET_CANVAS_KEY"}
	if got := cfg.APIKey(); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}
