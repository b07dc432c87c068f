package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.HTTPAddr != ":5000" {
		t.Fatalf("expected :5000, got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Backoff.MaxRetries != 5 || cfg.Backoff.Base != 5*time.Second || cfg.Backoff.Factor != 1.5 {
		t.Fatalf("unexpected backoff defaults %+v", cfg.Backoff)
	}
	if cfg.Generation.MaxTokens != 200 || cfg.Generation.Temperature != 0.7 {
		t.Fatalf("unexpected generation defaults %+v", cfg.Generation)
	}
	if cfg.Generation.Provider != ProviderAzure || cfg.Generation.Deployment != "gpt-35-turbo" {
		t.Fatalf("unexpected provider defaults %+v", cfg.Generation)
	}
	if cfg.Vision.MaxAttempts != 1 || cfg.Vision.Language != "en" {
		t.Fatalf("unexpected vision defaults %+v", cfg.Vision)
	}
	if len(cfg.Generation.APIKeys) != 0 {
		t.Fatalf("expected no keys, got %v", cfg.Generation.APIKeys)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insight.yaml")
	writeFile(t, path, "server:\n  http_addr: \":8080\"\nbackoff:\n  base: 2s\ngeneration:\n  api_keys:\n    - k1\n    - k2\n")

	t.Setenv("INSIGHT_BACKOFF_MAX_RETRIES", "3")
	t.Setenv("INSIGHT_LOG_LEVEL", "debug")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("expected file value :8080, got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Backoff.Base != 2*time.Second {
		t.Fatalf("expected 2s base, got %v", cfg.Backoff.Base)
	}
	if cfg.Backoff.MaxRetries != 3 {
		t.Fatalf("expected env override 3, got %d", cfg.Backoff.MaxRetries)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env override debug, got %q", cfg.Log.Level)
	}
	if strings.Join(cfg.Generation.APIKeys, ",") != "k1,k2" {
		t.Fatalf("unexpected keys %v", cfg.Generation.APIKeys)
	}
}

func TestLegacyEnv(t *testing.T) {
	t.Setenv("AZURE_VISION_KEY", "legacy-key")
	t.Setenv("AZURE_OPENAI_KEY", "a, b")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Vision.Key != "legacy-key" {
		t.Fatalf("expected legacy vision key, got %q", cfg.Vision.Key)
	}
	if strings.Join(cfg.Generation.APIKeys, ",") != "a,b" {
		t.Fatalf("unexpected keys %v", cfg.Generation.APIKeys)
	}

	t.Setenv("INSIGHT_VISION_KEY", "prefixed-key")
	cfg, err = Load(New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Vision.Key != "prefixed-key" {
		t.Fatalf("prefixed variable should win, got %q", cfg.Vision.Key)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("INSIGHT_GENERATION_PROVIDER", "relay")
	if _, err := Load(New(), ""); err == nil {
		t.Fatalf("expected relay without url to fail")
	}

	t.Setenv("INSIGHT_GENERATION_RELAY_URL", "http://localhost:5001/generate_text")
	if _, err := Load(New(), ""); err != nil {
		t.Fatalf("load: %v", err)
	}

	t.Setenv("INSIGHT_GENERATION_PROVIDER", "bard")
	if _, err := Load(New(), ""); err == nil {
		t.Fatalf("expected unknown provider to fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

func TestSettingsMasksSecrets(t *testing.T) {
	t.Setenv("INSIGHT_VISION_KEY", "topsecret")
	v := New()
	if _, err := Load(v, ""); err != nil {
		t.Fatalf("load: %v", err)
	}

	joined := strings.Join(Settings(v), "\n")
	if strings.Contains(joined, "topsecret") {
		t.Fatalf("secret leaked into settings:\n%s", joined)
	}
	if !strings.Contains(joined, "vision.key=********") {
		t.Fatalf("expected masked vision key:\n%s", joined)
	}
	if !strings.Contains(joined, "backoff.max_retries=5") {
		t.Fatalf("expected default backoff in settings:\n%s", joined)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
