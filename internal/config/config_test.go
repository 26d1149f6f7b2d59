package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aggrelay/aggrelay/internal/resolver"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.HealthCheck.Enabled {
		t.Error("health checking disabled by default")
	}
	if cfg.HealthCheck.Period != time.Hour {
		t.Errorf("period = %v, want 1h", cfg.HealthCheck.Period)
	}
	if cfg.HealthCheck.MinInterval != 3*time.Second {
		t.Errorf("min_interval = %v, want 3s", cfg.HealthCheck.MinInterval)
	}
	if !cfg.HealthCheck.Recurring {
		t.Error("recurring checks should default to on")
	}
	if cfg.Catalogue.TTL != time.Hour {
		t.Errorf("ttl = %v, want 1h", cfg.Catalogue.TTL)
	}
	if !cfg.Policy.AllowPaid {
		t.Error("allow_paid should default to true")
	}
	if cfg.Policy.AllowModerated {
		t.Error("allow_moderated should default to false")
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "aggrelay.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
secrets:
  - sk-or-aaa
  - sk-or-bbb
health_check:
  enabled: false
  period: 30m
  recurring: false
policy:
  allow_paid: false
  allow_moderated: true
  blocked_families: [Meta]
storage:
  type: memory
upstream:
  base_url: http://localhost:9999/api/v1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Secrets) != 2 || cfg.Secrets[0] != "sk-or-aaa" {
		t.Errorf("secrets = %v", cfg.Secrets)
	}
	if cfg.HealthCheck.Enabled {
		t.Error("health checking should be off")
	}
	if cfg.HealthCheck.Period != 30*time.Minute {
		t.Errorf("period = %v", cfg.HealthCheck.Period)
	}
	if cfg.HealthCheck.Recurring {
		t.Error("recurring checks should be off")
	}
	if cfg.Policy.AllowPaid || !cfg.Policy.AllowModerated {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	if len(cfg.Policy.BlockedFamilies) != 1 || cfg.Policy.BlockedFamilies[0] != "Meta" {
		t.Errorf("blocked_families = %v", cfg.Policy.BlockedFamilies)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage type = %s", cfg.Storage.Type)
	}
	if cfg.Upstream.BaseURL != "http://localhost:9999/api/v1" {
		t.Errorf("base_url = %s", cfg.Upstream.BaseURL)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AGR_SERVER__PORT", "9000")
	t.Setenv("AGR_STORAGE__TYPE", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage type = %s, want memory", cfg.Storage.Type)
	}
}

func TestSecretsSubstitution(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "sk-or-from-env")

	path := writeConfig(t, `
secrets:
  - ${TEST_OPENROUTER_KEY}
  - sk-or-literal
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Secrets[0] != "sk-or-from-env" {
		t.Errorf("secrets[0] = %q", cfg.Secrets[0])
	}
	if cfg.Secrets[1] != "sk-or-literal" {
		t.Errorf("secrets[1] = %q", cfg.Secrets[1])
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "${TEST_VAR}", "test-value"},
		{"substitution in string", "prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"no substitution", "plain-string", "plain-string"},
		{"undefined var", "${UNDEFINED_VAR}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	path := writeConfig(t, `
secrets:
  - sk-or-aaa
policy:
  allow_paid: false
  blocked_families: [Meta, Mistral]
  allowed_families: [OpenAI]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	policy := resolver.Policy{
		AllowPaid:       cfg.Policy.AllowPaid,
		AllowModerated:  cfg.Policy.AllowModerated,
		BlockedFamilies: resolver.FamilySet(cfg.Policy.BlockedFamilies),
		AllowedFamilies: resolver.FamilySet(cfg.Policy.AllowedFamilies),
	}

	if policy.AllowPaid {
		t.Error("allow_paid should be off")
	}
	if len(policy.BlockedFamilies) != 2 {
		t.Errorf("blocked set = %v", policy.BlockedFamilies)
	}
	if _, ok := policy.BlockedFamilies["Mistral"]; !ok {
		t.Error("Mistral missing from blocked set")
	}
	if _, ok := policy.AllowedFamilies["OpenAI"]; !ok {
		t.Error("OpenAI missing from allowed set")
	}
}
