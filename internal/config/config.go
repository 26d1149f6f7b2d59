// Package config loads gateway configuration from a YAML file and
// AGR_-prefixed environment variables.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Secrets     []string          `koanf:"secrets"`
	HealthCheck HealthCheckConfig `koanf:"health_check"`
	Catalogue   CatalogueConfig   `koanf:"catalogue"`
	Policy      PolicyConfig      `koanf:"policy"`
	Storage     StorageConfig     `koanf:"storage"`
	Upstream    UpstreamConfig    `koanf:"upstream"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// HealthCheckConfig controls the background credential checker.
type HealthCheckConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Period      time.Duration `koanf:"period"`
	MinInterval time.Duration `koanf:"min_interval"`
	Recurring   bool          `koanf:"recurring"`
}

// CatalogueConfig controls catalogue refresh.
type CatalogueConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// PolicyConfig is the model-access policy.
type PolicyConfig struct {
	AllowPaid       bool     `koanf:"allow_paid"`
	AllowModerated  bool     `koanf:"allow_moderated"`
	BlockedFamilies []string `koanf:"blocked_families"`
	AllowedFamilies []string `koanf:"allowed_families"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type UpstreamConfig struct {
	BaseURL string `koanf:"base_url"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from the YAML file at path (missing file is fine)
// and overlays AGR_-prefixed environment variables, with "__" as the nesting
// separator (AGR_SERVER__PORT=9090).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("AGR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "AGR_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("health_check.enabled") {
		k.Set("health_check.enabled", true)
	}
	if !k.Exists("health_check.period") {
		k.Set("health_check.period", "1h")
	}
	if !k.Exists("health_check.min_interval") {
		k.Set("health_check.min_interval", "3s")
	}
	if !k.Exists("health_check.recurring") {
		k.Set("health_check.recurring", true)
	}
	if !k.Exists("catalogue.ttl") {
		k.Set("catalogue.ttl", "1h")
	}
	if !k.Exists("policy.allow_paid") {
		k.Set("policy.allow_paid", true)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "aggrelay.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Secrets in the file may reference environment variables.
	for i := range cfg.Secrets {
		cfg.Secrets[i] = substituteEnvVars(cfg.Secrets[i])
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
