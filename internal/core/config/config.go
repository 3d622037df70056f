package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/analytics"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config plus the resolved
// sandbox tenant policy.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Edge      EdgeConfig      `koanf:"edge"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Sandbox   SandboxConfig   `koanf:"sandbox"`

	// SandboxPolicy is populated by Load after parsing policy files.
	SandboxPolicy *analytics.SandboxPolicy `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type EdgeConfig struct {
	URL     string `koanf:"url"`
	AnonKey string `koanf:"anon_key"`
	Timeout string `koanf:"timeout"` // parsed and validated on startup
}

type AnalyticsConfig struct {
	PrimaryCacheTTL      string `koanf:"primary_cache_ttl"`
	FallbackCacheTTL     string `koanf:"fallback_cache_ttl"`
	CacheCleanupInterval string `koanf:"cache_cleanup_interval"`
	RateLimitWindow      string `koanf:"rate_limit_window"`
	RateLimitMax         int    `koanf:"rate_limit_max"`
	RefreshInterval      string `koanf:"refresh_interval"`
	RetryAttempts        int    `koanf:"retry_attempts"`
	RetryBaseDelay       string `koanf:"retry_base_delay"`
	ErrorHistorySize     int    `koanf:"error_history_size"`
	TestMode             bool   `koanf:"test_mode"`
}

type SandboxConfig struct {
	PolicyDir string `koanf:"policy_dir"`
}

func (c EdgeConfig) EffectiveTimeout() string {
	if c.Timeout != "" {
		return c.Timeout
	}
	return "10s"
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if strings.TrimSpace(c.Edge.URL) == "" {
		return fmt.Errorf("edge.url is required")
	}
	if u, err := url.Parse(c.Edge.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid edge.url %q", c.Edge.URL)
	}
	if strings.TrimSpace(c.Edge.AnonKey) == "" {
		return fmt.Errorf("edge.anon_key is required")
	}
	if _, err := time.ParseDuration(c.Edge.EffectiveTimeout()); err != nil {
		return fmt.Errorf("invalid edge.timeout %q: %w", c.Edge.EffectiveTimeout(), err)
	}

	for key, value := range map[string]string{
		"analytics.primary_cache_ttl":      c.Analytics.PrimaryCacheTTL,
		"analytics.fallback_cache_ttl":     c.Analytics.FallbackCacheTTL,
		"analytics.cache_cleanup_interval": c.Analytics.CacheCleanupInterval,
		"analytics.rate_limit_window":      c.Analytics.RateLimitWindow,
		"analytics.refresh_interval":       c.Analytics.RefreshInterval,
		"analytics.retry_base_delay":       c.Analytics.RetryBaseDelay,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", key)
		}
	}
	if c.Analytics.RateLimitMax <= 0 {
		return fmt.Errorf("analytics.rate_limit_max must be > 0")
	}
	if c.Analytics.RetryAttempts <= 0 {
		return fmt.Errorf("analytics.retry_attempts must be > 0")
	}
	if c.Analytics.ErrorHistorySize <= 0 {
		return fmt.Errorf("analytics.error_history_size must be > 0")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads the sandbox
// tenant policy files.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                      8080,
		"server.host":                      "0.0.0.0",
		"server.max_body_size_mb":          1,
		"server.mode":                      "release",
		"database.type":                    "postgres",
		"database.dsn":                     "",
		"database.max_open_conns":          25,
		"database.max_idle_conns":          25,
		"database.auto_migrate":            true,
		"edge.url":                         "",
		"edge.anon_key":                    "",
		"edge.timeout":                     "10s",
		"analytics.primary_cache_ttl":      "30s",
		"analytics.fallback_cache_ttl":     "15s",
		"analytics.cache_cleanup_interval": "1m",
		"analytics.rate_limit_window":      "1m",
		"analytics.rate_limit_max":         10,
		"analytics.refresh_interval":       "30s",
		"analytics.retry_attempts":         3,
		"analytics.retry_base_delay":       "500ms",
		"analytics.error_history_size":     256,
		"analytics.test_mode":              false,
		"sandbox.policy_dir":               "./config/sandbox",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("BLUNARI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BLUNARI_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := analytics.LoadSandboxPolicy(cfg.Sandbox.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load sandbox policy: %w", err)
	}
	cfg.SandboxPolicy = policy

	return &cfg, nil
}
