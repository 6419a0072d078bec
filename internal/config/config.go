// Package config loads and validates puzzle-proxy configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/puzzle-proxy/internal/api"
	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Events    EventsConfig    `mapstructure:"events"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ProxyConfig governs candidate resolution.
type ProxyConfig struct {
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	FailurePolicy  string            `mapstructure:"failure_policy"`
	Candidates     []CandidateConfig `mapstructure:"candidates"`
}

// CandidateConfig is one configured upstream source.
type CandidateConfig struct {
	Name        string            `mapstructure:"name"`
	URLTemplate string            `mapstructure:"url_template"`
	Kind        string            `mapstructure:"kind"`
	Promote     bool              `mapstructure:"promote"`
	Referer     string            `mapstructure:"referer"`
	Headers     map[string]string `mapstructure:"headers"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	MaxParallel     int    `mapstructure:"max_parallel"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int    `mapstructure:"promotion_threshold"`
	ReadyExpression string `mapstructure:"ready_expression"`
}

// SnapshotsConfig selects where bodies without a document are kept.
type SnapshotsConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig selects the resolution event publisher.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LedgerConfig controls the optional Postgres attempt ledger.
type LedgerConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// Load builds a Config from an optional file plus PUZZLE_* environment
// variables. PORT, when set, overrides server.port.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PUZZLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "PORT", "PUZZLE_SERVER_PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", false)
	v.SetDefault("proxy.timeout_seconds", int(resolver.DefaultTimeout/time.Second))
	v.SetDefault("proxy.failure_policy", api.FailurePolicyError)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("snapshots.backend", "none")
	v.SetDefault("snapshots.base_dir", "snapshots")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("events.backend", "none")
	v.SetDefault("events.topic", "puzzle-resolutions")
	v.SetDefault("ledger.table", "puzzle_attempts")
	v.SetDefault("ledger.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Proxy.TimeoutSeconds <= 0 {
		return fmt.Errorf("proxy.timeout_seconds must be > 0")
	}
	switch c.Proxy.FailurePolicy {
	case api.FailurePolicyError, api.FailurePolicyPlaceholder:
	default:
		return fmt.Errorf("proxy.failure_policy must be %q or %q", api.FailurePolicyError, api.FailurePolicyPlaceholder)
	}
	if _, err := c.Candidates(); err != nil {
		return err
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Snapshots.Backend {
	case "", "none", "memory":
	case "local":
		if c.Snapshots.BaseDir == "" {
			return fmt.Errorf("snapshots.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Snapshots.GCSBucket == "" {
			return fmt.Errorf("snapshots.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown snapshots.backend %q", c.Snapshots.Backend)
	}
	switch c.Events.Backend {
	case "", "none", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown events.backend %q", c.Events.Backend)
	}
	return nil
}

// Candidates converts configured candidates into resolver candidates,
// falling back to the built-in chain when none are configured.
func (c Config) Candidates() ([]resolver.Candidate, error) {
	if len(c.Proxy.Candidates) == 0 {
		return resolver.DefaultCandidates(), nil
	}
	out := make([]resolver.Candidate, 0, len(c.Proxy.Candidates))
	seen := make(map[string]struct{}, len(c.Proxy.Candidates))
	for i, cc := range c.Proxy.Candidates {
		if cc.Name == "" {
			return nil, fmt.Errorf("proxy.candidates[%d].name is required", i)
		}
		if _, dup := seen[cc.Name]; dup {
			return nil, fmt.Errorf("duplicate candidate name %q", cc.Name)
		}
		seen[cc.Name] = struct{}{}
		if cc.URLTemplate == "" {
			return nil, fmt.Errorf("proxy.candidates[%d].url_template is required", i)
		}
		if u, err := url.Parse(cc.URLTemplate); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy.candidates[%d].url_template is not an absolute URL", i)
		}
		kind, err := resolver.ParseKind(cc.Kind)
		if err != nil {
			return nil, fmt.Errorf("proxy.candidates[%d]: %w", i, err)
		}
		headers := resolver.BrowserHeaders(cc.Referer)
		if kind == resolver.KindJSON {
			headers.Set("Accept", "application/json, text/plain, */*")
		}
		for k, val := range cc.Headers {
			headers.Set(http.CanonicalHeaderKey(k), val)
		}
		out = append(out, resolver.Candidate{
			Name:        cc.Name,
			URLTemplate: cc.URLTemplate,
			Headers:     headers,
			Kind:        kind,
			Promote:     cc.Promote,
		})
	}
	return out, nil
}

// Timeout returns the per-candidate fetch bound.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Proxy.TimeoutSeconds) * time.Second
}

// NavTimeout returns the headless navigation bound.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
