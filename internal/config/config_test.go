package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/puzzle-proxy/internal/api"
	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 10*time.Second, cfg.Timeout())
	require.Equal(t, api.FailurePolicyError, cfg.Proxy.FailurePolicy)
	require.Equal(t, "none", cfg.Snapshots.Backend)
	require.Equal(t, "puzzle-resolutions", cfg.Events.Topic)
	require.Equal(t, "puzzle_attempts", cfg.Ledger.Table)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout())

	candidates, err := cfg.Candidates()
	require.NoError(t, err)
	require.Equal(t, resolver.DefaultCandidates(), candidates)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
logging:
  development: true
proxy:
  timeout_seconds: 3
  failure_policy: placeholder
  candidates:
    - name: mirror
      url_template: https://mirror.example/mini/{date}.json
      kind: json
      headers:
        x-api-key: secret
    - name: game
      url_template: https://www.nytimes.com/crosswords/game/mini/{yyyy}/{m}/{d}
      kind: html
      promote: true
      referer: https://www.nytimes.com/crosswords
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  ready_expression: window.gameData !== undefined
snapshots:
  backend: local
  base_dir: /tmp/snapshots
events:
  backend: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, 3*time.Second, cfg.Timeout())
	require.Equal(t, api.FailurePolicyPlaceholder, cfg.Proxy.FailurePolicy)
	require.True(t, cfg.Headless.Enabled)
	require.Equal(t, 30*time.Second, cfg.NavTimeout())
	require.Equal(t, "window.gameData !== undefined", cfg.Headless.ReadyExpression)
	require.Equal(t, "/tmp/snapshots", cfg.Snapshots.BaseDir)

	candidates, err := cfg.Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "mirror", candidates[0].Name)
	require.Equal(t, resolver.KindJSON, candidates[0].Kind)
	require.Equal(t, "secret", candidates[0].Headers.Get("X-Api-Key"))
	require.Contains(t, candidates[0].Headers.Get("Accept"), "application/json")
	require.NotEmpty(t, candidates[0].Headers.Get("User-Agent"))
	require.Equal(t, resolver.KindHTML, candidates[1].Kind)
	require.True(t, candidates[1].Promote)
	require.Equal(t, "https://www.nytimes.com/crosswords", candidates[1].Headers.Get("Referer"))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("PUZZLE_PROXY_FAILURE_POLICY", "placeholder")
	t.Setenv("PUZZLE_LOGGING_DEVELOPMENT", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, api.FailurePolicyPlaceholder, cfg.Proxy.FailurePolicy)
	require.True(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080},
			Proxy:  ProxyConfig{TimeoutSeconds: 10, FailurePolicy: api.FailurePolicyError},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, errMsg: "server.port"},
		{name: "timeout", mutate: func(c *Config) { c.Proxy.TimeoutSeconds = 0 }, errMsg: "proxy.timeout_seconds"},
		{name: "policy", mutate: func(c *Config) { c.Proxy.FailurePolicy = "retry" }, errMsg: "proxy.failure_policy"},
		{
			name:   "headless parallel",
			mutate: func(c *Config) { c.Headless = HeadlessConfig{Enabled: true} },
			errMsg: "headless.max_parallel",
		},
		{name: "local dir", mutate: func(c *Config) { c.Snapshots.Backend = "local" }, errMsg: "snapshots.base_dir"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Snapshots.Backend = "gcs" }, errMsg: "snapshots.gcs_bucket"},
		{name: "snapshot backend", mutate: func(c *Config) { c.Snapshots.Backend = "s3" }, errMsg: "snapshots.backend"},
		{name: "pubsub", mutate: func(c *Config) { c.Events.Backend = "pubsub" }, errMsg: "events.project_id"},
		{name: "events backend", mutate: func(c *Config) { c.Events.Backend = "kafka" }, errMsg: "events.backend"},
		{
			name: "candidate name",
			mutate: func(c *Config) {
				c.Proxy.Candidates = []CandidateConfig{{URLTemplate: "https://a.example/{date}"}}
			},
			errMsg: "name is required",
		},
		{
			name: "candidate duplicate",
			mutate: func(c *Config) {
				c.Proxy.Candidates = []CandidateConfig{
					{Name: "a", URLTemplate: "https://a.example/{date}"},
					{Name: "a", URLTemplate: "https://b.example/{date}"},
				}
			},
			errMsg: "duplicate candidate",
		},
		{
			name: "candidate url",
			mutate: func(c *Config) {
				c.Proxy.Candidates = []CandidateConfig{{Name: "a", URLTemplate: "/relative/{date}"}}
			},
			errMsg: "absolute URL",
		},
		{
			name: "candidate kind",
			mutate: func(c *Config) {
				c.Proxy.Candidates = []CandidateConfig{{Name: "a", URLTemplate: "https://a.example/{date}", Kind: "xml"}}
			},
			errMsg: "unknown candidate kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
