package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ORDERCOPILOT_LOG_LEVEL", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash-lite", cfg.LLM.Model)
	assert.Equal(t, 3*time.Second, cfg.Tracker.Delay)
	assert.Equal(t, 10*time.Minute, cfg.Tracker.TTL)
	assert.Equal(t, time.Minute, cfg.Tracker.SweepInterval)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, ":8001", cfg.Agents.Catalog.Addr)
	assert.Equal(t, "http://localhost:8002", cfg.Agents.Compliance.BaseURL)
	assert.Equal(t, []int{429, 500, 503, 504}, cfg.LLM.Retry.StatusCodes)
}

func TestLoad_ReadsYAML(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ORDERCOPILOT_LOG_LEVEL", "")

	dir := t.TempDir()
	yml := `
llm:
  model: gemini-test
  retry:
    attempts: 2
tracker:
  delay: 250ms
  ttl: 1h
session:
  maxTurns: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ordercopilot.yml"), []byte(yml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "gemini-test", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.LLM.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Tracker.Delay)
	assert.Equal(t, time.Hour, cfg.Tracker.TTL)
	assert.Equal(t, 4, cfg.Session.MaxTurns)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// untouched sections still get defaults
	assert.Equal(t, ":8080", cfg.Chat.Addr)
}

func TestLoad_FallsBackToYAMLExtension(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ORDERCOPILOT_LOG_LEVEL", "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ordercopilot.yaml"), []byte("chat:\n  addr: \":9999\"\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Chat.Addr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ordercopilot.yml"), []byte("llm: [unclosed"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"GOOGLE_API_KEY":         "key-123",
		"CATALOG_BASE_URL":       "http://catalog:8001",
		"COMPLIANCE_BASE_URL":    "http://compliance:8002",
		"ORCHESTRATOR_BASE_URL":  "http://orchestrator:8003",
		"REDIS_URL":              "redis://cache:6379/0",
		"ORDERCOPILOT_LOG_LEVEL": "WARN",
	}))

	assert.Equal(t, "key-123", cfg.LLM.APIKey)
	assert.Equal(t, "http://catalog:8001", cfg.Agents.Catalog.BaseURL)
	assert.Equal(t, "http://compliance:8002", cfg.Agents.Compliance.BaseURL)
	assert.Equal(t, "http://orchestrator:8003", cfg.Agents.Orchestrator.BaseURL)
	assert.Equal(t, BackendRedis, cfg.Session.Backend)
	assert.Equal(t, "redis://cache:6379/0", cfg.Session.RedisURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{"GOOGLE_API_KEY": "", "REDIS_URL": ""}))
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)

	cfg.ApplyEnv(noEnv)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Tracker.Delay = -time.Second },
			wantErr: "tracker.delay",
		},
		{
			name:    "negative ttl",
			mutate:  func(c *Config) { c.Tracker.TTL = -time.Second },
			wantErr: "tracker.ttl",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Session.Backend = "etcd" },
			wantErr: "session.backend",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Session.Backend = BackendRedis },
			wantErr: "session.redisURL",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.LLM.Retry.Attempts = 0 },
			wantErr: "llm.retry.attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
