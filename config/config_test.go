package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capacity-engine/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capacity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	// GIVEN: a file that sets only some keys
	path := writeFile(t, `
server:
  port: 9090
cache:
  matrix_ttl: 10m
log:
  format: json
`)

	// WHEN: loading it
	cfg, err := config.Load(path)

	// THEN: the keys it sets win, the rest keep defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Cache.MatrixTTL)
	assert.Equal(t, 2*time.Minute, cfg.Cache.SummaryTTL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "capacity.db", cfg.Database.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DATABASE_PATH", "/tmp/other.db")
	t.Setenv("CACHE_WARM_INTERVAL", "30s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_CHANNEL", "practice")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Cache.WarmInterval)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "practice", cfg.Redis.Channel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MalformedEnvIsIgnored(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("CACHE_MATRIX_TTL", "soon")

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MatrixTTL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }},
		{"empty database path", func(c *config.Config) { c.Database.Path = "" }},
		{"zero matrix ttl", func(c *config.Config) { c.Cache.MatrixTTL = 0 }},
		{"negative debounce", func(c *config.Config) { c.Cache.RefreshDebounce = -time.Second }},
		{"redis without channel", func(c *config.Config) { c.Redis.Enabled = true; c.Redis.Channel = "" }},
		{"unknown log level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"unknown log format", func(c *config.Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, config.Default().Validate())
}
