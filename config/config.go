/*
config.go - Server configuration

PURPOSE:
  Collects everything the server needs to start: listen address, database
  path, cache lifetimes, the optional Redis relay and logging.

HOW IT WORKS:
  1. Start from Default()
  2. If a path is given, overlay the YAML file on top of the defaults
  3. Overlay environment variables
  4. Validate

  Unset YAML keys keep their defaults. Malformed environment values are
  ignored and the previous value is kept.

ENVIRONMENT:
  SERVER_HOST, SERVER_PORT, CORS_ALLOWED_ORIGINS (comma separated)
  DATABASE_PATH
  CACHE_MATRIX_TTL, CACHE_SUMMARY_TTL, CACHE_WARM_INTERVAL, REFRESH_DEBOUNCE
  REDIS_ENABLED, REDIS_ADDRESS, REDIS_PASSWORD, REDIS_CHANNEL
  LOG_LEVEL (debug|info|warn|error), LOG_FORMAT (text|json)

SEE ALSO:
  - cmd/server/main.go: Flags override the loaded values
*/
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the capacity server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds cache lifetimes and the warm-up cadence.
type CacheConfig struct {
	MatrixTTL       time.Duration `yaml:"matrix_ttl"`
	SummaryTTL      time.Duration `yaml:"summary_ttl"`
	WarmInterval    time.Duration `yaml:"warm_interval"`
	RefreshDebounce time.Duration `yaml:"refresh_debounce"`
}

// RedisConfig holds the change-event relay settings. The relay is off
// unless Enabled is set.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{
			Path: "capacity.db",
		},
		Cache: CacheConfig{
			MatrixTTL:       5 * time.Minute,
			SummaryTTL:      2 * time.Minute,
			WarmInterval:    4 * time.Minute,
			RefreshDebounce: 2 * time.Second,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Channel: "capacity:events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.AllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)

	c.Cache.MatrixTTL = getEnvAsDuration("CACHE_MATRIX_TTL", c.Cache.MatrixTTL)
	c.Cache.SummaryTTL = getEnvAsDuration("CACHE_SUMMARY_TTL", c.Cache.SummaryTTL)
	c.Cache.WarmInterval = getEnvAsDuration("CACHE_WARM_INTERVAL", c.Cache.WarmInterval)
	c.Cache.RefreshDebounce = getEnvAsDuration("REFRESH_DEBOUNCE", c.Cache.RefreshDebounce)

	c.Redis.Enabled = getEnvAsBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Address = getEnv("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Channel = getEnv("REDIS_CHANNEL", c.Redis.Channel)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Cache.MatrixTTL <= 0 || c.Cache.SummaryTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.WarmInterval < 0 || c.Cache.RefreshDebounce < 0 {
		return fmt.Errorf("warm interval and refresh debounce must not be negative")
	}
	if c.Redis.Enabled && (c.Redis.Address == "" || c.Redis.Channel == "") {
		return fmt.Errorf("redis address and channel are required when redis is enabled")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("invalid log level: %q", l.Level)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w *os.File) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
