// Package config holds process-wide settings read once at startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultCheckInterval is the scheduler tick period.
	DefaultCheckInterval = 60 * time.Second

	// minCheckInterval is the floor for SCHEDULER_CHECK_INTERVAL.
	minCheckInterval = 1 * time.Second
)

// Config is the process configuration. All fields are resolved at startup
// and never mutated afterwards.
type Config struct {
	// WebUIURL is the public base URL used for deep links in notifications.
	// Normalized without a trailing slash. Empty means deep links are omitted.
	WebUIURL string

	// Port is the local port used for fallback deep links when WebUIURL is
	// unset, and the listen port for the gateway.
	Port string

	// CheckInterval is the scheduler poll period.
	CheckInterval time.Duration

	// DatabaseURL selects the Postgres backend when non-empty. When empty the
	// engine runs in standalone mode on a local sqlite file.
	DatabaseURL string

	// SQLitePath is the standalone database file.
	SQLitePath string

	// JWTSecret signs the short-lived bearer tokens minted per run.
	JWTSecret string

	// ModelsPath is a JSON file describing the available models and their
	// default tool configurations.
	ModelsPath string

	// OTLPEndpoint enables trace export when non-empty (host:port).
	OTLPEndpoint string
}

// Load reads configuration from the environment. An optional .env file in the
// working directory is merged in first (never overriding real env vars).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: failed to load .env", "error", err)
	}

	cfg := &Config{
		WebUIURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("WEBUI_URL")), "/"),
		Port:          envOr("PORT", "8080"),
		CheckInterval: DefaultCheckInterval,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    envOr("SQLITE_PATH", defaultSQLitePath()),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ModelsPath:    os.Getenv("MODELS_PATH"),
		OTLPEndpoint:  os.Getenv("OTLP_ENDPOINT"),
	}

	if raw := os.Getenv("SCHEDULER_CHECK_INTERVAL"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_CHECK_INTERVAL %q: %w", raw, err)
		}
		cfg.CheckInterval = time.Duration(secs) * time.Second
	}
	if cfg.CheckInterval < minCheckInterval {
		cfg.CheckInterval = minCheckInterval
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// ListenAddr is the gateway listen address.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// Redacted returns a copy safe for logging, with secrets masked.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.JWTSecret != "" {
		cp.JWTSecret = "***"
	}
	if cp.DatabaseURL != "" {
		cp.DatabaseURL = "***"
	}
	return cp
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "promptsched.db"
	}
	return filepath.Join(home, ".promptsched", "promptsched.db")
}
