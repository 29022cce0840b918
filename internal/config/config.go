// Package config loads process-wide configuration from the
// environment (and an optional .env file), grounded on the
// load-once-and-cache pattern described by the foundation module's
// core/config package, backed here by caarlos0/env and godotenv.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds process-wide settings read once at startup.
type AppConfig struct {
	Port                 int           `env:"APP_PORT" envDefault:"8000"`
	SettingsFile         string        `env:"SETTINGS_FILE" envDefault:"backend/config/app_settings.json"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	DBConnectTimeout     time.Duration `env:"DB_CONNECT_TIMEOUT_SECONDS" envDefault:"5s"`
	ShutdownGraceTimeout time.Duration `env:"SHUTDOWN_GRACE_SECONDS" envDefault:"10s"`
}

var (
	dotenvOnce  sync.Once
	loadOnce    sync.Once
	cachedValue AppConfig
	cachedErr   error
)

// loadDotenv loads a .env file from the working directory if present.
// A missing file is not an error here: godotenv.Load reports it as
// one, and that error is discarded, since this is best-effort local
// convenience, not a deployment requirement.
func loadDotenv() {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// Load parses AppConfig from the environment, caching the result for
// the life of the process — later calls return the same value without
// re-reading the environment, matching the foundation module's
// load-once-per-type caching behavior.
func Load() (AppConfig, error) {
	loadDotenv()
	loadOnce.Do(func() {
		cachedErr = loadInto(&cachedValue)
	})
	return cachedValue, cachedErr
}

// loadInto parses AppConfig from the environment directly, bypassing
// the process-lifetime cache. Called directly by this package's tests,
// which need a fresh parse per environment fixture.
func loadInto(cfg *AppConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	return nil
}

// MustLoad calls Load and panics on failure, for use during startup
// where a misconfigured process should not continue.
func MustLoad() AppConfig {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
