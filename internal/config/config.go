// Package config loads node configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the tunables for a node process.
//
// All values have working defaults; a bare environment yields a usable
// single-node configuration with the database beside the working directory.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string `env:"LATTICE_DB_PATH" envDefault:"lattice.db"`

	// RequestTimeout bounds how long a caller waits for a response event.
	RequestTimeout time.Duration `env:"LATTICE_REQUEST_TIMEOUT" envDefault:"5s"`

	// PollInterval is the response-wait polling granularity.
	PollInterval time.Duration `env:"LATTICE_POLL_INTERVAL" envDefault:"100ms"`

	// MaxCascadeDepth bounds transitive transform re-execution per mutation.
	MaxCascadeDepth int `env:"LATTICE_MAX_CASCADE_DEPTH" envDefault:"32"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.MaxCascadeDepth < 1 {
		return Config{}, fmt.Errorf("LATTICE_MAX_CASCADE_DEPTH must be >= 1, got %d", cfg.MaxCascadeDepth)
	}
	if cfg.PollInterval <= 0 || cfg.PollInterval > cfg.RequestTimeout {
		return Config{}, fmt.Errorf("poll interval %v must be positive and no larger than request timeout %v",
			cfg.PollInterval, cfg.RequestTimeout)
	}
	return cfg, nil
}
