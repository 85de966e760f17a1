// Package config loads runtime configuration from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all runtime settings. Every field can be set through the
// environment; CLI flags override where offered.
type Config struct {
	Addr string `env:"FEEDHAVEN_ADDR, default=:8080"`

	// DBDriver selects the store backend: "sqlite" or "postgres".
	DBDriver string `env:"FEEDHAVEN_DB_DRIVER, default=sqlite"`
	// DBDSN is a file path for sqlite or a connection URL for postgres.
	DBDSN string `env:"FEEDHAVEN_DB_DSN, default=feedhaven.db"`

	FetchTimeout   time.Duration `env:"FEEDHAVEN_FETCH_TIMEOUT, default=10s"`
	ExtractTimeout time.Duration `env:"FEEDHAVEN_EXTRACT_TIMEOUT, default=15s"`

	// RefreshConcurrency caps simultaneous feed syncs during bulk refresh
	// and OPML import.
	RefreshConcurrency int `env:"FEEDHAVEN_REFRESH_CONCURRENCY, default=5"`

	PollInterval time.Duration `env:"FEEDHAVEN_POLL_INTERVAL, default=30m"`

	UserAgent string `env:"FEEDHAVEN_USER_AGENT, default=feedhaven/1.0"`
}

// Load populates a Config from the environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
