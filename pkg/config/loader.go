// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load populates cfg from environment variables using its `env` struct
// tags, falling back to `envDefault` values for anything unset.
//
//	type ServerConfig struct {
//	    HTTPPort int    `env:"HTTP_PORT" envDefault:"8011"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
