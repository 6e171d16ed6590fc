/*
Package config loads server configuration from the environment.

PURPOSE:

	Centralizes every runtime knob of the challenge engine server. Values
	come from CHALLENGE_* environment variables via envconfig, with
	defaults suitable for local development. cmd/server/main.go lets
	command-line flags override individual fields.

ENVIRONMENT VARIABLES:

	CHALLENGE_PORT             HTTP listen port (default 8080)
	CHALLENGE_DB_PATH          SQLite database file (default challenge.db)
	CHALLENGE_ALLOWED_ORIGINS  CORS origins, comma-separated (default *)
	CHALLENGE_SHUTDOWN_TIMEOUT Graceful shutdown deadline (default 10s)

SEE ALSO:
  - cmd/server/main.go: Flag overrides and startup
*/
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all server settings.
type Config struct {
	Port            int           `envconfig:"PORT" default:"8080"`
	DBPath          string        `envconfig:"DB_PATH" default:"challenge.db"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads configuration from CHALLENGE_* environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("challenge", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
