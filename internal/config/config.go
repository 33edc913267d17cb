// Package config loads server configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Server holds the runtime configuration for the tribunal service.
type Server struct {
	// Port the HTTP gateway listens on.
	Port string `env:"TRIBUNAL_PORT" envDefault:"8080"`

	// GraphsDir is the directory of YAML dialogue graph definitions.
	GraphsDir string `env:"TRIBUNAL_GRAPHS_DIR" envDefault:"./graphs"`

	// Store selects the session store backend: memory, redis, or sqlite.
	Store string `env:"TRIBUNAL_STORE" envDefault:"memory"`

	// RedisAddr configures the redis backend.
	RedisAddr     string `env:"TRIBUNAL_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"TRIBUNAL_REDIS_PASSWORD"`
	RedisDB       int    `env:"TRIBUNAL_REDIS_DB" envDefault:"0"`

	// SQLitePath configures the sqlite backend.
	SQLitePath string `env:"TRIBUNAL_SQLITE_PATH" envDefault:"./tribunal.db"`

	// JWTSecret verifies instructor bearer tokens. Token issuance happens
	// elsewhere; the gateway only verifies.
	JWTSecret string `env:"TRIBUNAL_JWT_SECRET"`

	// TieBreak selects the default-option tie-break policy:
	// first_by_order or priority.
	TieBreak string `env:"TRIBUNAL_TIE_BREAK" envDefault:"first_by_order"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `env:"TRIBUNAL_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads a Server config from the environment.
func ParseEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
