package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// JWTConfig holds configuration for JWT token generation and validation.
type JWTConfig struct {
	Secret          string `env:"JWT_SECRET"`
	ExpirationHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`
}

// NewJWTConfig reads JWT_SECRET (required) and JWT_EXPIRATION_HOURS (default: 24).
func NewJWTConfig() (*JWTConfig, error) {
	cfg := &JWTConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("invalid JWT configuration: %w", err)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// JWTSecretConfigured reports whether JWT_SECRET is set, which switches API authentication on.
func JWTSecretConfigured() bool {
	return os.Getenv("JWT_SECRET") != ""
}

// Enabled reports whether a secret is configured.
func (c *JWTConfig) Enabled() bool {
	return c != nil && c.Secret != ""
}

func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
