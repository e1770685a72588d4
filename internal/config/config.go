// Package config handles application configuration from environment variables
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	BaseURL   string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// DataDir holds the local store and cache partition databases.
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// OriginURL is the upstream origin the caching proxy fronts (the
	// host serving the app shell and assets). Empty disables the
	// proxy; the portal then serves API traffic only.
	OriginURL string `env:"ORIGIN_URL"`

	// CacheVersion tags the proxy partitions; bumped at deploy time.
	CacheVersion string `env:"CACHE_VERSION" envDefault:"v1"`

	Backend BackendConfig `envPrefix:"BACKEND_"`
	SMS     SMSConfig     `envPrefix:"SMS_"`
}

// BackendConfig points at the hosted data/auth/storage service.
type BackendConfig struct {
	URL    string `env:"URL"`
	APIKey string `env:"API_KEY"`
}

// SMSConfig configures the outbound SMS gateway.
type SMSConfig struct {
	URL    string `env:"GATEWAY_URL"`
	APIKey string `env:"API_KEY"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// HasBackend returns true when the hosted service is configured;
// without it the portal still serves the offline shell.
func (c *Config) HasBackend() bool {
	return c.Backend.URL != ""
}

// HasSMS returns true when the SMS gateway is configured.
func (c *Config) HasSMS() bool {
	return c.SMS.URL != "" && c.SMS.APIKey != ""
}

// Validate ensures the configuration is serveable.
func (c *Config) Validate() error {
	if c.CacheVersion == "" {
		return fmt.Errorf("CACHE_VERSION must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	return nil
}
