// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// Base URLs of the three AI collaborator services.
	SlotAPIURL   string
	IntentAPIURL string
	RAGAPIURL    string

	Timeout TimeoutConfig
}

// TimeoutConfig groups request timeouts.
type TimeoutConfig struct {
	Collaborator time.Duration
	HealthCheck  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "5000"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/admitchat.db"),
		SlotAPIURL:   getEnv("SLOT_API_URL", ""),
		IntentAPIURL: getEnv("INTENT_API_URL", ""),
		RAGAPIURL:    getEnv("RAG_API_URL", ""),
		Timeout: TimeoutConfig{
			Collaborator: getEnvDuration("COLLABORATOR_TIMEOUT", 30*time.Second),
			HealthCheck:  getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SlotAPIURL == "" {
		return fmt.Errorf("SLOT_API_URL cannot be empty")
	}
	if c.IntentAPIURL == "" {
		return fmt.Errorf("INTENT_API_URL cannot be empty")
	}
	if c.RAGAPIURL == "" {
		return fmt.Errorf("RAG_API_URL cannot be empty")
	}
	if c.Timeout.Collaborator <= 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
