// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Upstream data sources
	TxServiceOverride string            // overrides the per-network Safe Transaction Service base URL
	RPCEndpoints      map[string]string // RPC network name → endpoint URL
	SanctionsAPIURL   string
	SanctionsAPIKey   string

	// Upstream behavior
	UpstreamTimeout  time.Duration // per-call timeout for every external fetch
	SanctionsRPS     float64       // sanctions API request budget, per second
	BreakerThreshold int
	BreakerOpenFor   time.Duration

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultSanctionsAPIURL  = "https://public.chainalysis.com"
	DefaultUpstreamTimeout  = 10 * time.Second
	DefaultSanctionsRPS     = 4.0
	DefaultBreakerThreshold = 5
	DefaultBreakerOpenFor   = 30 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		TxServiceOverride: os.Getenv("TX_SERVICE_URL"),
		RPCEndpoints:      loadRPCEndpoints(),
		SanctionsAPIURL:   getEnv("SANCTIONS_API_URL", DefaultSanctionsAPIURL),
		SanctionsAPIKey:   os.Getenv("SANCTIONS_API_KEY"),
		UpstreamTimeout:   getEnvDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
		SanctionsRPS:      getEnvFloat("SANCTIONS_RPS", DefaultSanctionsRPS),
		BreakerThreshold:  int(getEnvInt64("BREAKER_THRESHOLD", DefaultBreakerThreshold)),
		BreakerOpenFor:    getEnvDuration("BREAKER_OPEN_FOR", DefaultBreakerOpenFor),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadRPCEndpoints collects RPC_URL_<NETWORK> variables into a map keyed
// by the lower-cased network name, e.g. RPC_URL_MAINNET=https://...
// becomes {"mainnet": "https://..."}.
func loadRPCEndpoints() map[string]string {
	endpoints := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		name, found := strings.CutPrefix(key, "RPC_URL_")
		if !found || name == "" {
			continue
		}
		// RPC_URL_ARBITRUM_ONE → arbitrum-one
		endpoints[strings.ReplaceAll(strings.ToLower(name), "_", "-")] = value
	}
	return endpoints
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.SanctionsAPIURL == "" {
		return fmt.Errorf("SANCTIONS_API_URL is required")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.SanctionsRPS <= 0 {
		return fmt.Errorf("SANCTIONS_RPS must be positive")
	}
	return nil
}

// RPCEndpoint returns the configured RPC URL for a network name, if any.
func (c *Config) RPCEndpoint(networkName string) (string, bool) {
	url, ok := c.RPCEndpoints[strings.ToLower(networkName)]
	return url, ok
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
