// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

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

	// Escrow settings
	CommissionRatePercent int // Platform commission in whole percent

	// Security
	ServiceKey    string // Shared key for the marketplace backend
	AdminSecret   string // Admin API secret for release/resolution endpoints
	RateLimitRPM  int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultCommissionRate = 15
	DefaultRateLimit      = 300
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		CommissionRatePercent: int(getEnvInt64("COMMISSION_RATE_PERCENT", DefaultCommissionRate)),
		ServiceKey:            os.Getenv("SERVICE_KEY"),
		AdminSecret:           os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:          int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.CommissionRatePercent < 0 || c.CommissionRatePercent > 100 {
		return fmt.Errorf("COMMISSION_RATE_PERCENT must be between 0 and 100, got %d", c.CommissionRatePercent)
	}

	if c.RateLimitRPM < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must not be negative")
	}

	if c.IsProduction() {
		if c.ServiceKey == "" {
			return fmt.Errorf("SERVICE_KEY is required in production")
		}
		if c.AdminSecret == "" {
			return fmt.Errorf("ADMIN_SECRET is required in production")
		}
	}

	return nil
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
