// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Audit queue
	QueueConcurrency int           `env:"QUEUE_CONCURRENCY" envDefault:"2"`
	QueueTimeout     time.Duration `env:"QUEUE_TIMEOUT" envDefault:"5m"` // Per-job executor budget

	// Webhook delivery
	WebhookMaxRetries     int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookTimeout        time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"` // Per delivery attempt
	WebhookRetryBaseDelay time.Duration `env:"WEBHOOK_RETRY_BASE_DELAY" envDefault:"2s"`
	WebhookSecretLength   int           `env:"WEBHOOK_SECRET_LENGTH" envDefault:"32"`
	WebhookFailureCeiling int           `env:"WEBHOOK_FAILURE_CEILING" envDefault:"10"`

	// API key generation
	APIKeyLength int `env:"API_KEY_LENGTH" envDefault:"32"`

	// Rate limiting
	RateLimitAPIEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	// IP limits for the unauthenticated register/login endpoints
	RateLimitAuthEnabled bool `env:"RATE_LIMIT_AUTH_ENABLED" envDefault:"true"`
	RateLimitAuthRPS     int  `env:"RATE_LIMIT_AUTH_RPS" envDefault:"5"`
	RateLimitAuthBurst   int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"10"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing or out of range.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// validate applies bounds the env tags cannot express. Out-of-range
// values fail boot instead of misbehaving at runtime.
func (c *Config) validate() error {
	if c.AppPort < 1 || c.AppPort > 65535 {
		return fmt.Errorf("APP_PORT %d out of range", c.AppPort)
	}
	if c.QueueConcurrency < 1 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be at least 1, got %d", c.QueueConcurrency)
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("QUEUE_TIMEOUT must be positive, got %s", c.QueueTimeout)
	}
	if c.WebhookMaxRetries < 0 {
		return fmt.Errorf("WEBHOOK_MAX_RETRIES must not be negative, got %d", c.WebhookMaxRetries)
	}
	if c.WebhookFailureCeiling < 1 {
		return fmt.Errorf("WEBHOOK_FAILURE_CEILING must be at least 1, got %d", c.WebhookFailureCeiling)
	}
	if c.MaxRequestBodySize < 1024 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be at least 1024 bytes, got %d", c.MaxRequestBodySize)
	}
	return nil
}
