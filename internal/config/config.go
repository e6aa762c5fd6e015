// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/promotrack/promotrack/internal/fraud"
	"github.com/promotrack/promotrack/internal/ratelimit"
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

	// Public base URL of the service
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Bearer tokens
	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"promotrack"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	// Generic rate limiting (per endpoint class)
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests int64         `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"3600s"`
	RateLimitLogin    int64         `env:"RATE_LIMIT_LOGIN" envDefault:"5"`
	RateLimitRegister int64         `env:"RATE_LIMIT_REGISTER" envDefault:"3"`

	// Tracking rate limiting
	TrackLimitPerCode  int64         `env:"TRACK_LIMIT_PER_CODE" envDefault:"20"`
	TrackWindowPerCode time.Duration `env:"TRACK_WINDOW_PER_CODE" envDefault:"1m"`
	TrackLimitPerIP    int64         `env:"TRACK_LIMIT_PER_IP" envDefault:"50"`
	TrackWindowPerIP   time.Duration `env:"TRACK_WINDOW_PER_IP" envDefault:"1h"`

	// Fraud heuristics
	FraudRapidClickLimit        int64 `env:"FRAUD_RAPID_CLICK_LIMIT" envDefault:"10"`
	FraudSameReferrerThreshold  int64 `env:"FRAUD_SAME_REFERRER_THRESHOLD" envDefault:"20"`
	FraudEmptyReferrerThreshold int64 `env:"FRAUD_EMPTY_REFERRER_THRESHOLD" envDefault:"30"`

	// Geolocation lookups
	GeoEnabled  bool          `env:"GEO_ENABLED" envDefault:"false"`
	GeoEndpoint string        `env:"GEO_ENDPOINT" envDefault:""`
	GeoTimeout  time.Duration `env:"GEO_TIMEOUT" envDefault:"2s"`
	GeoRPS      float64       `env:"GEO_RPS" envDefault:"0.75"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Trust CF-Connecting-IP / X-Forwarded-For / X-Real-IP for client addresses.
	// Enable only behind a proxy that overwrites them.
	TrustedProxyHeaders bool `env:"TRUSTED_PROXY_HEADERS" envDefault:"false"`
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

// RateLimitPolicy returns the per-class quotas.
func (c *Config) RateLimitPolicy() ratelimit.Policy {
	return ratelimit.Policy{
		Login:    c.RateLimitLogin,
		Register: c.RateLimitRegister,
		API:      c.RateLimitRequests,
		Window:   c.RateLimitWindow,
	}
}

// TrackingQuota returns the tracking limiter quotas.
func (c *Config) TrackingQuota() ratelimit.TrackingQuota {
	return ratelimit.TrackingQuota{
		PerCode:       c.TrackLimitPerCode,
		PerCodeWindow: c.TrackWindowPerCode,
		PerIP:         c.TrackLimitPerIP,
		PerIPWindow:   c.TrackWindowPerIP,
	}
}

// FraudConfig returns the fraud thresholds on top of the stock windows.
func (c *Config) FraudConfig() fraud.Config {
	cfg := fraud.DefaultConfig()
	cfg.RapidClickLimit = c.FraudRapidClickLimit
	cfg.SameReferrerThreshold = c.FraudSameReferrerThreshold
	cfg.EmptyReferrerThreshold = c.FraudEmptyReferrerThreshold
	return cfg
}

// GeoConfig returns the geolocation client settings.
func (c *Config) GeoConfig() fraud.GeoConfig {
	return fraud.GeoConfig{
		Endpoint: c.GeoEndpoint,
		Timeout:  c.GeoTimeout,
		RPS:      c.GeoRPS,
		Burst:    1,
	}
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if cfg.RateLimitWindow <= 0 || cfg.TrackWindowPerCode <= 0 || cfg.TrackWindowPerIP <= 0 {
		return nil, fmt.Errorf("rate limit windows must be positive")
	}
	return cfg, nil
}
