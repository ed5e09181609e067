// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/caarlos0/env/v11"
)

// Revocation fallback policies accepted by REVOCATION_FALLBACK.
const (
	FallbackAlways  = "always"
	FallbackOnError = "on_error"
)

// OTP delivery channels accepted by OTP_CHANNEL.
const (
	ChannelStream = "stream"
	ChannelLog    = "log"
)

// # Configuration Schema

// Config holds all runtime configuration for the identity API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// MigrationPath overrides the embedded SQL migrations with a directory on disk.
	MigrationPath string `env:"MIGRATION_PATH"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Token signing. The two secrets must differ so that one token kind can
	// never be verified as the other.
	AccessSecret    string        `env:"JWT_ACCESS_SECRET,required,notEmpty"`
	RefreshSecret   string        `env:"JWT_REFRESH_SECRET,required,notEmpty"`
	Issuer          string        `env:"JWT_ISSUER"         envDefault:"otpgate"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"   envDefault:"60m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"  envDefault:"168h"`

	// RotateRefreshTokens revokes the presented refresh token on every refresh.
	RotateRefreshTokens bool `env:"ROTATE_REFRESH_TOKENS" envDefault:"false"`

	// One-time passcodes
	PasscodeTTL time.Duration `env:"OTP_TTL"     envDefault:"10m"`
	OTPChannel  string        `env:"OTP_CHANNEL" envDefault:"stream"`

	// Fixed-window rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"60s"`

	// Per-identifier attempt limiting on /verify-otp and /login
	AttemptLimitRequests int           `env:"ATTEMPT_LIMIT_REQUESTS" envDefault:"10"`
	AttemptLimitWindow   time.Duration `env:"ATTEMPT_LIMIT_WINDOW"   envDefault:"10m"`

	// TrustedProxies lists the CIDR ranges whose X-Real-IP and X-Forwarded-For
	// headers are believed. Empty means the socket address is always used.
	TrustedProxies []netip.Prefix `env:"TRUSTED_PROXIES" envSeparator:","`

	// StoreTimeout bounds every single call to Redis or PostgreSQL made by the core.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`

	// RevocationFallback selects when the durable tier is consulted on a cache miss.
	RevocationFallback string `env:"REVOCATION_FALLBACK" envDefault:"always"`

	// RevocationRetention is how long durable revocation rows are kept past
	// their token expiry. Zero keeps the audit trail forever.
	RevocationRetention time.Duration `env:"REVOCATION_RETENTION" envDefault:"0"`

	// UserLookupEnabled starts the user.lookup.request stream responder.
	UserLookupEnabled bool `env:"USER_LOOKUP_ENABLED" envDefault:"true"`

	// Cross-Origin Resource Sharing
	ExtraOrigins []string `env:"EXTRA_ORIGINS" envSeparator:","`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field invariants that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.PasscodeTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	if c.AttemptLimitRequests <= 0 || c.AttemptLimitWindow <= 0 {
		errs = append(errs, errors.New("attempt limit requests and window must be positive"))
	}
	if c.RevocationRetention < 0 {
		errs = append(errs, errors.New("REVOCATION_RETENTION must not be negative"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.RevocationFallback != FallbackAlways && c.RevocationFallback != FallbackOnError {
		errs = append(errs, fmt.Errorf("REVOCATION_FALLBACK must be %q or %q", FallbackAlways, FallbackOnError))
	}
	if c.OTPChannel != ChannelStream && c.OTPChannel != ChannelLog {
		errs = append(errs, fmt.Errorf("OTP_CHANNEL must be %q or %q", ChannelStream, ChannelLog))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the origins permitted by CORS outside development.
func (c *Config) AllowedOrigins() []string {
	return c.ExtraOrigins
}
