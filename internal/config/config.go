// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"

	minStateSecretLen = 32
)

// Config holds all environment-based configuration.
type Config struct {
	// Document store. STORE_ENDPOINT is the path of the local store file.
	StoreEndpoint          string `env:"STORE_ENDPOINT,required"`
	StoreProjectID         string `env:"STORE_PROJECT_ID,required"`
	StoreAPIKey            string `env:"STORE_API_KEY,required"`
	DatabaseID             string `env:"DATABASE_ID,required"`
	TokensCollectionID     string `env:"TOKENS_COLLECTION_ID,required"`
	IdentitiesCollectionID string `env:"IDENTITIES_COLLECTION_ID" envDefault:"identities"`
	StoreDriver            string `env:"STORE_DRIVER" envDefault:"sqlite"`

	Port        int    `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// Google OAuth. The /auth routes are only mounted when a client id is set.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	BaseURL            string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	StateSecret        string `env:"STATE_SECRET"`

	// Endpoint overrides, mostly for tests against a fake provider.
	GoogleAuthURL     string `env:"GOOGLE_AUTH_URL"`
	GoogleTokenURL    string `env:"GOOGLE_TOKEN_URL"`
	GoogleUserInfoURL string `env:"GOOGLE_USERINFO_URL"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverBolt, c.StoreDriver)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.OAuthEnabled() {
		if c.GoogleClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
		}
		if len(c.StateSecret) < minStateSecretLen {
			return fmt.Errorf("STATE_SECRET must be at least %d characters when GOOGLE_CLIENT_ID is set", minStateSecretLen)
		}
	}

	return nil
}

// OAuthEnabled reports whether the Google login and refresh routes are configured.
func (c *Config) OAuthEnabled() bool {
	return c.GoogleClientID != ""
}

// CallbackURL is the redirect URI registered with the provider.
func (c *Config) CallbackURL() string {
	return c.BaseURL + "/auth/google/callback"
}

// ParseLevel maps LOG_LEVEL to a slog level. Empty means "pick by environment".
func ParseLevel(s string) (*slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
	}
	return &lvl, nil
}
