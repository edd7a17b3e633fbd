// Package config holds the process configuration for mailpeek.
//
// Configuration is read once at startup from environment variables (with
// optional flag overrides in cmd/serve.go) and passed explicitly into each
// component. There are no lazily initialized globals; a missing required
// setting aborts startup.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
)

// Defaults for optional settings.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultCompletionModel = "gpt-4o-mini"
	DefaultCompletionURL   = "https://api.openai.com/v1"
)

// Config holds all runtime settings for the mailpeek server.
type Config struct {
	// HTTPAddr is the bind address of the API server.
	HTTPAddr string

	// MetricsAddr is the bind address of the dedicated metrics server.
	MetricsAddr string

	// MetricsEnabled determines whether the metrics server is started.
	MetricsEnabled bool

	// Debug enables debug-level logging.
	Debug bool

	// EncryptionKey is the AES-256 key used to encrypt tokens at rest.
	// Provided base64-encoded via ENCRYPTION_KEY; must decode to 32 bytes.
	EncryptionKey []byte

	// GoogleClientID and GoogleClientSecret identify the OAuth client.
	GoogleClientID     string
	GoogleClientSecret string

	// OAuthRedirectURL is the registered redirect URI for the OAuth callback.
	OAuthRedirectURL string

	// DatabaseDSN is the PostgreSQL DSN (pgx).
	DatabaseDSN string

	// CompletionAPIKey authenticates against the text-completion API.
	CompletionAPIKey string

	// CompletionModel is the completion model used for classification.
	CompletionModel string

	// CompletionBaseURL is the base URL of the completion API. Overridable
	// for test substitution and self-hosted gateways.
	CompletionBaseURL string
}

// Load builds a Config from environment variables. It does not validate;
// call Validate before serving traffic.
func Load() *Config {
	cfg := &Config{
		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", DefaultHTTPAddr),
		MetricsAddr:        getEnvOrDefault("METRICS_ADDR", DefaultMetricsAddr),
		MetricsEnabled:     getEnvBoolOrDefault("METRICS_ENABLED", true),
		Debug:              getEnvBoolOrDefault("DEBUG", false),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		OAuthRedirectURL:   os.Getenv("OAUTH_REDIRECT_URL"),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
		CompletionAPIKey:   os.Getenv("OPENAI_API_KEY"),
		CompletionModel:    getEnvOrDefault("COMPLETION_MODEL", DefaultCompletionModel),
		CompletionBaseURL:  getEnvOrDefault("COMPLETION_BASE_URL", DefaultCompletionURL),
	}

	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		// Decoding errors are caught by Validate; an undecodable key must
		// not silently degrade into an empty one.
		if key, err := base64.StdEncoding.DecodeString(raw); err == nil {
			cfg.EncryptionKey = key
		}
	}

	return cfg
}

// Validate checks that every required setting is present and well formed.
// Any error returned here is fatal: the process must not serve traffic.
func (c *Config) Validate() error {
	if len(c.EncryptionKey) == 0 {
		return fmt.Errorf("ENCRYPTION_KEY is required (base64-encoded, 32 bytes; generate with: openssl rand -base64 32)")
	}
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("encryption key must be exactly 32 bytes (got %d bytes)", len(c.EncryptionKey))
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.OAuthRedirectURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.CompletionAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
