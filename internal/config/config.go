// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.wikidex/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - Embedding: Embedder model for vector embeddings
//   - Wiki: Upstream MediaWiki API endpoint and politeness limits
//   - Ingest: Worker pool sizing and embedding batch size
//   - Server: HTTP search API bind address
//   - Tracing: OTLP trace export (see observability.go)
//
// Security: Sensitive data (passwords) are never logged; config directory uses 0750 permissions.
// Validation: Comprehensive range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidWikiAPIURL indicates the wiki API URL is invalid.
	ErrInvalidWikiAPIURL = errors.New("invalid wiki API URL")

	// ErrInvalidRateLimit indicates the wiki request rate is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidWorkers indicates the ingest worker count is out of range.
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidBatchSize indicates the embedding batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidHTTPAddr indicates the HTTP bind address is invalid.
	ErrInvalidHTTPAddr = errors.New("invalid HTTP address")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// text-embedding-004 outputs 768 dimensions natively, matching the
	// pgvector schema; see knowledge.VectorDimension. A model with a
	// different dimensionality fails loudly at write time.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultWikiAPIURL is the MediaWiki API endpoint for the OSRS wiki.
	DefaultWikiAPIURL = "https://oldschool.runescape.wiki/api.php"

	// DefaultUserAgent identifies this crawler to the wiki, per their bot policy.
	DefaultUserAgent = "wikidex/1.0 (knowledge indexing; contact via repo issues)"

	// MaxIngestWorkers caps the worker pool to keep upstream load bounded.
	MaxIngestWorkers = 32

	// MaxEmbedBatchSize caps a single embedding request batch.
	MaxEmbedBatchSize = 250
)

// WikiConfig holds upstream MediaWiki API settings.
type WikiConfig struct {
	// APIURL is the MediaWiki api.php endpoint.
	APIURL string `mapstructure:"api_url" json:"api_url"`
	// UserAgent is sent on every request, per the wiki's bot policy.
	UserAgent string `mapstructure:"user_agent" json:"user_agent"`
	// RateLimit is the maximum sustained request rate in requests per second.
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit"`
	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// Workers is the size of the page-processing worker pool.
	Workers int `mapstructure:"workers" json:"workers"`
	// EmbedBatchSize is the number of chunks per embedding request.
	EmbedBatchSize int `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	// LockPath is the file lock guarding against concurrent ingest runs.
	// Empty means $TMPDIR/wikidex-ingest.lock.
	LockPath string `mapstructure:"lock_path" json:"lock_path"`
}

// ServerConfig holds HTTP search API settings.
type ServerConfig struct {
	// Addr is the bind address, e.g. ":8080".
	Addr string `mapstructure:"addr" json:"addr"`
	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Wiki source configuration
	Wiki WikiConfig `mapstructure:"wiki" json:"wiki"`

	// Ingestion configuration
	Ingest IngestConfig `mapstructure:"ingest" json:"ingest"`

	// HTTP server configuration (serve mode only)
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Observability configuration (see observability.go for type definition)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.wikidex/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".wikidex")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// PostgreSQL defaults (local development)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "wikidex")
	viper.SetDefault("postgres_password", "wikidex_dev_password")
	viper.SetDefault("postgres_db_name", "wikidex")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	// Wiki defaults. The wiki asks bots to stay under a few requests per
	// second; 3 req/s matches their published guidance.
	viper.SetDefault("wiki.api_url", DefaultWikiAPIURL)
	viper.SetDefault("wiki.user_agent", DefaultUserAgent)
	viper.SetDefault("wiki.rate_limit", 3.0)
	viper.SetDefault("wiki.timeout_seconds", 30)

	// Ingest defaults
	viper.SetDefault("ingest.workers", 4)
	viper.SetDefault("ingest.embed_batch_size", 100)
	viper.SetDefault("ingest.lock_path", "")

	// Server defaults
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:4200"})

	// Tracing defaults
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "wikidex")
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit (not via Viper); its presence
// is checked in cfg.Validate().
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("embedder_model", "WIKIDEX_EMBEDDER_MODEL")
	mustBind("wiki.api_url", "WIKIDEX_WIKI_API_URL")
	mustBind("wiki.rate_limit", "WIKIDEX_WIKI_RATE_LIMIT")
	mustBind("ingest.workers", "WIKIDEX_INGEST_WORKERS")
	mustBind("server.addr", "WIKIDEX_SERVER_ADDR")
	mustBind("server.cors_origins", "WIKIDEX_CORS_ORIGINS")
	mustBind("tracing.endpoint", "WIKIDEX_TRACING_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// Previous attempts:
// - "****" failed: passwords with "*" leaked
// - "[REDACTED]" failed: passwords with "A", "D", "E", etc. leaked
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
// For longer secrets, shows partial chars with unique separator.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//
// When adding new sensitive fields, update this method or the nested struct's
// MarshalJSON. The compiler will remind you when tests fail.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
