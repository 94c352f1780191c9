package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. API Key validation (required for embedding calls)
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Embedding configuration validation
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn if using default dev password (but don't block - user might be in dev)
	if c.PostgresPassword == "wikidex_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// Validate password strength (minimum 8 characters)
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// 4. PostgreSQL SSL mode validation
	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}

	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 5. Wiki configuration validation
	if err := c.validateWiki(); err != nil {
		return err
	}

	// 6. Ingest configuration validation
	if c.Ingest.Workers < 1 || c.Ingest.Workers > MaxIngestWorkers {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidWorkers, MaxIngestWorkers, c.Ingest.Workers)
	}

	if c.Ingest.EmbedBatchSize < 1 || c.Ingest.EmbedBatchSize > MaxEmbedBatchSize {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidBatchSize, MaxEmbedBatchSize, c.Ingest.EmbedBatchSize)
	}

	// 7. Server configuration validation
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr cannot be empty", ErrInvalidHTTPAddr)
	}

	return nil
}

func (c *Config) validateWiki() error {
	if c.Wiki.APIURL == "" {
		return fmt.Errorf("%w: wiki.api_url cannot be empty", ErrInvalidWikiAPIURL)
	}

	u, err := url.Parse(c.Wiki.APIURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWikiAPIURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidWikiAPIURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidWikiAPIURL, c.Wiki.APIURL)
	}

	// A rate above 10 req/s would violate the wiki's bot policy.
	if c.Wiki.RateLimit <= 0 || c.Wiki.RateLimit > 10 {
		return fmt.Errorf("%w: must be between 0 and 10 req/s, got %.2f",
			ErrInvalidRateLimit, c.Wiki.RateLimit)
	}

	if strings.TrimSpace(c.Wiki.UserAgent) == "" {
		return fmt.Errorf("%w: wiki.user_agent cannot be empty (required by the wiki's bot policy)",
			ErrInvalidWikiAPIURL)
	}

	return nil
}
