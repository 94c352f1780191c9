// Package observability provides OpenTelemetry integration for distributed
// tracing.
//
// Spans are exported over OTLP/HTTP to a local collector (an OpenTelemetry
// Collector, or a vendor agent with an OTLP receiver on port 4318). Going
// through a local collector rather than a vendor API keeps authentication
// out of the application and gives local buffering and retry for free.
//
// # Configuration
//
// Config file (~/.wikidex/config.yaml):
//
//	tracing:
//	  endpoint: "localhost:4318"
//	  environment: "dev"
//	  service_name: "wikidex"
//
// Environment variables WIKIDEX_TRACING_* override the file.
//
// # Verify the pipeline
//
//	curl -v http://localhost:4318/v1/traces
//
// Traces appear in the backing APM a minute or two after shutdown (flush).
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/askbob-ai/wikidex/internal/config"
)

// DefaultEndpoint is the default OTLP/HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// SetupTracing registers an OTLP span exporter with Genkit's TracerProvider,
// so both Genkit's embedding spans and our own spans flow to the collector.
//
// Returns a shutdown function that flushes pending spans. An unreachable
// collector disables tracing with a warning rather than failing startup.
func SetupTracing(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Genkit's TracerProvider reads the service identity from the OTEL
	// environment at span creation time.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
