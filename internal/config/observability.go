package config

// TracingConfig holds OTLP trace export configuration.
//
// Traces are exported to a local OTLP/HTTP collector (an OpenTelemetry
// Collector or a vendor agent listening on the OTLP HTTP port).
// See internal/observability for setup details.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint (default: localhost:4318)
	Endpoint string `mapstructure:"endpoint"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment"`
	// ServiceName is the service name on exported spans (default: wikidex)
	ServiceName string `mapstructure:"service_name"`
}
