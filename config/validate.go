package config

import (
	"fmt"
	"strings"

	"stakepool/observability/otel"
)

var (
	MinSecretLength = 16
	MaxClockSkew    = 300
)

// Validate checks the runtime configuration before the daemon starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("listen_address: must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir: must not be empty")
	}
	if secret := c.Auth.Secret(); secret != "" && len(secret) < MinSecretLength {
		return fmt.Errorf("auth: secret shorter than %d bytes", MinSecretLength)
	}
	if c.Auth.ClockSkewSeconds < 0 || c.Auth.ClockSkewSeconds > MaxClockSkew {
		return fmt.Errorf("auth: clock_skew_seconds outside [0,%d]", MaxClockSkew)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: burst must be positive when a rate is set")
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: endpoint required when metrics or traces are enabled")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("log: rotation values must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	return nil
}

// TelemetryConfig converts the telemetry section for otel.Init.
func (c *Config) TelemetryConfig(service, environment string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: environment,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Metrics:     c.Telemetry.Metrics,
		Traces:      c.Telemetry.Traces,
	}
}
