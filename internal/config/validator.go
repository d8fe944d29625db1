package config

import (
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/lifespan/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lifespan.startup_timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// hookNameRegex validates hook names, which appear in logs and release names
var hookNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"auto", "json", "text"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLifespan()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTelemetry()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateHooks()...)

	return errors
}

// validateLifespan validates the LifespanConfig
func (c *Config) validateLifespan() []ValidationError {
	var errors []ValidationError

	if c.Lifespan.StartupTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "lifespan.startup_timeout_ms",
			Value:   c.Lifespan.StartupTimeoutMs,
			Message: "must be non-negative (0 disables the bound)",
		})
	}
	if c.Lifespan.ShutdownTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "lifespan.shutdown_timeout_ms",
			Value:   c.Lifespan.ShutdownTimeoutMs,
			Message: "must be non-negative (0 disables the bound)",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !logging.IsValidLevel(c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}
	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}

// validateTelemetry validates the TelemetryConfig
func (c *Config) validateTelemetry() []ValidationError {
	var errors []ValidationError

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "telemetry.sample_rate",
			Value:   c.Telemetry.SampleRate,
			Message: "must be between 0 and 1",
		})
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		errors = append(errors, ValidationError{
			Field:   "telemetry.endpoint",
			Value:   c.Telemetry.Endpoint,
			Message: "required when telemetry is enabled",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if !c.Metrics.Enabled {
		return errors
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be a host:port listen address",
		})
	}

	return errors
}

// validateHooks validates every HookConfig
func (c *Config) validateHooks() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, h := range c.Hooks {
		prefix := fmt.Sprintf("hooks[%d]", i)

		if !hookNameRegex.MatchString(h.Name) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   h.Name,
				Message: "must start with a letter and contain only letters, digits, '.', '_' or '-'",
			})
		} else if seen[h.Name] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   h.Name,
				Message: "duplicate hook name",
			})
		}
		seen[h.Name] = true

		if len(h.Setup) == 0 || strings.TrimSpace(h.Setup[0]) == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".setup",
				Value:   h.Setup,
				Message: "must name a command",
			})
		}
		if len(h.Teardown) > 0 && strings.TrimSpace(h.Teardown[0]) == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".teardown",
				Value:   h.Teardown,
				Message: "must name a command when set",
			})
		}
		if h.TimeoutMs < 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".timeout_ms",
				Value:   h.TimeoutMs,
				Message: "must be non-negative (0 disables the bound)",
			})
		}
		for j, kv := range h.Env {
			if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.env[%d]", prefix, j),
					Value:   kv,
					Message: "must be KEY=VALUE",
				})
			}
		}
	}

	return errors
}
