package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/lifespan/internal/telemetry"
)

// Config represents the complete lifespan configuration
type Config struct {
	Lifespan  LifespanConfig  `mapstructure:"lifespan" yaml:"lifespan"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Hooks     []HookConfig    `mapstructure:"hooks" yaml:"hooks"`
}

// LifespanConfig controls the lifecycle handshake
type LifespanConfig struct {
	// StartupTimeoutMs bounds the wait for startup.complete (0 means no bound)
	StartupTimeoutMs int `mapstructure:"startup_timeout_ms" yaml:"startup_timeout_ms"`
	// ShutdownTimeoutMs bounds the wait for shutdown.complete (0 means no bound)
	ShutdownTimeoutMs int `mapstructure:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms"`
	// OwnProtocol makes the hook answer the handshake itself instead of
	// forwarding it to the wrapped application
	OwnProtocol bool `mapstructure:"own_protocol" yaml:"own_protocol"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where lifespan.log is written. Empty means stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Format is "auto", "json" or "text". Auto picks text on a terminal.
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig controls OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Endpoint is the OTLP gRPC collector address
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Insecure disables TLS for the collector connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`
	// SampleRate is the fraction of traces kept, from 0 to 1
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Addr is the listen address for /metrics, e.g. "127.0.0.1:9464"
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// HookConfig describes one shell hook run around the wrapped process.
// Setup runs during startup; when it succeeds, Teardown is registered to run
// during shutdown.
type HookConfig struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Setup    []string `mapstructure:"setup" yaml:"setup"`
	Teardown []string `mapstructure:"teardown" yaml:"teardown,omitempty"`
	// Dir is the working directory for both commands. Empty means inherit.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
	// Env holds extra KEY=VALUE pairs for both commands
	Env []string `mapstructure:"env" yaml:"env,omitempty"`
	// TimeoutMs bounds each command (0 means no bound)
	TimeoutMs int `mapstructure:"timeout_ms" yaml:"timeout_ms,omitempty"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Lifespan: LifespanConfig{
			StartupTimeoutMs:  30000,
			ShutdownTimeoutMs: 30000,
			OwnProtocol:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Dir:    "",
			Format: "auto",
		},
		Telemetry: TelemetryConfig{
			Enabled:    tel.Enabled,
			Endpoint:   tel.Endpoint,
			Insecure:   tel.Insecure,
			SampleRate: tel.SampleRate,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Hooks: []HookConfig{},
	}
}

// StartupTimeout returns the startup bound as a time.Duration (0 means none)
func (c *LifespanConfig) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the shutdown bound as a time.Duration (0 means none)
func (c *LifespanConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// Timeout returns the per-command bound as a time.Duration (0 means none)
func (h *HookConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

// TelemetryConfig converts the tracing section for telemetry.Init.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	tel := telemetry.DefaultConfig()
	tel.Enabled = c.Telemetry.Enabled
	tel.Endpoint = c.Telemetry.Endpoint
	tel.Insecure = c.Telemetry.Insecure
	tel.SampleRate = c.Telemetry.SampleRate
	if version != "" {
		tel.ServiceVersion = version
	}
	return tel
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Lifespan defaults
	viper.SetDefault("lifespan.startup_timeout_ms", defaults.Lifespan.StartupTimeoutMs)
	viper.SetDefault("lifespan.shutdown_timeout_ms", defaults.Lifespan.ShutdownTimeoutMs)
	viper.SetDefault("lifespan.own_protocol", defaults.Lifespan.OwnProtocol)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.format", defaults.Logging.Format)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	viper.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
	viper.SetDefault("telemetry.insecure", defaults.Telemetry.Insecure)
	viper.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)

	viper.SetDefault("hooks", []map[string]any{})
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lifespan")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lifespan"
	}
	return filepath.Join(home, ".config", "lifespan")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
