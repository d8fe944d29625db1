package lifespan

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/lifespan/internal/event"
	"github.com/Iron-Ham/lifespan/internal/logging"
	"github.com/Iron-Ham/lifespan/internal/telemetry"
)

// Option configures a Session.
type Option func(*config)

type config struct {
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
	logger          *logging.Logger
	bus             *event.Bus
	tracer          trace.Tracer
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.startupTimeout < 0 {
		cfg.startupTimeout = 0
	}
	if cfg.shutdownTimeout < 0 {
		cfg.shutdownTimeout = 0
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.tracer == nil {
		cfg.tracer = telemetry.Tracer()
	}
	return cfg
}

// WithTimeout bounds both the startup and the shutdown wait.
// Zero means wait until the context is done.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.startupTimeout = d
		c.shutdownTimeout = d
	}
}

// WithStartupTimeout bounds the wait for the startup reply.
func WithStartupTimeout(d time.Duration) Option {
	return func(c *config) {
		c.startupTimeout = d
	}
}

// WithShutdownTimeout bounds the wait for the shutdown reply.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		c.shutdownTimeout = d
	}
}

// WithLogger sets the logger for the session.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithBus sets the event bus handshake events are published on.
func WithBus(bus *event.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}

// WithTracer sets the tracer used for handshake spans. Defaults to the
// process-wide tracer from the telemetry package.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}
