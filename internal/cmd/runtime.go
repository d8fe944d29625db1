package cmd

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/lifespan/internal/config"
	"github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/event"
	"github.com/Iron-Ham/lifespan/internal/lifespan"
	"github.com/Iron-Ham/lifespan/internal/logging"
	"github.com/Iron-Ham/lifespan/internal/metrics"
	"github.com/Iron-Ham/lifespan/internal/telemetry"
)

// runtime holds the ambient services a command runs with.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	closers []func(context.Context) error
}

// newRuntime loads the configuration and brings up logging, the event bus,
// metrics and tracing.
func newRuntime(ctx context.Context, stderr io.Writer) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}

	logger, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		return nil, errors.Wrap(err, "creating logger")
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		bus:      event.NewBus(),
		registry: prometheus.NewRegistry(),
	}
	rt.closers = append(rt.closers, func(context.Context) error { return logger.Close() })
	rt.bus.SetLogger(logger)
	rt.metrics = metrics.New(rt.registry)
	rt.metrics.Attach(rt.bus)

	shutdown, err := telemetry.Init(ctx, cfg.TelemetryConfig(Version))
	if err != nil {
		_ = rt.close(ctx)
		return nil, errors.Wrap(err, "initializing telemetry")
	}
	rt.closers = append(rt.closers, shutdown)

	if cfg.Metrics.Enabled {
		if err := rt.serveMetrics(cfg.Metrics.Addr); err != nil {
			_ = rt.close(ctx)
			return nil, err
		}
	}

	return rt, nil
}

// serveMetrics exposes the registry on addr until the runtime closes.
func (rt *runtime) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening for metrics on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(rt.registry))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", "error", err.Error())
		}
	}()
	rt.logger.Info("serving metrics", "addr", ln.Addr().String())

	rt.closers = append(rt.closers, srv.Shutdown)
	return nil
}

// sessionOptions returns the options every session of a command uses.
func (rt *runtime) sessionOptions() []lifespan.Option {
	return []lifespan.Option{
		lifespan.WithStartupTimeout(rt.cfg.Lifespan.StartupTimeout()),
		lifespan.WithShutdownTimeout(rt.cfg.Lifespan.ShutdownTimeout()),
		lifespan.WithLogger(rt.logger),
		lifespan.WithBus(rt.bus),
	}
}

// hook wraps app with the configured hooks.
func (rt *runtime) hook(app lifespan.Application, setup lifespan.SetupFunc) *lifespan.Hook {
	return lifespan.NewHook(app,
		lifespan.WithSetup(setup),
		lifespan.WithOwnProtocol(rt.cfg.Lifespan.OwnProtocol),
		lifespan.WithHookLogger(rt.logger),
		lifespan.WithHookBus(rt.bus),
	)
}

// logFailure logs a command's final error at a level matching its severity.
// A child's own exit status is not a lifespan failure and is not logged.
func (rt *runtime) logFailure(msg string, err error) {
	var exitErr *ExitError
	if err == nil || errors.As(err, &exitErr) {
		return
	}
	if errors.GetSeverity(err) >= errors.SeverityError {
		rt.logger.Error(msg, "error", err.Error())
		return
	}
	rt.logger.Warn(msg, "error", err.Error())
}

// close stops the runtime's services in reverse start order.
func (rt *runtime) close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
