package lifespan

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/event"
	"github.com/Iron-Ham/lifespan/internal/logging"
	"github.com/Iron-Ham/lifespan/internal/telemetry"
)

// SetupFunc runs on startup and returns the releases to run on shutdown.
// A nil stack with a nil error means there is nothing to tear down.
type SetupFunc func(ctx context.Context) (*TeardownStack, error)

// muteSignal ends a hooked lifecycle call after the hook has already
// answered the host with a *.failed message. It never leaves Hook.Process.
type muteSignal struct{}

func (muteSignal) Error() string { return "lifespan: lifecycle call muted by hook" }

func isMute(err error) bool {
	var m muteSignal
	return errors.As(err, &m)
}

// HookOption configures a Hook.
type HookOption func(*hookConfig)

type hookConfig struct {
	setup  SetupFunc
	own    bool
	logger *logging.Logger
	bus    *event.Bus
	tracer trace.Tracer
}

// WithSetup sets the function run when startup arrives.
func WithSetup(fn SetupFunc) HookOption {
	return func(c *hookConfig) {
		c.setup = fn
	}
}

// WithOwnProtocol controls whether the hook answers the lifecycle protocol
// itself (true, the default) or leaves replies to the wrapped application.
func WithOwnProtocol(own bool) HookOption {
	return func(c *hookConfig) {
		c.own = own
	}
}

// WithHookLogger sets the logger for the hook.
func WithHookLogger(logger *logging.Logger) HookOption {
	return func(c *hookConfig) {
		c.logger = logger
	}
}

// WithHookBus sets the event bus setup and teardown events are published on.
func WithHookBus(bus *event.Bus) HookOption {
	return func(c *hookConfig) {
		c.bus = bus
	}
}

// WithHookTracer sets the tracer used for setup and teardown spans.
func WithHookTracer(tracer trace.Tracer) HookOption {
	return func(c *hookConfig) {
		c.tracer = tracer
	}
}

// Hook runs setup and teardown logic inside the lifecycle protocol.
//
// For a lifecycle scope the hook intercepts receive: startup triggers the
// setup function, shutdown closes the TeardownStack it returned. A failure
// in either is reported to the host as startup.failed or shutdown.failed and
// the call ends quietly. Other scopes are forwarded untouched.
type Hook struct {
	app    Application
	setup  SetupFunc
	own    bool
	logger *logging.Logger
	bus    *event.Bus
	tracer trace.Tracer
}

// NewHook wraps app. A nil app is allowed only when the hook owns the
// protocol, in which case non-lifecycle scopes are rejected.
func NewHook(app Application, opts ...HookOption) *Hook {
	cfg := &hookConfig{own: true}
	for _, opt := range opts {
		opt(cfg)
	}
	if app == nil && !cfg.own {
		panic("lifespan: Hook without own protocol needs an Application")
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.tracer == nil {
		cfg.tracer = telemetry.Tracer()
	}

	return &Hook{
		app:    app,
		setup:  cfg.setup,
		own:    cfg.own,
		logger: cfg.logger.WithPhase("hook"),
		bus:    cfg.bus,
		tracer: cfg.tracer,
	}
}

// Unwrap returns the wrapped application.
func (h *Hook) Unwrap() Application {
	return h.app
}

// OwnsProtocol reports whether the hook answers lifecycle messages itself.
func (h *Hook) OwnsProtocol() bool {
	return h.own
}

// Process implements Application.
func (h *Hook) Process(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error {
	if !scope.IsLifecycle() {
		if h.app == nil {
			return errors.NewValidationError("hook has no application for non-lifecycle scope").
				WithField("scope").WithValue(scope.Kind)
		}
		return unmute(h.app.Process(ctx, scope, receive, send))
	}

	call := &hookCall{hook: h, scope: scope, receive: receive, send: send}
	if h.own {
		return unmute(call.serve(ctx))
	}
	return unmute(h.app.Process(ctx, scope, call.interceptReceive, call.interceptSend))
}

func unmute(err error) error {
	if isMute(err) {
		return nil
	}
	return err
}

// hookCall is the per-Process state of a hooked lifecycle conversation.
type hookCall struct {
	hook    *Hook
	scope   Scope
	receive ReceiveFunc
	send    SendFunc

	mu    sync.Mutex
	stack *TeardownStack
	muted bool
}

// serve answers the protocol without involving the wrapped application.
func (c *hookCall) serve(ctx context.Context) error {
	for {
		msg, err := c.interceptReceive(ctx)
		if err != nil {
			return err
		}

		switch msg.Kind {
		case KindStartup:
			if err := c.send(ctx, Message{Kind: KindStartupComplete}); err != nil {
				return err
			}
		case KindShutdown:
			return c.send(ctx, Message{Kind: KindShutdownComplete})
		default:
			c.hook.logger.Debug("ignoring lifecycle message", "kind", string(msg.Kind))
		}
	}
}

// interceptReceive pulls from the host and runs setup or teardown as the
// message demands. The original message is always returned.
func (c *hookCall) interceptReceive(ctx context.Context) (Message, error) {
	if c.isMuted() {
		return Message{}, muteSignal{}
	}

	msg, err := c.receive(ctx)
	if err != nil {
		return msg, err
	}
	if err := msg.Validate(); err != nil {
		c.hook.logger.Warn("rejecting lifecycle message", "kind", string(msg.Kind))
		return msg, err
	}

	switch msg.Kind {
	case KindStartup:
		if c.hook.setup == nil {
			break
		}
		if setupErr := c.runSetup(ctx); setupErr != nil {
			return msg, c.fail(ctx, KindStartupFailed, setupErr)
		}
	case KindShutdown:
		if teardownErr := c.runTeardown(ctx); teardownErr != nil {
			return msg, c.fail(ctx, KindShutdownFailed, teardownErr)
		}
	}
	return msg, nil
}

// interceptSend forwards to the host until the call is muted.
func (c *hookCall) interceptSend(ctx context.Context, msg Message) error {
	if c.isMuted() {
		return muteSignal{}
	}
	return c.send(ctx, msg)
}

// fail reports cause to the host under kind and mutes the call.
func (c *hookCall) fail(ctx context.Context, kind Kind, cause error) error {
	c.mu.Lock()
	c.muted = true
	c.mu.Unlock()

	if err := c.send(ctx, Message{Kind: kind, Detail: cause.Error()}); err != nil {
		return errors.Wrapf(err, "reporting %s", kind)
	}
	return muteSignal{}
}

func (c *hookCall) isMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *hookCall) runSetup(ctx context.Context) (err error) {
	h := c.hook
	ctx, span := h.tracer.Start(ctx, telemetry.SpanHookSetup)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	var (
		catcher panics.Catcher
		stack   *TeardownStack
	)
	catcher.Try(func() {
		stack, err = h.setup(ctx)
	})
	if r := catcher.Recovered(); r != nil {
		err = errors.Wrap(r.AsError(), "setup panicked")
	}

	if err != nil {
		if stack != nil {
			// Partial setup: release what was acquired before reporting.
			if closeErr := stack.Close(ctx); closeErr != nil {
				h.logger.Warn("closing partial setup failed", "error", closeErr.Error())
			}
		}
		h.logger.Warn("setup failed", "error", err.Error())
		h.bus.Publish(event.NewHookSetupEvent(false, 0, err.Error()))
		return err
	}

	releases := 0
	if stack != nil {
		stack.defaultLogger(h.logger)
		releases = stack.Len()
		if c.scope.State != nil {
			c.scope.State[StateKeyTeardown] = stack
		}
	}
	c.mu.Lock()
	c.stack = stack
	c.mu.Unlock()

	span.SetAttributes(telemetry.Releases(releases))
	h.logger.Info("setup complete", "releases", releases)
	h.bus.Publish(event.NewHookSetupEvent(true, releases, ""))
	return nil
}

func (c *hookCall) runTeardown(ctx context.Context) (err error) {
	c.mu.Lock()
	stack := c.stack
	c.mu.Unlock()
	if stack == nil {
		return nil
	}

	h := c.hook
	ctx, span := h.tracer.Start(ctx, telemetry.SpanHookTeardown,
		trace.WithAttributes(telemetry.Releases(stack.Len())))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if err = stack.Close(ctx); err != nil {
		h.logger.Warn("teardown failed", "error", err.Error())
		h.bus.Publish(event.NewHookTeardownEvent(false, err.Error()))
		return err
	}

	h.logger.Info("teardown complete")
	h.bus.Publish(event.NewHookTeardownEvent(true, ""))
	return nil
}
