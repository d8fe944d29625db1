package lifespan

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/event"
	"github.com/Iron-Ham/lifespan/internal/logging"
	"github.com/Iron-Ham/lifespan/internal/telemetry"
)

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*supervisorConfig)

type supervisorConfig struct {
	sniff       bool
	sessionOpts []Option
	logger      *logging.Logger
	bus         *event.Bus
	tracer      trace.Tracer
}

// WithSniff controls whether a lifecycle scope from the host counts as the
// host driving the protocol itself. Defaults to true.
func WithSniff(sniff bool) SupervisorOption {
	return func(c *supervisorConfig) {
		c.sniff = sniff
	}
}

// WithSessionOptions sets the options used for background sessions.
func WithSessionOptions(opts ...Option) SupervisorOption {
	return func(c *supervisorConfig) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// WithSupervisorLogger sets the logger for the supervisor and, unless
// overridden through WithSessionOptions, its background sessions.
func WithSupervisorLogger(logger *logging.Logger) SupervisorOption {
	return func(c *supervisorConfig) {
		c.logger = logger
	}
}

// WithSupervisorBus sets the event bus for the supervisor and its background
// sessions.
func WithSupervisorBus(bus *event.Bus) SupervisorOption {
	return func(c *supervisorConfig) {
		c.bus = bus
	}
}

// WithSupervisorTracer sets the tracer for the supervisor and its background
// sessions.
func WithSupervisorTracer(tracer trace.Tracer) SupervisorOption {
	return func(c *supervisorConfig) {
		c.tracer = tracer
	}
}

// Supervisor starts a background lifecycle session for hosts that never
// deliver lifecycle scopes themselves.
//
// The first call on a worker starts a Session against the wrapped
// application and waits for its startup before forwarding the call. The
// session stays up until the worker's loop changes or Close is called.
// Every call is forwarded to the wrapped application unchanged.
type Supervisor struct {
	app         Application
	sniff       bool
	sessionOpts []Option
	logger      *logging.Logger
	bus         *event.Bus
	tracer      trace.Tracer

	mu      sync.Mutex
	workers map[string]*workerState
	closed  bool
}

// workerState is the management state of one thread of control. mu is held
// across the whole read-compare-update, including the startup wait, so two
// calls racing on one worker observe a consistent state.
type workerState struct {
	mu      sync.Mutex
	started bool
	loop    uint64
	gen     uint64 // bumped whenever started is claimed
	handle  *background
}

// background is a supervisor-owned session goroutine.
type background struct {
	stop     context.CancelFunc
	ready    chan struct{} // closed once startup finished either way
	done     chan struct{} // closed once the goroutine returned
	session  *Session      // valid after ready, nil on startup failure
	startErr error         // valid after ready
	err      error         // release error, valid after done
}

// NewSupervisor wraps app. It panics if app is nil.
func NewSupervisor(app Application, opts ...SupervisorOption) *Supervisor {
	if app == nil {
		panic("lifespan: Supervisor needs an Application")
	}

	cfg := &supervisorConfig{sniff: true}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.tracer == nil {
		cfg.tracer = telemetry.Tracer()
	}

	sessionOpts := append([]Option{
		WithLogger(cfg.logger),
		WithBus(cfg.bus),
		WithTracer(cfg.tracer),
	}, cfg.sessionOpts...)

	return &Supervisor{
		app:         app,
		sniff:       cfg.sniff,
		sessionOpts: sessionOpts,
		logger:      cfg.logger.WithPhase("supervisor"),
		bus:         cfg.bus,
		tracer:      cfg.tracer,
		workers:     make(map[string]*workerState),
	}
}

// Unwrap returns the wrapped application.
func (s *Supervisor) Unwrap() Application {
	return s.app
}

// Started reports whether the worker's lifecycle is running, either through
// a background session or a host-driven lifecycle scope.
func (s *Supervisor) Started(worker string) bool {
	s.mu.Lock()
	ws, ok := s.workers[worker]
	s.mu.Unlock()
	if !ok {
		return false
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.started
}

// Process implements Application.
func (s *Supervisor) Process(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error {
	d := DriverFrom(ctx)
	ws, err := s.worker(d.Worker)
	if err != nil {
		return err
	}

	gen, hostDriven, err := s.prepare(ctx, ws, d, scope)
	if err != nil {
		return err
	}

	procErr := s.app.Process(ctx, scope, receive, send)

	if hostDriven {
		// The host's lifecycle conversation is over; the worker may start another.
		ws.mu.Lock()
		if ws.gen == gen && ws.handle == nil {
			ws.started = false
		}
		ws.mu.Unlock()
	}
	return procErr
}

func (s *Supervisor) worker(name string) (*workerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Wrap(errors.ErrSessionClosed, "supervisor closed")
	}
	ws, ok := s.workers[name]
	if !ok {
		ws = &workerState{}
		s.workers[name] = ws
	}
	return ws, nil
}

// prepare updates the worker's management state for one call and, when
// needed, brings up the background session. It reports the generation it
// claimed and whether the host is driving the lifecycle itself.
func (s *Supervisor) prepare(ctx context.Context, ws *workerState, d Driver, scope Scope) (uint64, bool, error) {
	logger := s.logger.WithWorker(d.Worker)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.handle != nil && ws.loop != d.Loop {
		logger.Debug("driver changed, cancelling stale session", "old_loop", ws.loop, "new_loop", d.Loop)
		s.bus.Publish(event.NewSupervisorRestartedEvent(d.Worker, ws.loop, d.Loop))
		ws.handle.stop()
		ws.handle = nil
		ws.started = false
	}
	ws.loop = d.Loop

	if s.sniff && scope.IsLifecycle() {
		if ws.started {
			err := errors.NewReentrancyError(d.Worker)
			logger.Error("lifecycle handshake re-entered", "error", err.Error())
			s.bus.Publish(event.NewReentrancyDetectedEvent(d.Worker))
			return 0, false, err
		}
		ws.started = true
		ws.gen++
		return ws.gen, true, nil
	}

	if ws.started {
		return ws.gen, false, nil
	}

	ws.started = true
	ws.gen++

	h, err := s.startBackground(ctx, d)
	if err != nil {
		ws.started = false
		return 0, false, err
	}
	ws.handle = h
	go s.watch(ws, d.Worker, h)
	return ws.gen, false, nil
}

// startBackground opens a session on its own goroutine and waits for the
// startup handshake to finish.
func (s *Supervisor) startBackground(ctx context.Context, d Driver) (*background, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanSupervisorStart,
		trace.WithAttributes(telemetry.Worker(d.Worker), telemetry.Loop(d.Loop)))
	defer span.End()

	bgCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	h := &background{
		stop:  stop,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		sess, err := Acquire(bgCtx, s.app, s.sessionOpts...)
		h.session, h.startErr = sess, err
		close(h.ready)
		if err != nil {
			return
		}

		select {
		case <-bgCtx.Done():
		case <-sess.Done():
		}
		h.err = sess.Release(context.WithoutCancel(bgCtx))
	}()

	select {
	case <-h.ready:
	case <-ctx.Done():
		stop()
		err := errors.Canceled("waiting for background startup", ctx.Err())
		telemetry.RecordError(span, err)
		return nil, err
	}

	if h.startErr != nil {
		stop()
		telemetry.RecordError(span, h.startErr)
		s.logger.WithWorker(d.Worker).Warn("background startup failed", "error", h.startErr.Error())
		return nil, h.startErr
	}

	span.SetAttributes(telemetry.SessionID(h.session.ID()))
	s.logger.WithWorker(d.Worker).Info("background session started", "session_id", h.session.ID(), "loop", d.Loop)
	s.bus.Publish(event.NewSupervisorStartedEvent(d.Worker, d.Loop, h.session.ID()))
	return h, nil
}

// watch clears the worker's state once its background session ends, unless
// the worker has already moved on to another session.
func (s *Supervisor) watch(ws *workerState, worker string, h *background) {
	<-h.done

	errMsg := ""
	if h.err != nil {
		errMsg = h.err.Error()
		s.logger.WithWorker(worker).Debug("background session ended with error", "error", errMsg)
	}
	s.bus.Publish(event.NewSupervisorStoppedEvent(worker, errMsg))

	ws.mu.Lock()
	if ws.handle == h {
		ws.handle = nil
		ws.started = false
	}
	ws.mu.Unlock()
}

// Close stops every background session and waits for their shutdown
// handshakes. Every session is told to stop before Close starts waiting, so
// ctx only bounds the wait. It returns the joined release errors. Calls made
// after Close fail with ErrSessionClosed.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	workers := make(map[string]*workerState, len(s.workers))
	for name, ws := range s.workers {
		workers[name] = ws
	}
	s.mu.Unlock()

	handles := make(map[string]*background, len(workers))
	for name, ws := range workers {
		ws.mu.Lock()
		h := ws.handle
		ws.handle = nil
		ws.started = false
		ws.mu.Unlock()

		if h == nil {
			continue
		}
		h.stop()
		handles[name] = h
	}

	var errs []error
	for name, h := range handles {
		select {
		case <-h.done:
			if h.err != nil {
				errs = append(errs, errors.Wrapf(h.err, "worker %s", name))
			}
		case <-ctx.Done():
			return errors.Join(append(errs, errors.Canceled("closing supervisor", ctx.Err()))...)
		}
	}
	return errors.Join(errs...)
}
