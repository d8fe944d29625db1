package lifespan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/event"
	"github.com/Iron-Ham/lifespan/internal/logging"
	"github.com/Iron-Ham/lifespan/internal/telemetry"
)

// Session is one live run of the lifecycle handshake against an Application.
//
// The bridge plays the host: it pushes startup and shutdown onto toApp, which
// the application reads through its receive function, and reads replies from
// fromApp, which the application fills through send.
type Session struct {
	id    uuid.UUID
	app   Application
	scope Scope
	cfg   *config

	toApp   *messageQueue
	fromApp *messageQueue

	cancel  context.CancelFunc
	done    chan struct{} // closed when Process returns
	taskErr error         // written before done closes

	logger *logging.Logger

	mu        sync.Mutex
	cleanedUp bool
}

// Acquire runs the startup half of the handshake and returns a live Session.
//
// The application's Process call runs on its own goroutine for the whole
// lifetime of the session, detached from ctx's cancellation. ctx only bounds
// the wait for the startup reply. On any failure the application task is
// abandoned and no shutdown message is ever sent.
func Acquire(ctx context.Context, app Application, opts ...Option) (*Session, error) {
	if app == nil {
		return nil, errors.NewValidationError("application must not be nil").WithField("app")
	}

	s := newSession(app, newConfig(opts))

	ctx, span := s.cfg.tracer.Start(ctx, telemetry.SpanStartup,
		trace.WithAttributes(telemetry.SessionID(s.ID()), telemetry.Phase(errors.PhaseStartup)))
	defer span.End()

	logger := s.logger.WithPhase(errors.PhaseStartup)
	started := time.Now()

	// Queued before the task starts so the first receive never blocks.
	_ = s.toApp.Push(Message{Kind: KindStartup})

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.run(taskCtx)

	reply, err := s.await(ctx, errors.PhaseStartup, s.cfg.startupTimeout)
	if err == nil {
		span.SetAttributes(telemetry.MessageKind(string(reply.Kind)))
		switch reply.Kind {
		case KindStartupComplete:
		case KindStartupFailed:
			span.SetAttributes(telemetry.Detail(reply.Detail))
			err = errors.NewStartupFailedError(reply.Detail).WithSessionID(s.ID())
		default:
			err = errors.NewProtocolError(errors.PhaseStartup, string(reply.Kind)).WithSessionID(s.ID())
		}
	}

	if err != nil {
		s.abandon()
		telemetry.RecordError(span, err)
		logger.Warn("startup failed", "error", err.Error())
		s.cfg.bus.Publish(event.NewStartupFailedEvent(s.ID(), failureReason(err), err.Error()))
		return nil, err
	}

	elapsed := time.Since(started)
	logger.Info("startup complete", "elapsed_ms", elapsed.Milliseconds())
	s.cfg.bus.Publish(event.NewStartupCompleteEvent(s.ID(), elapsed))
	return s, nil
}

// With acquires a session, calls fn with the application and releases the
// session on every exit path: normal return, error, panic and cancellation
// of ctx. A panic in fn is re-raised after release. A release error is joined
// after fn's error.
func With(ctx context.Context, app Application, fn func(ctx context.Context, app Application) error, opts ...Option) (err error) {
	s, err := Acquire(ctx, app, opts...)
	if err != nil {
		return err
	}

	defer func() {
		r := recover()
		// Release must run even when ctx is what ended the scope.
		relErr := s.Release(context.WithoutCancel(ctx))
		if r != nil {
			if relErr != nil {
				s.logger.Error("release failed while unwinding panic", "error", relErr.Error())
			}
			panic(r)
		}
		err = errors.Join(err, relErr)
	}()

	return fn(ctx, s.App())
}

func newSession(app Application, cfg *config) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		app:     app,
		scope:   NewLifecycleScope(),
		cfg:     cfg,
		toApp:   newMessageQueue(),
		fromApp: newMessageQueue(),
		done:    make(chan struct{}),
		logger:  cfg.logger.WithSession(id.String()),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id.String()
}

// App returns the application the session drives.
func (s *Session) App() Application {
	return s.app
}

// State returns the shared state map handed to the application's Process
// call.
func (s *Session) State() map[string]any {
	return s.scope.State
}

// Done returns a channel that is closed once the application's Process call
// has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the application's Process call returned. It is only
// meaningful after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.taskErr
	default:
		return nil
	}
}

// Release runs the shutdown half of the handshake. Only the first call does
// anything; later calls return nil.
//
// If the application task already ended without answering, Release fails
// fast with a TaskError instead of waiting for a reply that cannot come.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	if s.cleanedUp {
		s.mu.Unlock()
		return nil
	}
	s.cleanedUp = true
	s.mu.Unlock()

	ctx, span := s.cfg.tracer.Start(ctx, telemetry.SpanShutdown,
		trace.WithAttributes(telemetry.SessionID(s.ID()), telemetry.Phase(errors.PhaseShutdown)))
	defer span.End()

	logger := s.logger.WithPhase(errors.PhaseShutdown)
	started := time.Now()

	var reply Message
	err := s.toApp.Push(Message{Kind: KindShutdown})
	if err != nil {
		err = errors.Wrap(err, "sending shutdown")
	} else {
		reply, err = s.await(ctx, errors.PhaseShutdown, s.cfg.shutdownTimeout)
	}
	if err == nil {
		span.SetAttributes(telemetry.MessageKind(string(reply.Kind)))
		switch reply.Kind {
		case KindShutdownComplete:
		case KindShutdownFailed:
			span.SetAttributes(telemetry.Detail(reply.Detail))
			err = errors.NewShutdownFailedError(reply.Detail).WithSessionID(s.ID())
		default:
			err = errors.NewProtocolError(errors.PhaseShutdown, string(reply.Kind)).WithSessionID(s.ID())
		}
	}

	if err != nil {
		s.abandon()
		telemetry.RecordError(span, err)
		logger.Warn("shutdown failed", "error", err.Error())
		s.cfg.bus.Publish(event.NewShutdownFailedEvent(s.ID(), failureReason(err), err.Error()))
		return err
	}

	s.toApp.Close()
	s.fromApp.Close()

	elapsed := time.Since(started)
	logger.Info("shutdown complete", "elapsed_ms", elapsed.Milliseconds())
	s.cfg.bus.Publish(event.NewShutdownCompleteEvent(s.ID(), elapsed))
	return nil
}

// run executes the application's Process call. Panics are converted into the
// task error.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = s.app.Process(ctx, s.scope, s.receive, s.send)
	})
	if r := catcher.Recovered(); r != nil {
		err = r.AsError()
	}

	s.taskErr = err
	if err != nil {
		s.logger.Debug("application task returned", "error", err.Error())
	} else {
		s.logger.Debug("application task returned")
	}
}

// receive is the application's view of toApp.
func (s *Session) receive(ctx context.Context) (Message, error) {
	return s.toApp.Pop(ctx, nil)
}

// send is the application's view of fromApp.
func (s *Session) send(_ context.Context, msg Message) error {
	return s.fromApp.Push(msg)
}

// await blocks for the next reply on fromApp, bounded by timeout when it is
// positive.
func (s *Session) await(ctx context.Context, phase string, timeout time.Duration) (Message, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg, err := s.fromApp.Pop(waitCtx, s.done)
	if err == nil {
		return msg, nil
	}

	op := fmt.Sprintf("waiting for %s reply", phase)
	switch {
	case errors.Is(err, errTaskDone):
		return Message{}, errors.NewTaskError(phase, s.taskErr).WithSessionID(s.ID())
	case ctx.Err() != nil:
		return Message{}, errors.Canceled(op, ctx.Err())
	case waitCtx.Err() != nil:
		// A session shuts down once; only a fresh Acquire can try again.
		return Message{}, errors.NewTimeoutError(op, timeout).WithCause(err).
			WithRetryable(phase == errors.PhaseStartup)
	default:
		return Message{}, errors.Wrap(err, op)
	}
}

// abandon cancels the application task and closes both queues. It does not
// wait for the task to return.
func (s *Session) abandon() {
	if s.cancel != nil {
		s.cancel()
	}
	s.toApp.Close()
	s.fromApp.Close()
}

// failureReason classifies a handshake error for events and metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrStartupFailed), errors.Is(err, errors.ErrShutdownFailed):
		return event.ReasonFailed
	case errors.Is(err, errors.ErrTimeout):
		return event.ReasonTimeout
	case errors.Is(err, errors.ErrProtocolViolation):
		return event.ReasonProtocol
	case errors.Is(err, errors.ErrTaskErrored):
		return event.ReasonTask
	case errors.Is(err, errors.ErrCanceled):
		return event.ReasonCanceled
	default:
		return event.ReasonError
	}
}
