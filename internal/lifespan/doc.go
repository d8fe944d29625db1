// Package lifespan bridges an application's startup/shutdown protocol to
// callers that want a scoped resource and to hosts that never speak the
// protocol at all.
//
// # Protocol
//
// An [Application] is invoked once per conversation with a [Scope]. For a
// lifecycle scope the host sends startup, the application answers
// startup.complete or startup.failed, and later the host sends shutdown and
// the application answers shutdown.complete or shutdown.failed. Replies with
// any other kind are protocol violations and always surface as errors.
//
// # Components
//
//   - [Acquire] and [With] play the host: they run the application on its own
//     goroutine, wait for startup and guarantee exactly one shutdown.
//   - [Supervisor] starts a background [Session] the first time a worker calls
//     it, for hosts that never deliver lifecycle scopes.
//   - [Hook] runs setup and teardown logic around the handshake, either
//     answering the protocol itself or letting the wrapped application do so.
//   - [TeardownStack] collects release actions and runs them in reverse.
//
// Wrappers compose host → Supervisor → Hook → Application.
//
// # Basic Usage
//
//	hook := lifespan.NewHook(nil, lifespan.WithSetup(func(ctx context.Context) (*lifespan.TeardownStack, error) {
//	    db, err := sql.Open("sqlite", path)
//	    if err != nil {
//	        return nil, err
//	    }
//	    var stack lifespan.TeardownStack
//	    stack.PushCloser(db)
//	    return &stack, nil
//	}))
//
//	err := lifespan.With(ctx, hook, func(ctx context.Context, app lifespan.Application) error {
//	    return runScript(ctx)
//	}, lifespan.WithTimeout(30*time.Second))
//
// # Threads of control
//
// Go has no thread-local storage, so hosts identify the thread of control a
// call runs on with [WithDriver]. The Supervisor keeps one management state
// per Driver.Worker and guards it with a mutex.
package lifespan
