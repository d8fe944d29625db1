// Package event provides a pub-sub event bus for lifecycle observability.
//
// Sessions, supervisors and hooks publish events as handshakes progress.
// Subscribers such as the metrics collector and the CLI's logger react to
// them without the lifecycle code knowing they exist.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Session:
//   - [StartupCompleteEvent], [StartupFailedEvent]
//   - [ShutdownCompleteEvent], [ShutdownFailedEvent]
//
// Supervisor:
//   - [SupervisorStartedEvent], [SupervisorRestartedEvent], [SupervisorStoppedEvent]
//   - [ReentrancyDetectedEvent]
//
// Hook:
//   - [HookSetupEvent], [HookTeardownEvent]
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and protected against panics.
// A nil *Bus silently drops events.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeStartupFailed, func(e event.Event) {
//	    failed := e.(event.StartupFailedEvent)
//	    log.Printf("session %s failed: %s", failed.SessionID, failed.Error)
//	})
//
//	sess, err := lifespan.Acquire(ctx, app, lifespan.WithBus(bus))
package event
