package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.startup.complete", "hook.setup")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeStartupComplete     = "session.startup.complete"
	TypeStartupFailed       = "session.startup.failed"
	TypeShutdownComplete    = "session.shutdown.complete"
	TypeShutdownFailed      = "session.shutdown.failed"
	TypeSupervisorStarted   = "supervisor.started"
	TypeSupervisorRestarted = "supervisor.restarted"
	TypeSupervisorStopped   = "supervisor.stopped"
	TypeReentrancyDetected  = "supervisor.reentrancy"
	TypeHookSetup           = "hook.setup"
	TypeHookTeardown        = "hook.teardown"
)

// Failure reasons attached to failed handshake events.
const (
	ReasonFailed   = "failed"   // application replied *.failed
	ReasonTimeout  = "timeout"  // no reply within the bound
	ReasonProtocol = "protocol" // unexpected message kind
	ReasonTask     = "task"     // application task ended early
	ReasonCanceled = "canceled" // caller context canceled
	ReasonError    = "error"
)

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// StartupCompleteEvent is emitted when an application replies startup.complete.
type StartupCompleteEvent struct {
	baseEvent
	SessionID string
	Duration  time.Duration // Time from startup push to reply
}

// NewStartupCompleteEvent creates a StartupCompleteEvent.
func NewStartupCompleteEvent(sessionID string, d time.Duration) StartupCompleteEvent {
	return StartupCompleteEvent{
		baseEvent: newBaseEvent(TypeStartupComplete),
		SessionID: sessionID,
		Duration:  d,
	}
}

// StartupFailedEvent is emitted when acquisition of a session fails.
type StartupFailedEvent struct {
	baseEvent
	SessionID string
	Reason    string // One of the Reason* constants
	Error     string
}

// NewStartupFailedEvent creates a StartupFailedEvent.
func NewStartupFailedEvent(sessionID, reason, errMsg string) StartupFailedEvent {
	return StartupFailedEvent{
		baseEvent: newBaseEvent(TypeStartupFailed),
		SessionID: sessionID,
		Reason:    reason,
		Error:     errMsg,
	}
}

// ShutdownCompleteEvent is emitted when an application replies shutdown.complete.
type ShutdownCompleteEvent struct {
	baseEvent
	SessionID string
	Duration  time.Duration
}

// NewShutdownCompleteEvent creates a ShutdownCompleteEvent.
func NewShutdownCompleteEvent(sessionID string, d time.Duration) ShutdownCompleteEvent {
	return ShutdownCompleteEvent{
		baseEvent: newBaseEvent(TypeShutdownComplete),
		SessionID: sessionID,
		Duration:  d,
	}
}

// ShutdownFailedEvent is emitted when the shutdown leg of a release fails.
type ShutdownFailedEvent struct {
	baseEvent
	SessionID string
	Reason    string
	Error     string
}

// NewShutdownFailedEvent creates a ShutdownFailedEvent.
func NewShutdownFailedEvent(sessionID, reason, errMsg string) ShutdownFailedEvent {
	return ShutdownFailedEvent{
		baseEvent: newBaseEvent(TypeShutdownFailed),
		SessionID: sessionID,
		Reason:    reason,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Supervisor Events
// -----------------------------------------------------------------------------

// SupervisorStartedEvent is emitted when a supervisor brings up a background
// session for a worker.
type SupervisorStartedEvent struct {
	baseEvent
	Worker    string
	Loop      uint64
	SessionID string
}

// NewSupervisorStartedEvent creates a SupervisorStartedEvent.
func NewSupervisorStartedEvent(worker string, loop uint64, sessionID string) SupervisorStartedEvent {
	return SupervisorStartedEvent{
		baseEvent: newBaseEvent(TypeSupervisorStarted),
		Worker:    worker,
		Loop:      loop,
		SessionID: sessionID,
	}
}

// SupervisorRestartedEvent is emitted when a stale background session is
// cancelled because the worker's loop changed.
type SupervisorRestartedEvent struct {
	baseEvent
	Worker  string
	OldLoop uint64
	NewLoop uint64
}

// NewSupervisorRestartedEvent creates a SupervisorRestartedEvent.
func NewSupervisorRestartedEvent(worker string, oldLoop, newLoop uint64) SupervisorRestartedEvent {
	return SupervisorRestartedEvent{
		baseEvent: newBaseEvent(TypeSupervisorRestarted),
		Worker:    worker,
		OldLoop:   oldLoop,
		NewLoop:   newLoop,
	}
}

// SupervisorStoppedEvent is emitted when a background session ends.
type SupervisorStoppedEvent struct {
	baseEvent
	Worker string
	Error  string // Empty when the session released cleanly
}

// NewSupervisorStoppedEvent creates a SupervisorStoppedEvent.
func NewSupervisorStoppedEvent(worker, errMsg string) SupervisorStoppedEvent {
	return SupervisorStoppedEvent{
		baseEvent: newBaseEvent(TypeSupervisorStopped),
		Worker:    worker,
		Error:     errMsg,
	}
}

// ReentrancyDetectedEvent is emitted when a lifecycle scope arrives on a
// worker whose handshake is already running.
type ReentrancyDetectedEvent struct {
	baseEvent
	Worker string
}

// NewReentrancyDetectedEvent creates a ReentrancyDetectedEvent.
func NewReentrancyDetectedEvent(worker string) ReentrancyDetectedEvent {
	return ReentrancyDetectedEvent{
		baseEvent: newBaseEvent(TypeReentrancyDetected),
		Worker:    worker,
	}
}

// -----------------------------------------------------------------------------
// Hook Events
// -----------------------------------------------------------------------------

// HookSetupEvent is emitted after a hook's setup function ran.
type HookSetupEvent struct {
	baseEvent
	Success  bool
	Releases int // Number of registered teardown releases
	Error    string
}

// NewHookSetupEvent creates a HookSetupEvent.
func NewHookSetupEvent(success bool, releases int, errMsg string) HookSetupEvent {
	return HookSetupEvent{
		baseEvent: newBaseEvent(TypeHookSetup),
		Success:   success,
		Releases:  releases,
		Error:     errMsg,
	}
}

// HookTeardownEvent is emitted after a hook closed its teardown stack.
type HookTeardownEvent struct {
	baseEvent
	Success bool
	Error   string
}

// NewHookTeardownEvent creates a HookTeardownEvent.
func NewHookTeardownEvent(success bool, errMsg string) HookTeardownEvent {
	return HookTeardownEvent{
		baseEvent: newBaseEvent(TypeHookTeardown),
		Success:   success,
		Error:     errMsg,
	}
}
