package lifespan

import (
	"context"

	"github.com/Iron-Ham/lifespan/internal/errors"
)

// Kind identifies a lifecycle protocol message.
type Kind string

// Lifecycle message kinds.
const (
	KindStartup          Kind = "startup"
	KindStartupComplete  Kind = "startup.complete"
	KindStartupFailed    Kind = "startup.failed"
	KindShutdown         Kind = "shutdown"
	KindShutdownComplete Kind = "shutdown.complete"
	KindShutdownFailed   Kind = "shutdown.failed"
)

// Valid reports whether k is one of the enumerated message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStartup, KindStartupComplete, KindStartupFailed,
		KindShutdown, KindShutdownComplete, KindShutdownFailed:
		return true
	default:
		return false
	}
}

// IsFailure reports whether k is a *.failed reply.
func (k Kind) IsFailure() bool {
	return k == KindStartupFailed || k == KindShutdownFailed
}

// Message is a single lifecycle protocol message. Detail is only meaningful
// on failure kinds.
type Message struct {
	Kind   Kind   `json:"kind" yaml:"kind"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Validate fails closed on kinds outside the protocol.
func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return errors.NewProtocolError("", string(m.Kind))
	}
	return nil
}

// ScopeLifecycle is the scope kind that opens a lifecycle conversation.
const ScopeLifecycle = "lifecycle"

// ProtocolVersion is the lifecycle protocol version advertised in scopes
// created by this package.
const ProtocolVersion = "2.0"

// StateKeyTeardown is the Scope.State key under which a Hook publishes the
// TeardownStack returned by its setup function.
const StateKeyTeardown = "lifespan.teardown"

// Scope describes the conversation a Process call establishes.
//
// State is shared between the application and its wrappers for the duration
// of a single Process call. The session that creates it owns it.
type Scope struct {
	Kind            string
	ProtocolVersion string
	State           map[string]any
}

// IsLifecycle reports whether the scope opens a lifecycle conversation.
func (s Scope) IsLifecycle() bool {
	return s.Kind == ScopeLifecycle
}

// NewLifecycleScope returns a lifecycle scope with an empty state map.
func NewLifecycleScope() Scope {
	return Scope{
		Kind:            ScopeLifecycle,
		ProtocolVersion: ProtocolVersion,
		State:           make(map[string]any),
	}
}

// ReceiveFunc pulls the next inbound message, blocking until one arrives.
type ReceiveFunc func(ctx context.Context) (Message, error)

// SendFunc pushes an outbound message.
type SendFunc func(ctx context.Context, msg Message) error

// Application is anything that speaks the lifecycle protocol.
//
// For a lifecycle scope an application is expected to receive startup, reply
// startup.complete or startup.failed, then receive shutdown and reply
// shutdown.complete or shutdown.failed. Returning an error signals that the
// application terminated abnormally.
type Application interface {
	Process(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error
}

// ApplicationFunc adapts an ordinary function to the Application interface.
type ApplicationFunc func(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error

// Process calls f.
func (f ApplicationFunc) Process(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error {
	return f(ctx, scope, receive, send)
}
