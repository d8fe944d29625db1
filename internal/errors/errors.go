// Package errors provides centralized error definitions and error handling utilities
// for the lifespan bridge. It defines the lifecycle error taxonomy, sentinel errors,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Handshake errors represent failures reported or caused during a lifecycle handshake:
//   - HandshakeError: the application replied startup.failed or shutdown.failed
//   - ProtocolError: an unexpected message kind was observed
//   - ReentrancyError: a handshake was driven twice on one thread of control
//   - TaskError: the application task ended before answering a handshake step
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewStartupFailedError("db unreachable")
//	err := errors.NewTaskError("shutdown", cause).WithSessionID(id)
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrStartupFailed) { ... }
//
//	// Check for error types
//	var hsErr *errors.HandshakeError
//	if errors.As(err, &hsErr) { fmt.Println(hsErr.Detail) }
//
// # Error Classification
//
// None of the lifecycle errors are retried by the bridge itself. The
// classification helpers exist for callers that want to decide:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Handshake sentinel errors
var (
	// ErrStartupFailed indicates the application replied startup.failed.
	ErrStartupFailed = New("lifespan startup failed")
	// ErrShutdownFailed indicates the application replied shutdown.failed.
	ErrShutdownFailed = New("lifespan shutdown failed")
	// ErrProtocolViolation indicates an unexpected or unknown message kind.
	ErrProtocolViolation = New("lifespan protocol violation")
	// ErrReentrancy indicates the handshake was driven twice on one thread of control.
	ErrReentrancy = New("lifespan handshake must not run twice concurrently on the same thread of control")
	// ErrTaskErrored indicates the application task ended before answering.
	ErrTaskErrored = New("lifespan task errored")
	// ErrTaskExited is the cause attached when the task returned without an error.
	ErrTaskExited = New("lifespan task exited")
	// ErrSessionClosed indicates the session's queues no longer accept traffic.
	ErrSessionClosed = New("lifespan session closed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// LifespanError is the base interface for all lifespan errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type LifespanError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// contextPrefix renders "<name> [k=v, ...]" for the domain error types.
func contextPrefix(name string, parts []string) string {
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Handshake Errors
// -----------------------------------------------------------------------------

// Handshake phases used as error context.
const (
	PhaseStartup  = "startup"
	PhaseShutdown = "shutdown"
)

// HandshakeError reports that the application explicitly failed a handshake
// step by replying startup.failed or shutdown.failed. Detail is carried
// through unchanged from the failure message.
//
// Example:
//
//	err := errors.NewStartupFailedError("db unreachable")
//	fmt.Println(err) // "lifespan startup failed: db unreachable"
type HandshakeError struct {
	baseError
	Phase     string
	Detail    string
	SessionID string
}

// NewStartupFailedError creates a HandshakeError for a startup.failed reply.
func NewStartupFailedError(detail string) *HandshakeError {
	return newHandshakeError(PhaseStartup, detail)
}

// NewShutdownFailedError creates a HandshakeError for a shutdown.failed reply.
func NewShutdownFailedError(detail string) *HandshakeError {
	return newHandshakeError(PhaseShutdown, detail)
}

func newHandshakeError(phase, detail string) *HandshakeError {
	return &HandshakeError{
		baseError: baseError{
			message:    fmt.Sprintf("lifespan %s failed", phase),
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Phase:  phase,
		Detail: detail,
	}
}

// WithSessionID adds a session ID to the error context.
func (e *HandshakeError) WithSessionID(id string) *HandshakeError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *HandshakeError) Error() string {
	msg := e.message
	if e.SessionID != "" {
		msg = fmt.Sprintf("%s [session=%s]", msg, e.SessionID)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *HandshakeError) Is(target error) bool {
	if _, ok := target.(*HandshakeError); ok {
		return true
	}
	switch target {
	case ErrStartupFailed:
		return e.Phase == PhaseStartup
	case ErrShutdownFailed:
		return e.Phase == PhaseShutdown
	}
	return e.baseError.Is(target)
}

// ProtocolError reports an unexpected message kind where only a completion
// or failure reply was valid. It always indicates a bug in the application.
//
// Example:
//
//	err := errors.NewProtocolError("startup", "shutdown.complete")
type ProtocolError struct {
	baseError
	Phase     string
	Kind      string
	SessionID string
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(phase, kind string) *ProtocolError {
	return &ProtocolError{
		baseError: baseError{
			message:    fmt.Sprintf("unexpected message kind %q", kind),
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: false,
		},
		Phase: phase,
		Kind:  kind,
	}
}

// WithSessionID adds a session ID to the error context.
func (e *ProtocolError) WithSessionID(id string) *ProtocolError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *ProtocolError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	return fmt.Sprintf("%s: %s", contextPrefix("protocol violation", parts), e.message)
}

// Is checks if this error matches the target.
func (e *ProtocolError) Is(target error) bool {
	if _, ok := target.(*ProtocolError); ok {
		return true
	}
	if target == ErrProtocolViolation {
		return true
	}
	return e.baseError.Is(target)
}

// ReentrancyError reports a lifecycle scope arriving at a supervisor whose
// thread of control already runs a handshake. It signals host misuse and is
// never retried.
type ReentrancyError struct {
	baseError
	Worker string
}

// NewReentrancyError creates a new ReentrancyError for the given worker.
func NewReentrancyError(worker string) *ReentrancyError {
	return &ReentrancyError{
		baseError: baseError{
			message:    ErrReentrancy.Error(),
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: false,
		},
		Worker: worker,
	}
}

// Error returns the formatted error message.
func (e *ReentrancyError) Error() string {
	if e.Worker != "" {
		return fmt.Sprintf("reentrancy error [worker=%s]: %s", e.Worker, e.message)
	}
	return fmt.Sprintf("reentrancy error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *ReentrancyError) Is(target error) bool {
	if _, ok := target.(*ReentrancyError); ok {
		return true
	}
	if target == ErrReentrancy {
		return true
	}
	return e.baseError.Is(target)
}

// TaskError reports that the application task ended before answering a
// pending handshake step. The task's own error is the cause; a task that
// returned nil carries ErrTaskExited.
//
// Example:
//
//	err := errors.NewTaskError("shutdown", taskErr).WithSessionID(id)
type TaskError struct {
	baseError
	Phase     string
	SessionID string
}

// NewTaskError creates a new TaskError. A nil cause is replaced with ErrTaskExited.
func NewTaskError(phase string, cause error) *TaskError {
	if cause == nil {
		cause = ErrTaskExited
	}
	return &TaskError{
		baseError: baseError{
			message:    ErrTaskErrored.Error(),
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Phase: phase,
	}
}

// WithSessionID adds a session ID to the error context.
func (e *TaskError) WithSessionID(id string) *TaskError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *TaskError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	return fmt.Sprintf("%s: %v", contextPrefix(e.message, parts), e.cause)
}

// Is checks if this error matches the target.
func (e *TaskError) Is(target error) bool {
	if _, ok := target.(*TaskError); ok {
		return true
	}
	if target == ErrTaskErrored {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("application must not be nil")
//	err = err.WithField("app")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := contextPrefix("validation error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for startup reply", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for startup reply (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing LifespanError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var lifespanErr LifespanError
	if As(err, &lifespanErr) {
		return lifespanErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    displayToUser(err.Error())
//	} else {
//	    displayToUser("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var lifespanErr LifespanError
	if As(err, &lifespanErr) {
		return lifespanErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement LifespanError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var lifespanErr LifespanError
	if As(err, &lifespanErr) {
		return lifespanErr.Severity()
	}

	return SeverityError
}

// IsHandshakeError returns true if the error belongs to the lifecycle handshake
// taxonomy (HandshakeError, ProtocolError, ReentrancyError or TaskError).
func IsHandshakeError(err error) bool {
	if err == nil {
		return false
	}

	var hsErr *HandshakeError
	var protoErr *ProtocolError
	var reentrantErr *ReentrancyError
	var taskErr *TaskError

	return As(err, &hsErr) || As(err, &protoErr) ||
		As(err, &reentrantErr) || As(err, &taskErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the LifespanError interface.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to acquire session")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Canceled wraps a context error so it matches both ErrCanceled and the
// original context error.
func Canceled(operation string, ctxErr error) error {
	return fmt.Errorf("%s: %w: %w", operation, ErrCanceled, ctxErr)
}
