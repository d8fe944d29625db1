// Package logging provides structured logging for lifespan sessions.
//
// This package wraps Go's log/slog to provide structured logs with context
// propagation for the lifecycle bridge. Sessions, supervisors and hooks take
// an optional [*Logger] and fall back to [NopLogger] so library callers pay
// nothing unless they opt in.
//
// # Context Propagation
//
// Create child loggers with persistent context attributes:
//
//	sessionLogger := logger.WithSession(sessionID)
//	phaseLogger := sessionLogger.WithPhase("startup")
//	phaseLogger.Info("startup complete", "elapsed_ms", 12)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"startup complete","session_id":"...","phase":"startup","elapsed_ms":12}
//
// # Output
//
// [NewLogger] writes JSON to {dir}/lifespan.log, or to stderr when dir is
// empty. [NewConsoleLogger] writes to an arbitrary writer and switches to the
// human-readable text handler when asked to; the CLI does so when stderr is
// a terminal.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying handler.
package logging
