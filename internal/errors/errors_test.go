package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// HandshakeError Tests
// -----------------------------------------------------------------------------

func TestHandshakeError(t *testing.T) {
	tests := []struct {
		name      string
		err       *HandshakeError
		wantMsg   string
		wantMatch error
		wantMiss  error
	}{
		{
			name:      "startup with detail",
			err:       NewStartupFailedError("db unreachable"),
			wantMsg:   "lifespan startup failed: db unreachable",
			wantMatch: ErrStartupFailed,
			wantMiss:  ErrShutdownFailed,
		},
		{
			name:      "shutdown without detail",
			err:       NewShutdownFailedError(""),
			wantMsg:   "lifespan shutdown failed",
			wantMatch: ErrShutdownFailed,
			wantMiss:  ErrStartupFailed,
		},
		{
			name:      "startup with session",
			err:       NewStartupFailedError("boom").WithSessionID("s-1"),
			wantMsg:   "lifespan startup failed [session=s-1]: boom",
			wantMatch: ErrStartupFailed,
			wantMiss:  ErrTaskErrored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, tt.wantMatch) {
				t.Errorf("errors.Is(%v) = false, want true", tt.wantMatch)
			}
			if errors.Is(tt.err, tt.wantMiss) {
				t.Errorf("errors.Is(%v) = true, want false", tt.wantMiss)
			}
		})
	}
}

func TestHandshakeError_DetailSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("acquire: %w", NewStartupFailedError("db unreachable"))

	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatal("errors.As should find HandshakeError")
	}
	if hsErr.Detail != "db unreachable" {
		t.Errorf("Detail = %q, want %q", hsErr.Detail, "db unreachable")
	}
	if hsErr.Phase != PhaseStartup {
		t.Errorf("Phase = %q, want %q", hsErr.Phase, PhaseStartup)
	}
}

// -----------------------------------------------------------------------------
// ProtocolError Tests
// -----------------------------------------------------------------------------

func TestProtocolError(t *testing.T) {
	err := NewProtocolError(PhaseStartup, "shutdown.complete").WithSessionID("s-2")

	want := `protocol violation [phase=startup, session=s-2]: unexpected message kind "shutdown.complete"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrProtocolViolation) {
		t.Error("should match ErrProtocolViolation")
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if IsUserFacing(err) {
		t.Error("protocol violations are internal, IsUserFacing() should be false")
	}
}

// -----------------------------------------------------------------------------
// ReentrancyError Tests
// -----------------------------------------------------------------------------

func TestReentrancyError(t *testing.T) {
	t.Run("with worker", func(t *testing.T) {
		err := NewReentrancyError("worker-1")
		want := "reentrancy error [worker=worker-1]: " + ErrReentrancy.Error()
		if got := err.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
		if !errors.Is(err, ErrReentrancy) {
			t.Error("should match ErrReentrancy")
		}
	})

	t.Run("without worker", func(t *testing.T) {
		err := NewReentrancyError("")
		want := "reentrancy error: " + ErrReentrancy.Error()
		if got := err.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("never retryable", func(t *testing.T) {
		if IsRetryable(NewReentrancyError("w")) {
			t.Error("IsRetryable() = true, want false")
		}
	})
}

// -----------------------------------------------------------------------------
// TaskError Tests
// -----------------------------------------------------------------------------

func TestTaskError(t *testing.T) {
	t.Run("carries task cause", func(t *testing.T) {
		cause := errors.New("app crashed")
		err := NewTaskError(PhaseShutdown, cause).WithSessionID("s-3")

		if !errors.Is(err, ErrTaskErrored) {
			t.Error("should match ErrTaskErrored")
		}
		if !errors.Is(err, cause) {
			t.Error("should match the underlying cause")
		}
		want := "lifespan task errored [phase=shutdown, session=s-3]: app crashed"
		if got := err.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("nil cause becomes ErrTaskExited", func(t *testing.T) {
		err := NewTaskError(PhaseStartup, nil)
		if !errors.Is(err, ErrTaskExited) {
			t.Error("should match ErrTaskExited")
		}
		if errors.Unwrap(err) != ErrTaskExited {
			t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), ErrTaskExited)
		}
	})
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "message only",
			err:  NewValidationError("application must not be nil"),
			want: "validation error: application must not be nil",
		},
		{
			name: "with field and value",
			err:  NewValidationError("must be positive").WithField("timeout").WithValue(-1),
			want: "validation error [field=timeout, value=-1]: must be positive",
		},
		{
			name: "with cause",
			err:  NewValidationError("bad").WithCause(errors.New("root")),
			want: "validation error: bad: root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Error("should match ErrInvalidInput")
			}
		})
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("waiting for startup reply", 30*time.Second)

	want := "timeout error: waiting for startup reply (timeout: 30s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("should match ErrTimeout")
	}
	if !IsRetryable(err) {
		t.Error("timeouts default to retryable")
	}
	if IsRetryable(err.WithRetryable(false)) {
		t.Error("WithRetryable(false) should clear retryable")
	}

	wrapped := NewTimeoutError("op", time.Second).WithCause(errors.New("deadline"))
	if got := wrapped.Error(); got != "timeout error: op (timeout: 1s): deadline" {
		t.Errorf("Error() = %q", got)
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityDebug},
		{"plain error", errors.New("x"), SeverityError},
		{"handshake", NewStartupFailedError("x"), SeverityError},
		{"protocol", NewProtocolError("startup", "x"), SeverityCritical},
		{"wrapped timeout", Wrap(NewTimeoutError("op", time.Second), "ctx"), SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHandshakeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"timeout", NewTimeoutError("op", time.Second), false},
		{"handshake", NewShutdownFailedError("x"), true},
		{"protocol", NewProtocolError("shutdown", "x"), true},
		{"reentrancy", NewReentrancyError("w"), true},
		{"task", Wrapf(NewTaskError("startup", nil), "session %s", "abc"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHandshakeError(tt.err); got != tt.want {
				t.Errorf("IsHandshakeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	err := Wrapf(ErrTimeout, "session %s", "abc")
	if err.Error() != "session abc: operation timed out" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("wrapped error should match ErrTimeout")
	}
}

func TestCanceled(t *testing.T) {
	err := Canceled("waiting for startup reply", fmt.Errorf("context canceled"))
	if !errors.Is(err, ErrCanceled) {
		t.Error("should match ErrCanceled")
	}
	want := "waiting for startup reply: operation canceled: context canceled"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
