package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	lserrors "github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/lifespan"
	"github.com/Iron-Ham/lifespan/internal/logging"
	"github.com/Iron-Ham/lifespan/internal/testutil"
)

func testChild(argv ...string) (*child, *syncBuffer) {
	var out syncBuffer
	return newChild(argv, strings.NewReader(""), &out, &out, logging.NopLogger()), &out
}

func TestChild_Wait(t *testing.T) {
	testutil.SkipIfNoShell(t)

	tests := []struct {
		name     string
		script   string
		wantCode int
	}{
		{"success", "exit 0", 0},
		{"failure", "exit 7", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := testChild("sh", "-c", tt.script)
			if err := c.start(); err != nil {
				t.Fatalf("start() error = %v", err)
			}

			err := c.wait(testutil.Context(t))
			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("wait() error = %v", err)
				}
				return
			}
			var exitErr *ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != tt.wantCode {
				t.Errorf("wait() error = %v, want exit code %d", err, tt.wantCode)
			}
		})
	}
}

func TestChild_Output(t *testing.T) {
	testutil.SkipIfNoShell(t)
	c, out := testChild("sh", "-c", "echo out; echo err >&2")
	if err := c.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	if err := c.wait(testutil.Context(t)); err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if got := out.String(); !strings.Contains(got, "out") || !strings.Contains(got, "err") {
		t.Errorf("output = %q", got)
	}
}

func TestChild_StartErrors(t *testing.T) {
	c, _ := testChild("lifespan-no-such-command-xyz")
	if err := c.start(); err == nil {
		t.Error("start() should fail for a missing command")
	}
	if err := c.wait(testutil.Context(t)); err == nil {
		t.Error("wait() on an unstarted child should fail")
	}

	testutil.SkipIfNoShell(t)
	c, _ = testChild("true")
	if err := c.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	if err := c.start(); err == nil {
		t.Error("second start() should fail")
	}
	_ = c.wait(testutil.Context(t))
}

func TestChild_WaitStopsOnCancel(t *testing.T) {
	testutil.SkipIfNoShell(t)
	c, _ := testChild("sleep", "30")
	if err := c.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	began := time.Now()
	err := c.wait(ctx)
	if time.Since(began) > testutil.DefaultWait {
		t.Fatal("wait() did not stop the child")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("wait() error = %v, want ExitError", err)
	}
	if exitErr.Code != 130 {
		t.Errorf("exit code = %d, want 130 (interrupted)", exitErr.Code)
	}
}

func TestChild_StopKillsAfterGrace(t *testing.T) {
	testutil.SkipIfNoShell(t)
	c, _ := testChild("sh", "-c", "trap '' INT; exec sleep 30")
	c.grace = 100 * time.Millisecond
	if err := c.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	// Give the shell time to install its trap.
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testutil.DefaultWait):
		t.Fatal("stop() never returned")
	}
}

func TestChildApp_Lifecycle(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)
	c, _ := testChild("sleep", "30")

	sess, err := lifespan.Acquire(ctx, &childApp{child: c})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	c.mu.Lock()
	running := c.cmd != nil
	c.mu.Unlock()
	if !running {
		t.Fatal("startup should launch the child")
	}

	if err := sess.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	select {
	case <-c.done:
	default:
		t.Error("shutdown should stop the child")
	}
}

func TestChildApp_StartupFailure(t *testing.T) {
	ctx := testutil.Context(t)
	c, _ := testChild("lifespan-no-such-command-xyz")

	_, err := lifespan.Acquire(ctx, &childApp{child: c})
	if !errors.Is(err, lserrors.ErrStartupFailed) {
		t.Fatalf("Acquire() error = %v, want ErrStartupFailed", err)
	}
	if !strings.Contains(err.Error(), "lifespan-no-such-command-xyz") {
		t.Errorf("error = %q, want the command name", err)
	}
}

func TestChildApp_IgnoresOtherScopes(t *testing.T) {
	app := &childApp{child: &child{}}
	if err := app.Process(context.Background(), lifespan.Scope{Kind: "http"}, nil, nil); err != nil {
		t.Errorf("Process() error = %v", err)
	}
}

func TestChildApp_RejectsUnexpectedKinds(t *testing.T) {
	ctx := testutil.Context(t)
	c, _ := testChild("sleep", "30")
	host := testutil.NewHost()

	host.In <- lifespan.Message{Kind: lifespan.KindStartup}
	host.In <- lifespan.Message{Kind: lifespan.KindStartupComplete}

	err := (&childApp{child: c}).Process(ctx, lifespan.NewLifecycleScope(), host.Receive, host.Send)
	if !errors.Is(err, lserrors.ErrProtocolViolation) {
		t.Fatalf("Process() error = %v, want ErrProtocolViolation", err)
	}
	host.Expect(t, lifespan.KindStartupComplete)

	select {
	case <-c.done:
	default:
		t.Error("a protocol violation should stop the child")
	}
}
