// Package testutil provides testing utilities for lifespan tests.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/lifespan/internal/lifespan"
)

// DefaultWait bounds how long helpers wait for asynchronous effects.
const DefaultWait = 5 * time.Second

// App is a scripted Application for tests. The zero value answers startup
// with startup.complete and shutdown with shutdown.complete.
//
// Behaviour is keyed on the lifecycle message being handled. Fields must be
// set before the first Process call.
type App struct {
	// Replies overrides the reply sent for a message kind.
	Replies map[lifespan.Kind]lifespan.Message
	// Errors makes Process return the error instead of replying.
	Errors map[lifespan.Kind]error
	// Panics makes Process panic with the value instead of replying.
	Panics map[lifespan.Kind]any
	// Block makes Process wait for ctx instead of replying.
	Block map[lifespan.Kind]bool
	// ExitAfterStartup makes Process return nil right after replying to
	// startup, leaving shutdown unanswered.
	ExitAfterStartup bool
	// OnOther handles non-lifecycle scopes. Nil means return nil.
	OnOther func(ctx context.Context, scope lifespan.Scope) error

	mu       sync.Mutex
	calls    int
	scopes   []string
	received []lifespan.Kind
	entered  chan struct{}
	once     sync.Once
}

// NewApp returns a zero-configured App.
func NewApp() *App {
	return &App{}
}

func (a *App) init() {
	a.once.Do(func() {
		a.mu.Lock()
		if a.entered == nil {
			a.entered = make(chan struct{})
		}
		a.mu.Unlock()
	})
}

// Process implements lifespan.Application.
func (a *App) Process(ctx context.Context, scope lifespan.Scope, receive lifespan.ReceiveFunc, send lifespan.SendFunc) error {
	a.init()
	a.mu.Lock()
	a.calls++
	a.scopes = append(a.scopes, scope.Kind)
	first := a.calls == 1
	a.mu.Unlock()
	if first {
		close(a.entered)
	}

	if !scope.IsLifecycle() {
		if a.OnOther != nil {
			return a.OnOther(ctx, scope)
		}
		return nil
	}

	for {
		msg, err := receive(ctx)
		if err != nil {
			return err
		}

		a.mu.Lock()
		a.received = append(a.received, msg.Kind)
		a.mu.Unlock()

		if err := a.Errors[msg.Kind]; err != nil {
			return err
		}
		if v, ok := a.Panics[msg.Kind]; ok {
			panic(v)
		}
		if a.Block[msg.Kind] {
			<-ctx.Done()
			return ctx.Err()
		}

		reply, ok := a.Replies[msg.Kind]
		if !ok {
			switch msg.Kind {
			case lifespan.KindStartup:
				reply = lifespan.Message{Kind: lifespan.KindStartupComplete}
			case lifespan.KindShutdown:
				reply = lifespan.Message{Kind: lifespan.KindShutdownComplete}
			default:
				continue
			}
		}
		if err := send(ctx, reply); err != nil {
			return err
		}

		switch {
		case msg.Kind == lifespan.KindStartup && reply.Kind == lifespan.KindStartupFailed:
			return nil
		case msg.Kind == lifespan.KindStartup && a.ExitAfterStartup:
			return nil
		case msg.Kind == lifespan.KindShutdown:
			return nil
		}
	}
}

// Calls returns how many times Process was invoked.
func (a *App) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Scopes returns the scope kinds Process was invoked with, in order.
func (a *App) Scopes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.scopes...)
}

// Received returns the lifecycle messages the app pulled, in order.
func (a *App) Received() []lifespan.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]lifespan.Kind(nil), a.received...)
}

// WaitEntered blocks until Process has been called at least once.
func (a *App) WaitEntered(t *testing.T) {
	t.Helper()
	a.init()
	select {
	case <-a.entered:
	case <-time.After(DefaultWait):
		t.Fatal("application was never invoked")
	}
}

// Host plays the host side of one lifecycle conversation over channels, so
// tests can drive a wrapped application the way a server would.
type Host struct {
	In  chan lifespan.Message // host → application
	Out chan lifespan.Message // application → host
}

// NewHost returns a Host with buffered channels.
func NewHost() *Host {
	return &Host{
		In:  make(chan lifespan.Message, 8),
		Out: make(chan lifespan.Message, 8),
	}
}

// Receive is the application's receive function.
func (h *Host) Receive(ctx context.Context) (lifespan.Message, error) {
	select {
	case msg := <-h.In:
		return msg, nil
	case <-ctx.Done():
		return lifespan.Message{}, ctx.Err()
	}
}

// Send is the application's send function.
func (h *Host) Send(ctx context.Context, msg lifespan.Message) error {
	select {
	case h.Out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Expect reads the next outbound message and fails the test unless it has
// the wanted kind.
func (h *Host) Expect(t *testing.T, want lifespan.Kind) lifespan.Message {
	t.Helper()
	select {
	case msg := <-h.Out:
		if msg.Kind != want {
			t.Fatalf("host received %q, want %q", msg.Kind, want)
		}
		return msg
	case <-time.After(DefaultWait):
		t.Fatalf("host never received %q", want)
		return lifespan.Message{}
	}
}

// ExpectNothing fails the test if any outbound message is pending.
func (h *Host) ExpectNothing(t *testing.T) {
	t.Helper()
	select {
	case msg := <-h.Out:
		t.Fatalf("host received unexpected %q", msg.Kind)
	default:
	}
}

// Context returns a context cancelled at the end of the test and bounded by
// DefaultWait.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultWait)
	t.Cleanup(cancel)
	return ctx
}

// WriteFile writes content to name under dir, creating parents.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", name, err)
	}
	return path
}

// SkipIfNoShell skips the test if sh is not installed.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}
