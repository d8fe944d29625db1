package lifespan

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/lifespan/internal/logging"
)

// TeardownStack is an ordered registry of release actions.
//
// Close runs the releases in reverse registration order. Every release runs
// even if earlier ones fail or panic; the first failure is returned and the
// rest are logged. The zero value is ready to use.
type TeardownStack struct {
	mu       sync.Mutex
	releases []release
	closed   bool
	logger   *logging.Logger
}

type release struct {
	name string
	fn   func(ctx context.Context) error
}

// NewTeardownStack returns an empty stack that logs through logger.
func NewTeardownStack(logger *logging.Logger) *TeardownStack {
	return &TeardownStack{logger: logger}
}

// SetLogger sets the logger used to report release failures beyond the first.
func (t *TeardownStack) SetLogger(logger *logging.Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

// defaultLogger sets logger only if none was configured.
func (t *TeardownStack) defaultLogger(logger *logging.Logger) {
	t.mu.Lock()
	if t.logger == nil {
		t.logger = logger
	}
	t.mu.Unlock()
}

// Defer registers a release that cannot fail.
func (t *TeardownStack) Defer(fn func()) {
	t.push("func", func(context.Context) error {
		fn()
		return nil
	})
}

// DeferErr registers a release that may fail.
func (t *TeardownStack) DeferErr(fn func() error) {
	t.push("func", func(context.Context) error {
		return fn()
	})
}

// DeferContext registers a release that receives the context passed to Close.
func (t *TeardownStack) DeferContext(fn func(ctx context.Context) error) {
	t.push("func", fn)
}

// DeferNamed registers a context-aware release under a name used in logs and
// error messages.
func (t *TeardownStack) DeferNamed(name string, fn func(ctx context.Context) error) {
	t.push(name, fn)
}

// PushCloser registers c.Close as a release.
func (t *TeardownStack) PushCloser(c io.Closer) {
	t.push(fmt.Sprintf("%T", c), func(context.Context) error {
		return c.Close()
	})
}

// push appends a release. Registering on a closed stack runs the release
// immediately so the resource it guards is never leaked.
func (t *TeardownStack) push(name string, fn func(ctx context.Context) error) {
	t.mu.Lock()
	if !t.closed {
		t.releases = append(t.releases, release{name: name, fn: fn})
		t.mu.Unlock()
		return
	}
	logger := t.log()
	t.mu.Unlock()

	logger.Warn("release registered on closed teardown stack, running now", "release", name)
	if err := runRelease(context.Background(), release{name: name, fn: fn}); err != nil {
		logger.Error("release failed", "release", name, "error", err.Error())
	}
}

// Len returns the number of pending releases.
func (t *TeardownStack) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.releases)
}

// Closed reports whether Close has been called.
func (t *TeardownStack) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close runs every registered release in reverse order and returns the first
// error raised. Closing an already closed stack is a no-op.
func (t *TeardownStack) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	releases := t.releases
	t.releases = nil
	logger := t.log()
	t.mu.Unlock()

	var first error
	for i := len(releases) - 1; i >= 0; i-- {
		err := runRelease(ctx, releases[i])
		if err == nil {
			continue
		}
		if first == nil {
			first = err
			continue
		}
		logger.Warn("additional teardown failure", "release", releases[i].name, "index", i, "error", err.Error())
	}
	return first
}

// log returns the configured logger. Callers hold t.mu.
func (t *TeardownStack) log() *logging.Logger {
	if t.logger == nil {
		return logging.NopLogger()
	}
	return t.logger
}

func runRelease(ctx context.Context, r release) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = r.fn(ctx)
	})
	if rec := catcher.Recovered(); rec != nil {
		return fmt.Errorf("release %s panicked: %w", r.name, rec.AsError())
	}
	return err
}
