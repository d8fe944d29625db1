package lifespan_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/lifespan/internal/lifespan"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestTeardownStack_ReverseOrder(t *testing.T) {
	var stack lifespan.TeardownStack
	var order []string

	stack.Defer(func() { order = append(order, "R1") })
	stack.DeferErr(func() error {
		order = append(order, "R2")
		return nil
	})
	stack.DeferContext(func(ctx context.Context) error {
		order = append(order, "R3")
		return nil
	})

	if stack.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", stack.Len())
	}
	if err := stack.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []string{"R3", "R2", "R1"}
	if !slices.Equal(order, want) {
		t.Errorf("release order = %v, want %v", order, want)
	}
	if stack.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", stack.Len())
	}
}

func TestTeardownStack_AllRunFirstErrorWins(t *testing.T) {
	stack := lifespan.NewTeardownStack(nil)
	errR1 := errors.New("r1 failed")
	errR3 := errors.New("r3 failed")
	var ran []string

	stack.DeferErr(func() error {
		ran = append(ran, "R1")
		return errR1
	})
	stack.Defer(func() { ran = append(ran, "R2") })
	stack.DeferErr(func() error {
		ran = append(ran, "R3")
		return errR3
	})

	err := stack.Close(context.Background())
	if !errors.Is(err, errR3) {
		t.Errorf("Close() error = %v, want the first raised (%v)", err, errR3)
	}
	if errors.Is(err, errR1) {
		t.Error("later failures are logged, not returned")
	}
	if !slices.Equal(ran, []string{"R3", "R2", "R1"}) {
		t.Errorf("ran = %v, every release must run", ran)
	}
}

func TestTeardownStack_PanicBecomesError(t *testing.T) {
	var stack lifespan.TeardownStack
	ran := false

	stack.Defer(func() { ran = true })
	stack.DeferNamed("cache", func(ctx context.Context) error {
		panic("cache exploded")
	})

	err := stack.Close(context.Background())
	if err == nil {
		t.Fatal("Close() should report the panic")
	}
	if !strings.Contains(err.Error(), "cache") || !strings.Contains(err.Error(), "cache exploded") {
		t.Errorf("Close() error = %v, want release name and panic value", err)
	}
	if !ran {
		t.Error("releases after a panic must still run")
	}
}

func TestTeardownStack_CloseTwice(t *testing.T) {
	var stack lifespan.TeardownStack
	calls := 0
	stack.Defer(func() { calls++ })

	if err := stack.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := stack.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("release ran %d times, want 1", calls)
	}
	if !stack.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestTeardownStack_PushCloser(t *testing.T) {
	var stack lifespan.TeardownStack
	closed := false
	stack.PushCloser(closerFunc(func() error {
		closed = true
		return nil
	}))

	if err := stack.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Error("PushCloser release did not call Close")
	}
}

func TestTeardownStack_PushAfterCloseRunsImmediately(t *testing.T) {
	var stack lifespan.TeardownStack
	if err := stack.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	ran := false
	stack.Defer(func() { ran = true })

	if !ran {
		t.Error("release registered after Close should run immediately")
	}
	if stack.Len() != 0 {
		t.Errorf("Len() = %d, want 0", stack.Len())
	}
}

func TestTeardownStack_PassesContext(t *testing.T) {
	type key struct{}
	var stack lifespan.TeardownStack
	var got any

	stack.DeferContext(func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})

	ctx := context.WithValue(context.Background(), key{}, "v")
	if err := stack.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if got != "v" {
		t.Errorf("ctx value = %v, want v", got)
	}
}
