package lifespan

import (
	"context"
	"errors"
	"testing"
	"time"

	lserrors "github.com/Iron-Ham/lifespan/internal/errors"
)

func TestMessageQueue_FIFO(t *testing.T) {
	q := newMessageQueue()
	kinds := []Kind{KindStartup, KindStartupComplete, KindShutdown, KindShutdownComplete}
	for _, k := range kinds {
		if err := q.Push(Message{Kind: k}); err != nil {
			t.Fatalf("Push(%s) error = %v", k, err)
		}
	}
	if q.Len() != len(kinds) {
		t.Fatalf("Len() = %d, want %d", q.Len(), len(kinds))
	}

	for _, want := range kinds {
		got, err := q.Pop(context.Background(), nil)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if got.Kind != want {
			t.Errorf("Pop() = %s, want %s", got.Kind, want)
		}
	}
}

func TestMessageQueue_PopBlocksUntilPush(t *testing.T) {
	q := newMessageQueue()
	got := make(chan Message, 1)

	go func() {
		msg, err := q.Pop(context.Background(), nil)
		if err == nil {
			got <- msg
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	_ = q.Push(Message{Kind: KindStartupComplete})

	select {
	case msg := <-got:
		if msg.Kind != KindStartupComplete {
			t.Errorf("Pop() = %s", msg.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never returned")
	}
}

func TestMessageQueue_ContextCancel(t *testing.T) {
	q := newMessageQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Pop() error = %v, want context.Canceled", err)
	}
}

func TestMessageQueue_DrainsBeforeDone(t *testing.T) {
	q := newMessageQueue()
	done := make(chan struct{})

	_ = q.Push(Message{Kind: KindShutdownComplete})
	close(done)

	msg, err := q.Pop(context.Background(), done)
	if err != nil {
		t.Fatalf("Pop() error = %v, want queued message first", err)
	}
	if msg.Kind != KindShutdownComplete {
		t.Errorf("Pop() = %s", msg.Kind)
	}

	_, err = q.Pop(context.Background(), done)
	if !errors.Is(err, errTaskDone) {
		t.Errorf("Pop() error = %v, want errTaskDone", err)
	}
}

func TestMessageQueue_Close(t *testing.T) {
	q := newMessageQueue()
	_ = q.Push(Message{Kind: KindStartup})
	q.Close()

	if err := q.Push(Message{Kind: KindShutdown}); !errors.Is(err, lserrors.ErrSessionClosed) {
		t.Errorf("Push() after Close error = %v, want ErrSessionClosed", err)
	}

	msg, err := q.Pop(context.Background(), nil)
	if err != nil || msg.Kind != KindStartup {
		t.Errorf("Pop() = %v, %v; want queued startup", msg, err)
	}

	if _, err := q.Pop(context.Background(), nil); !errors.Is(err, lserrors.ErrSessionClosed) {
		t.Errorf("Pop() on drained closed queue error = %v, want ErrSessionClosed", err)
	}
}

func TestMessageQueue_CloseWakesPop(t *testing.T) {
	q := newMessageQueue()
	errc := make(chan error, 1)

	go func() {
		_, err := q.Pop(context.Background(), nil)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, lserrors.ErrSessionClosed) {
			t.Errorf("Pop() error = %v, want ErrSessionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the blocked Pop")
	}
}
