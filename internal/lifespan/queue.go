package lifespan

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/Iron-Ham/lifespan/internal/errors"
)

// errTaskDone is returned by Pop when the done channel closed and nothing was
// left to drain.
var errTaskDone = errors.New("queue producer finished")

// messageQueue is an unbounded single-producer/single-consumer FIFO.
// Push never blocks, so a reply can always be delivered even when nobody is
// waiting yet.
type messageQueue struct {
	mu     sync.Mutex
	buf    *queue.Queue
	notify chan struct{}
	closed bool
}

func newMessageQueue() *messageQueue {
	return &messageQueue{
		buf:    queue.New(),
		notify: make(chan struct{}, 1),
	}
}

// Push appends msg. It fails with ErrSessionClosed once the queue is closed.
func (q *messageQueue) Push(msg Message) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.ErrSessionClosed
	}
	q.buf.Add(msg)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop removes the oldest message, blocking until one is available, ctx is
// done, or done closes. Messages already queued are returned before done is
// honoured, so a reply pushed just before the producer exited is never lost.
func (q *messageQueue) Pop(ctx context.Context, done <-chan struct{}) (Message, error) {
	for {
		if msg, ok, err := q.tryPop(); ok || err != nil {
			return msg, err
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-done:
			if msg, ok, err := q.tryPop(); ok || err != nil {
				return msg, err
			}
			return Message{}, errTaskDone
		}
	}
}

func (q *messageQueue) tryPop() (Message, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.buf.Length() > 0 {
		return q.buf.Remove().(Message), true, nil
	}
	if q.closed {
		return Message{}, false, errors.ErrSessionClosed
	}
	return Message{}, false, nil
}

// Len returns the number of queued messages.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Length()
}

// Close rejects further pushes and wakes a blocked Pop. Queued messages can
// still be drained.
func (q *messageQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *messageQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
