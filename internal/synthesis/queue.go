package synthesis

import (
	"context"
	"errors"
	"sync"

	"github.com/satriahrh/voicerelay/domain"
)

// ErrQueueClosed is returned by Push once the producer side has been closed.
var ErrQueueClosed = errors.New("synthesis queue closed")

// Queue is an unbounded FIFO of text parts with a single consumer.
// Push never blocks, so the segmenter can keep up with generation while a
// slow synthesis call is in flight.
type Queue struct {
	mu     sync.Mutex
	items  []domain.TextPart
	closed bool
	ready  chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends a part to the tail of the queue
func (q *Queue) Push(part domain.TextPart) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, part)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Close marks the producer side as finished. Parts already queued can still
// be popped. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Pop removes the head of the queue, waiting until one is available.
// ok is false once the queue is closed and empty.
func (q *Queue) Pop(ctx context.Context) (part domain.TextPart, ok bool, err error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			part = q.items[0]
			q.items[0] = domain.TextPart{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return part, true, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.TextPart{}, false, nil
		}

		select {
		case <-ctx.Done():
			return domain.TextPart{}, false, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len reports the number of parts waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
