package queue

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue is an in-process queue for development and tests.
type MemoryQueue struct {
	items chan Item

	mu     sync.Mutex
	closed bool
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 100
	}

	return &MemoryQueue{
		items: make(chan Item, buffer),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New("queue is closed")
	}

	select {
	case q.items <- item:
		return nil
	default:
		return errors.New("queue is full")
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-q.items:
			if !ok {
				return nil
			}

			// Handler errors are the handler's problem: the ledger records
			// them, the queue moves on.
			_ = handler(ctx, item)
		}
	}
}

func (q *MemoryQueue) Close(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
	}

	return nil
}
