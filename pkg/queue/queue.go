// Package queue carries resume work items from the API and scheduler to the
// worker pool. The queue is at-least-once: the ledger claim makes duplicate
// deliveries harmless.
package queue

import (
	"context"
	"time"
)

// Item is one unit of worker work: an execution to claim and run.
type Item struct {
	ExecutionID string    `json:"execution_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Handler processes one dequeued item. Errors are logged by the consumer;
// the item is not redelivered.
type Handler func(ctx context.Context, item Item) error

type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	// Consume blocks delivering items to the handler until Close or context
	// cancellation.
	Consume(ctx context.Context, handler Handler) error
	Close(ctx context.Context) error
}
