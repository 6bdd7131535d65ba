package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_DeliversInOrder(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	for _, id := range []string{"e-1", "e-2", "e-3"} {
		require.NoError(t, q.Enqueue(ctx, Item{ExecutionID: id, EnqueuedAt: time.Now().UTC()}))
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	var delivered []string

	err := q.Consume(consumeCtx, func(_ context.Context, item Item) error {
		delivered = append(delivered, item.ExecutionID)
		if len(delivered) == 3 {
			cancel()
		}

		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"e-1", "e-2", "e-3"}, delivered)
}

func TestMemoryQueue_EnqueueAfterCloseFails(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Close(ctx))

	err := q.Enqueue(ctx, Item{ExecutionID: "e-1"})
	assert.Error(t, err)

	// Close is idempotent.
	assert.NoError(t, q.Close(ctx))
}

func TestMemoryQueue_FullQueueRefuses(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Item{ExecutionID: "e-1"}))

	err := q.Enqueue(ctx, Item{ExecutionID: "e-2"})
	assert.Error(t, err)
}

func TestMemoryQueue_ConsumeDrainsThenStopsOnClose(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Item{ExecutionID: "e-1"}))
	require.NoError(t, q.Close(ctx))

	var delivered []string

	err := q.Consume(ctx, func(_ context.Context, item Item) error {
		delivered = append(delivered, item.ExecutionID)

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"e-1"}, delivered)
}
