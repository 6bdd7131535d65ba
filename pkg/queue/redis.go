package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultListKey = "taskora:executions"

// RedisQueue is the production queue: a Redis list shared by all workers.
// BLPop gives each item to exactly one consumer.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRedisQueue connects using a redis:// URL.
func NewRedisQueue(ctx context.Context, queueURL string, logger *slog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(queueURL)
	if err != nil {
		return nil, fmt.Errorf("invalid queue url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr)

	return &RedisQueue{
		client: client,
		key:    defaultListKey,
		logger: logger.With("module", "redis_queue"),
		stopCh: make(chan struct{}),
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, item Item) error {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return q.client.RPush(ctx, q.key, payload).Err()
}

func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	q.wg.Add(1)
	defer q.wg.Done()

	q.logger.InfoContext(ctx, "Starting queue consumer", "key", q.key)

	for {
		select {
		case <-q.stopCh:
			q.logger.InfoContext(ctx, "Queue consumer stopped")

			return nil
		case <-ctx.Done():
			q.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return ctx.Err()
		default:
			if err := q.processMessage(ctx, handler); err != nil {
				q.logger.ErrorContext(ctx, "Error processing queue item", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (q *RedisQueue) processMessage(ctx context.Context, handler Handler) error {
	result, err := q.client.BLPop(ctx, 1*time.Second, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop queue item: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var item Item
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return fmt.Errorf("failed to decode queue item: %w", err)
	}

	if err := handler(ctx, item); err != nil {
		q.logger.ErrorContext(ctx, "Handler failed for queue item",
			"execution_id", item.ExecutionID,
			"error", err)
	}

	return nil
}

func (q *RedisQueue) Close(ctx context.Context) error {
	close(q.stopCh)
	q.wg.Wait()

	if err := q.client.Close(); err != nil {
		q.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
	}

	return nil
}
