package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskora/automation/pkg/queue"
)

// NewQueue creates an execution queue based on the queue URL scheme. An empty
// or non-redis URL yields an in-process queue, which is only suitable when the
// API and worker run in the same process.
func NewQueue(ctx context.Context, queueURL string, logger *slog.Logger) (queue.Queue, error) {
	if strings.HasPrefix(queueURL, "redis://") || strings.HasPrefix(queueURL, "rediss://") {
		q, err := queue.NewRedisQueue(ctx, queueURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis queue: %w", err)
		}

		return q, nil
	}

	return queue.NewMemoryQueue(0), nil
}
