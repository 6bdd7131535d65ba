// Package protocol defines the contracts implemented by action handlers.
package protocol

import (
	"context"
	"log/slog"
)

// Action is one executable workflow step. Execute receives the execution
// context and returns a patch that the caller merges back into it. Handlers
// own their business logic; routing, retries and timeouts live with the
// caller.
type Action interface {
	Execute(ctx context.Context, executionCtx map[string]any, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory builds actions of one type from a configuration map.
type ActionFactory interface {
	ID() string
	Create(config map[string]any) (Action, error)
	// Schema returns the JSON schema the configuration must satisfy.
	Schema() map[string]any
}
