// Package dispatcher invokes action handlers with timeout enforcement and
// error normalization. It owns no business logic: handlers come from the
// registry, and the caller decides what a failure means.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskora/automation/pkg/registry"
)

// ActionError is the normalized failure of one dispatch. Timeout failures are
// retryable; the caller applies its own retry policy.
type ActionError struct {
	ActionType string
	Timeout    bool
	Err        error
}

func (e *ActionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("action '%s' timed out: %v", e.ActionType, e.Err)
	}

	return fmt.Sprintf("action '%s' failed: %v", e.ActionType, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Dispatcher resolves action types through the registry and runs them.
type Dispatcher struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewDispatcher(reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		logger:   logger.With("module", "dispatcher"),
	}
}

type dispatchResult struct {
	patch map[string]any
	err   error
}

// Dispatch creates the action from its configuration and executes it against
// the execution context, returning the context patch to merge. A zero timeout
// means the caller's context alone bounds the call.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	actionType string,
	config map[string]any,
	executionCtx map[string]any,
	timeout time.Duration,
) (map[string]any, error) {
	action, err := d.registry.CreateAction(actionType, config)
	if err != nil {
		return nil, &ActionError{ActionType: actionType, Err: err}
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make(chan dispatchResult, 1)

	go func() {
		patch, err := action.Execute(ctx, executionCtx, d.logger)
		results <- dispatchResult{patch: patch, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &ActionError{ActionType: actionType, Timeout: true, Err: ctx.Err()}
	case result := <-results:
		if result.err != nil {
			timedOut := errors.Is(result.err, context.DeadlineExceeded)

			return nil, &ActionError{ActionType: actionType, Timeout: timedOut, Err: result.err}
		}

		return result.patch, nil
	}
}
