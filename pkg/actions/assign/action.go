// Package assign implements the assign-user action.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskora/automation/pkg/template"
)

// ErrAssigneeInvalid is returned when no assignee is configured.
var ErrAssigneeInvalid = errors.New("invalid assignee")

// Action sets the assignee of the entity the execution is operating on. The
// patch is merged into the execution context under "assignment" so later
// nodes and the final result can observe it.
type Action struct {
	AssigneeID string
	Reason     string
}

func NewAction(config map[string]any) (*Action, error) {
	assigneeID, ok := config["assignee_id"].(string)
	if !ok || assigneeID == "" {
		return nil, fmt.Errorf("missing or invalid 'assignee_id' in configuration: %w", ErrAssigneeInvalid)
	}

	reason, _ := config["reason"].(string)

	return &Action{
		AssigneeID: assigneeID,
		Reason:     reason,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "assign")

	rendered, err := template.Render(a.AssigneeID, executionCtx)
	if err != nil {
		return nil, err
	}

	assigneeID := fmt.Sprintf("%v", rendered)
	if assigneeID == "" {
		return nil, ErrAssigneeInvalid
	}

	logger.InfoContext(ctx, "Assignee resolved", "assignee_id", assigneeID)

	patch := map[string]any{
		"assignee_id": assigneeID,
	}

	if a.Reason != "" {
		patch["reason"] = a.Reason
	}

	return map[string]any{"assignment": patch}, nil
}
