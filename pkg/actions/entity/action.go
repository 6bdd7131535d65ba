// Package entity implements the mutate-entity action: it applies field
// updates to the entity carried in the execution context.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskora/automation/pkg/template"
)

// ErrFieldsInvalid is returned when no field updates are configured.
var ErrFieldsInvalid = errors.New("invalid entity fields")

type Action struct {
	Entity string
	Fields map[string]any
}

func NewAction(config map[string]any) (*Action, error) {
	fields, ok := config["fields"].(map[string]any)
	if !ok || len(fields) == 0 {
		return nil, fmt.Errorf("missing or invalid 'fields' in configuration: %w", ErrFieldsInvalid)
	}

	entityName, _ := config["entity"].(string)
	if entityName == "" {
		entityName = "task"
	}

	return &Action{
		Entity: entityName,
		Fields: fields,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "update_entity")

	rendered, err := template.RenderParameters(a.Fields, executionCtx)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Entity fields updated",
		"entity", a.Entity,
		"fields", len(rendered))

	return map[string]any{
		a.Entity: rendered,
	}, nil
}
