package assign

import (
	"github.com/taskora/automation/pkg/protocol"
)

// ActionFactory builds assign actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "assign"
}

func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"assignee_id": map[string]any{
				"type":        "string",
				"description": "User to assign. Supports templating, e.g. the reporter of the triggering task.",
				"examples": []string{
					"user-42",
					"{{.task.reporter_id}}",
				},
			},
			"reason": map[string]any{
				"type": "string",
			},
		},
		"required":             []string{"assignee_id"},
		"additionalProperties": false,
	}
}
