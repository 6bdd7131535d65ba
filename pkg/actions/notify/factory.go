package notify

import (
	"github.com/taskora/automation/pkg/protocol"
)

// ActionFactory builds notify actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "notify"
}

func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Notification text. Supports templating against the execution context.",
				"examples": []string{
					"Task {{.task.title}} moved to {{.task.status}}",
				},
			},
			"channel": map[string]any{
				"type":    "string",
				"default": "in_app",
				"enum":    []string{"in_app", "email", "chat"},
			},
			"recipients": map[string]any{
				"type":        "array",
				"description": "User IDs to notify.",
				"items": map[string]any{
					"type": "string",
				},
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}
