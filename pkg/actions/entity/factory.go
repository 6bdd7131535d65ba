package entity

import (
	"github.com/taskora/automation/pkg/protocol"
)

// ActionFactory builds entity update actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "update_entity"
}

func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entity": map[string]any{
				"type":        "string",
				"description": "Context key of the entity to patch.",
				"default":     "task",
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Field values to set. String values support templating.",
				"minProperties": 1,
				"examples": []map[string]any{
					{"status": "done", "resolved_by": "{{.actor_id}}"},
				},
			},
		},
		"required":             []string{"fields"},
		"additionalProperties": false,
	}
}
