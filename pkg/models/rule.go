package models

import "time"

// RuleStatus is the lifecycle state of an automation rule.
type RuleStatus string

const (
	RuleStatusActive RuleStatus = "active"
	RuleStatusPaused RuleStatus = "paused"
)

// RuleAction is one ordered action of a flat automation rule.
type RuleAction struct {
	ID         string         `json:"id"`
	ActionType string         `json:"action_type" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AutomationRule is the flat, non-graph sibling of a workflow: a trigger type,
// a condition and an ordered action list. Rules share the condition evaluator
// and action dispatcher with the graph engine but are single-shot: a failing
// action stops the invocation and is recorded as LastError, never retried.
type AutomationRule struct {
	ID            string               `json:"id"`
	ProjectID     string               `json:"project_id"   validate:"required"`
	Name          string               `json:"name"         validate:"required,min=3"`
	TriggerType   string               `json:"trigger_type" validate:"required"`
	TriggerConfig map[string]any       `json:"trigger_config,omitempty"`
	Conditions    *ConditionExpression `json:"conditions,omitempty"`
	Actions       []RuleAction         `json:"actions"`
	Status        RuleStatus           `json:"status"`

	ExecutionCount int64      `json:"execution_count"`
	SuccessCount   int64      `json:"success_count"`
	LastError      string     `json:"last_error,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SuccessRate returns the fraction of invocations that ran every action.
func (r *AutomationRule) SuccessRate() float64 {
	if r.ExecutionCount == 0 {
		return 0
	}

	return float64(r.SuccessCount) / float64(r.ExecutionCount)
}
