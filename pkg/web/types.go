package web

import (
	"github.com/taskora/automation/pkg/models"
)

// CreateWorkflowRequest is the body for POST /v1/workflows.
type CreateWorkflowRequest struct {
	ProjectID   string               `json:"project_id"  validate:"required"`
	Name        string               `json:"name"        validate:"required,min=3"`
	Description string               `json:"description"`
	Owner       string               `json:"owner"`
	Nodes       []*models.Node       `json:"nodes"`
	Connections []*models.Connection `json:"connections"`
	Variables   map[string]any       `json:"variables"`
}

// UpdateWorkflowRequest is the body for PATCH /v1/workflows/:id. Only drafts
// accept updates.
type UpdateWorkflowRequest struct {
	Name        string               `json:"name"        validate:"required,min=3"`
	Description string               `json:"description"`
	Nodes       []*models.Node       `json:"nodes"`
	Connections []*models.Connection `json:"connections"`
	Variables   map[string]any       `json:"variables"`
}

// CreateRuleRequest is the body for POST /v1/rules.
type CreateRuleRequest struct {
	ProjectID     string                      `json:"project_id"   validate:"required"`
	Name          string                      `json:"name"         validate:"required,min=3"`
	TriggerType   string                      `json:"trigger_type" validate:"required"`
	TriggerConfig map[string]any              `json:"trigger_config"`
	Conditions    *models.ConditionExpression `json:"conditions"`
	Actions       []models.RuleAction         `json:"actions"      validate:"required,min=1"`
}

// TriggerRequest is the body for trigger endpoints.
type TriggerRequest struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

// DecisionRequest is the body for approve/reject endpoints.
type DecisionRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

// PublishEventRequest is the body for POST /v1/events.
type PublishEventRequest struct {
	TriggerType string         `json:"trigger_type" validate:"required"`
	ProjectID   string         `json:"project_id"`
	Payload     map[string]any `json:"payload"`
}

// CreateScheduleRequest is the body for POST /v1/schedules. The cron
// expression uses the standard 5-field format.
type CreateScheduleRequest struct {
	WorkflowID     string `json:"workflow_id"     validate:"required"`
	CronExpression string `json:"cron_expression" validate:"required"`
}

// InstantiateTemplateRequest is the body for POST /v1/templates/:id/instantiate.
type InstantiateTemplateRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Owner     string `json:"owner"`
}

// TriggeredResponse is the 202 body returned by trigger endpoints.
type TriggeredResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}
