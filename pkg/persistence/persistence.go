// Package persistence provides the data storage abstraction for definitions,
// rules, executions, templates and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/taskora/automation/pkg/models"
)

// Persistence aggregates the repositories backing the automation engine.
type Persistence interface {
	Workflows() WorkflowRepository
	Rules() RuleRepository
	Executions() ExecutionRepository
	Templates() TemplateRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definition versions.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, projectID string) ([]*models.WorkflowDefinition, error)
	ListByGroup(ctx context.Context, groupID string) ([]*models.WorkflowDefinition, error)
	PublishedByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}

// RuleRepository stores flat automation rules, indexed by trigger type so the
// matcher can fetch candidates per incoming event.
type RuleRepository interface {
	Save(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, id string) (*models.AutomationRule, error)
	List(ctx context.Context, projectID string) ([]*models.AutomationRule, error)
	ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.AutomationRule, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository is the execution ledger. Claim is the only way a worker
// may take ownership: it compare-and-swaps the status from a resumable state
// to running and fails with ErrExecutionClaimed when another worker won.
// SaveRunning and ClearWake are the conditional writes for the run and wake
// paths; both fail with ErrExecutionStale when a concurrent transition won,
// so a stale in-memory copy can never overwrite the row.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	SaveRunning(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error)
	Claim(ctx context.Context, id, workerID string) (*models.WorkflowExecution, error)
	DueForWake(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error)
	ClearWake(ctx context.Context, id string, status models.ExecutionStatus, now time.Time) error
}

// TemplateRepository stores workflow templates.
type TemplateRepository interface {
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context) ([]*models.WorkflowTemplate, error)
	Delete(ctx context.Context, id string) error
}

// ScheduleRepository stores recurring trigger schedules by precomputed due time.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.TriggerSchedule) error
	GetByID(ctx context.Context, id string) (*models.TriggerSchedule, error)
	List(ctx context.Context) ([]*models.TriggerSchedule, error)
	Due(ctx context.Context, now time.Time) ([]*models.TriggerSchedule, error)
	Delete(ctx context.Context, id string) error
}
