package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskora/automation/pkg/eventbus"
	"github.com/taskora/automation/pkg/events"
	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/queue"
	"github.com/taskora/automation/pkg/rules"
)

/// ExecutionService controls executions from the outside: triggering,
// approval decisions, cancellation and manual retry. The engine owns the
// inside of a run; this service only moves ledger rows and queue items.
type ExecutionService struct {
	persistence persistence.Persistence
	definitions *DefinitionService
	matcher     *rules.Matcher
	queue       queue.Queue
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewExecutionService(
	p persistence.Persistence,
	definitions *DefinitionService,
	matcher *rules.Matcher,
	q queue.Queue,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *ExecutionService {
	return &ExecutionService{
		persistence: p,
		definitions: definitions,
		matcher:     matcher,
		queue:       q,
		publisher:   publisher,
		logger:      logger.With("module", "execution_service"),
	}
}

// TriggerWorkflow creates a pending execution of a published definition and
// enqueues it for the worker pool. The definition comes through the cached
// published read; workflow variables seed the execution context and the
// trigger payload is layered on top.
func (s *ExecutionService) TriggerWorkflow(ctx context.Context, workflowID, triggerEvent string, payload map[string]any) (*models.WorkflowExecution, error) {
	workflow, err := s.definitions.PublishedByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	executionCtx := make(map[string]any, len(workflow.Variables)+len(payload))
	for key, value := range workflow.Variables {
		executionCtx[key] = value
	}

	for key, value := range payload {
		executionCtx[key] = value
	}

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:           uuid.New().String(),
		WorkflowID:   workflow.ID,
		ProjectID:    workflow.ProjectID,
		TriggerEvent: triggerEvent,
		Context:      executionCtx,
		Status:       models.ExecutionStatusPending,
		CreatedAt:    now,
	}

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, &ServiceError{Op: "TriggerWorkflow", Err: err}
	}

	if err := s.queue.Enqueue(ctx, queue.Item{ExecutionID: execution.ID, EnqueuedAt: now}); err != nil {
		return nil, &ServiceError{Op: "TriggerWorkflow", Err: err}
	}

	s.logger.InfoContext(ctx, "Workflow triggered",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"trigger_event", triggerEvent)

	return execution, nil
}

// TriggerRule invokes one rule directly, bypassing the matcher's condition
// check: a manual trigger is an explicit request, not an event to filter.
func (s *ExecutionService) TriggerRule(ctx context.Context, ruleID string, payload map[string]any) (*models.WorkflowExecution, error) {
	rule, err := s.persistence.Rules().GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if rule.Status != models.RuleStatusActive {
		return nil, fmt.Errorf("rule '%s': %w", ruleID, ErrRuleNotActive)
	}

	event := &events.DomainEvent{
		BaseEvent:   events.NewBaseEvent(events.DomainEventType, rule.ProjectID),
		TriggerType: rule.TriggerType,
		Payload:     payload,
	}

	execution, err := s.matcher.Invoke(ctx, rule, event)
	if err != nil {
		return nil, &ServiceError{Op: "TriggerRule", Err: err}
	}

	return execution, nil
}

func (s *ExecutionService) Get(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return s.persistence.Executions().GetByID(ctx, id)
}

func (s *ExecutionService) ListByWorkflow(ctx context.Context, workflowID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	return s.persistence.Executions().ListByWorkflow(ctx, workflowID, status)
}

// Approve records an approval decision and wakes the execution.
func (s *ExecutionService) Approve(ctx context.Context, executionID, actorID string) (*models.WorkflowExecution, error) {
	return s.decide(ctx, executionID, actorID, models.DecisionApproved)
}

// Reject records a rejection and wakes the execution.
func (s *ExecutionService) Reject(ctx context.Context, executionID, actorID string) (*models.WorkflowExecution, error) {
	return s.decide(ctx, executionID, actorID, models.DecisionRejected)
}

func (s *ExecutionService) decide(ctx context.Context, executionID, actorID string, decision models.ApprovalDecision) (*models.WorkflowExecution, error) {
	execution, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusWaitingApproval || execution.Approval == nil || execution.Approval.Decision != "" {
		return nil, fmt.Errorf("execution '%s': %w", executionID, ErrApprovalNotPending)
	}

	if !execution.Approval.PendingFor(actorID) {
		return nil, fmt.Errorf("actor '%s': %w", actorID, ErrNotAnApprover)
	}

	now := time.Now().UTC()
	execution.Approval.Decision = decision
	execution.Approval.DecidedBy = actorID
	execution.Approval.DecidedAt = &now
	execution.NextWakeAt = nil

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, &ServiceError{Op: "decide", Err: err}
	}

	if err := s.queue.Enqueue(ctx, queue.Item{ExecutionID: execution.ID, EnqueuedAt: now}); err != nil {
		return nil, &ServiceError{Op: "decide", Err: err}
	}

	s.logger.InfoContext(ctx, "Approval decision recorded",
		"execution_id", execution.ID,
		"decision", decision,
		"actor_id", actorID)

	return execution, nil
}

// Cancel marks an execution cancelled. A running worker notices before its
// next transition; a suspended execution simply never wakes.
func (s *ExecutionService) Cancel(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	execution, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.Terminal() {
		return nil, fmt.Errorf("execution '%s': %w", executionID, ErrExecutionTerminal)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.NextWakeAt = nil
	execution.FinishedAt = &now

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, &ServiceError{Op: "Cancel", Err: err}
	}

	s.publishEvent(ctx, execution.ID, events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.ProjectID),
		ExecutionID: execution.ID,
	})

	return execution, nil
}

// Retry re-runs a failed execution from its recorded node with a fresh retry
// budget.
func (s *ExecutionService) Retry(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	execution, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusFailed {
		return nil, fmt.Errorf("execution '%s': %w", executionID, ErrExecutionNotFailed)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusPending
	execution.RetryCount = 0
	execution.ErrorMessage = ""
	execution.WorkerID = ""
	execution.NextWakeAt = nil
	execution.FinishedAt = nil

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, &ServiceError{Op: "Retry", Err: err}
	}

	if err := s.queue.Enqueue(ctx, queue.Item{ExecutionID: execution.ID, EnqueuedAt: now}); err != nil {
		return nil, &ServiceError{Op: "Retry", Err: err}
	}

	s.logger.InfoContext(ctx, "Execution queued for retry", "execution_id", execution.ID)

	return execution, nil
}

func (s *ExecutionService) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
