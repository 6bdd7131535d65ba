// Package rules implements the flat automation rule matcher: trigger type →
// conditions → ordered actions, with no graph and no retry.
package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskora/automation/pkg/dispatcher"
	"github.com/taskora/automation/pkg/eventbus"
	"github.com/taskora/automation/pkg/events"
	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

type Matcher struct {
	persistence persistence.Persistence
	dispatcher  *dispatcher.Dispatcher
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewMatcher(
	p persistence.Persistence,
	d *dispatcher.Dispatcher,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Matcher {
	return &Matcher{
		persistence: p,
		dispatcher:  d,
		publisher:   publisher,
		logger:      logger.With("module", "rule_matcher"),
	}
}

// HandleEvent matches one domain event against the active rules for its
// trigger type and invokes every matching rule. A rule whose conditions do
// not match leaves no trace: no ledger record, no counter change.
func (m *Matcher) HandleEvent(ctx context.Context, event *events.DomainEvent) error {
	rules, err := m.persistence.Rules().ListActiveByTrigger(ctx, event.TriggerType)
	if err != nil {
		return err
	}

	logger := m.logger.With("trigger_type", event.TriggerType, "candidates", len(rules))
	logger.DebugContext(ctx, "Matching domain event")

	for _, rule := range rules {
		if !rule.Conditions.Evaluate(event.Payload) {
			continue
		}

		if _, err := m.Invoke(ctx, rule, event); err != nil {
			logger.ErrorContext(ctx, "Failed to invoke rule", "rule_id", rule.ID, "error", err)
		}
	}

	return nil
}

// Invoke runs a matched rule's actions in declared order. The first failing
// action stops the invocation; the failure lands in the ledger and in the
// rule's LastError, and nothing is retried. Counters always move: every
// invocation bumps ExecutionCount, only a clean pass bumps SuccessCount.
func (m *Matcher) Invoke(ctx context.Context, rule *models.AutomationRule, event *events.DomainEvent) (*models.WorkflowExecution, error) {
	now := time.Now().UTC()

	execution := &models.WorkflowExecution{
		ID:           uuid.New().String(),
		RuleID:       rule.ID,
		ProjectID:    rule.ProjectID,
		TriggerEvent: event.TriggerType,
		Context:      clone(event.Payload),
		Status:       models.ExecutionStatusRunning,
		MaxRetries:   0,
		CreatedAt:    now,
		StartedAt:    &now,
	}

	logger := m.logger.With("rule_id", rule.ID, "execution_id", execution.ID)
	logger.InfoContext(ctx, "Invoking rule", "actions", len(rule.Actions))

	var failure error

	for _, action := range rule.Actions {
		entry := models.ExecutionLogEntry{
			NodeID:    action.ID,
			NodeType:  models.NodeTypeAction,
			StartedAt: time.Now().UTC(),
			Input:     action.Parameters,
		}

		patch, err := m.dispatcher.Dispatch(ctx, action.ActionType, action.Parameters, execution.Context, 0)
		entry.FinishedAt = time.Now().UTC()

		if err != nil {
			entry.Error = err.Error()
			execution.AppendLog(entry)
			failure = err

			break
		}

		entry.Output = patch
		execution.AppendLog(entry)

		if execution.Context == nil {
			execution.Context = make(map[string]any)
		}

		for key, value := range patch {
			execution.Context[key] = value
		}
	}

	finished := time.Now().UTC()
	execution.FinishedAt = &finished

	rule.ExecutionCount++
	rule.LastRunAt = &finished

	if failure != nil {
		execution.Status = models.ExecutionStatusFailed
		execution.ErrorMessage = failure.Error()
		rule.LastError = failure.Error()
	} else {
		execution.Status = models.ExecutionStatusCompleted
		execution.Result = execution.Context
		rule.SuccessCount++
		rule.LastError = ""
	}

	if err := m.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, err
	}

	if err := m.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, err
	}

	m.publishOutcome(ctx, execution, failure)

	return execution, nil
}

func (m *Matcher) publishOutcome(ctx context.Context, execution *models.WorkflowExecution, failure error) {
	if m.publisher == nil {
		return
	}

	var event eventbus.Event

	if failure != nil {
		event = events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.ProjectID),
			ExecutionID: execution.ID,
			Error:       failure.Error(),
		}
	} else {
		event = events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, execution.ProjectID),
			ExecutionID: execution.ID,
			Result:      execution.Result,
		}
	}

	if err := m.publisher.Publish(ctx, execution.ID, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event", "execution_id", execution.ID, "error", err)
	}
}

func clone(payload map[string]any) map[string]any {
	cloned := make(map[string]any, len(payload))
	for key, value := range payload {
		cloned[key] = value
	}

	return cloned
}
