package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/automation/pkg/dispatcher"
	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence/file"
	"github.com/taskora/automation/pkg/queue"
	"github.com/taskora/automation/pkg/registry"
	"github.com/taskora/automation/pkg/rules"
)

func newTestExecutionService(t *testing.T) (*ExecutionService, *DefinitionService, *file.Persistence, *queue.MemoryQueue) {
	t.Helper()

	logger := testLogger()
	store := file.NewPersistence(t.TempDir())
	reg := registry.NewDefaultRegistry(logger)
	q := queue.NewMemoryQueue(16)

	t.Cleanup(func() {
		_ = q.Close(context.Background())
	})

	definitions := NewDefinitionService(store, reg, nil, logger)
	matcher := rules.NewMatcher(store, dispatcher.NewDispatcher(reg, logger), nil, logger)
	executions := NewExecutionService(store, definitions, matcher, q, nil, logger)

	return executions, definitions, store, q
}

func publishTestWorkflow(t *testing.T, definitions *DefinitionService) *models.WorkflowDefinition {
	t.Helper()

	ctx := context.Background()

	workflow := draftWorkflow()
	workflow.Variables = map[string]any{"team": "core", "priority": "low"}

	created, err := definitions.Create(ctx, workflow)
	require.NoError(t, err)

	published, err := definitions.Publish(ctx, created.ID)
	require.NoError(t, err)

	return published
}

func TestTriggerWorkflow_CreatesPendingExecutionAndEnqueues(t *testing.T) {
	executions, definitions, store, q := newTestExecutionService(t)
	ctx := context.Background()

	published := publishTestWorkflow(t, definitions)

	execution, err := executions.TriggerWorkflow(ctx, published.ID, "task.created", map[string]any{
		"task":     map[string]any{"id": "t-1"},
		"priority": "high",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	assert.Equal(t, published.ID, execution.WorkflowID)
	assert.Equal(t, "task.created", execution.TriggerEvent)

	// Workflow variables seed the context, the payload wins conflicts.
	assert.Equal(t, "core", execution.Context["team"])
	assert.Equal(t, "high", execution.Context["priority"])

	stored, err := store.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status)

	// The queue received exactly this execution.
	consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var delivered []string

	_ = q.Consume(consumeCtx, func(_ context.Context, item queue.Item) error {
		delivered = append(delivered, item.ExecutionID)
		cancel()

		return nil
	})

	assert.Equal(t, []string{execution.ID}, delivered)
}

func TestTriggerWorkflow_RefusesUnpublishedDefinitions(t *testing.T) {
	executions, definitions, _, _ := newTestExecutionService(t)
	ctx := context.Background()

	draft, err := definitions.Create(ctx, draftWorkflow())
	require.NoError(t, err)

	_, err = executions.TriggerWorkflow(ctx, draft.ID, "task.created", nil)
	assert.ErrorIs(t, err, ErrNotPublished)

	published, err := definitions.Publish(ctx, draft.ID)
	require.NoError(t, err)

	archived, err := definitions.Archive(ctx, published.ID)
	require.NoError(t, err)

	_, err = executions.TriggerWorkflow(ctx, archived.ID, "task.created", nil)
	assert.ErrorIs(t, err, ErrNotPublished)
}

func TestTriggerRule_BypassesConditions(t *testing.T) {
	executions, _, store, _ := newTestExecutionService(t)
	ctx := context.Background()

	rule := &models.AutomationRule{
		ID:          "rule-1",
		ProjectID:   "proj-1",
		Name:        "Notify on urgent",
		TriggerType: "task.created",
		Conditions: &models.ConditionExpression{
			Op: models.OpEqual, Left: "priority", Right: "urgent",
		},
		Actions: []models.RuleAction{
			{ID: "a1", ActionType: "notify", Parameters: map[string]any{"message": "manual run"}},
		},
		Status: models.RuleStatusActive,
	}
	require.NoError(t, store.Rules().Save(ctx, rule))

	// The payload does not satisfy the rule's conditions; a manual trigger
	// runs anyway.
	execution, err := executions.TriggerRule(ctx, rule.ID, map[string]any{"priority": "low"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, rule.ID, execution.RuleID)
}

func TestTriggerRule_RefusesPausedRules(t *testing.T) {
	executions, _, store, _ := newTestExecutionService(t)
	ctx := context.Background()

	rule := &models.AutomationRule{
		ID:          "rule-1",
		ProjectID:   "proj-1",
		Name:        "Paused rule",
		TriggerType: "task.created",
		Actions:     []models.RuleAction{{ID: "a1", ActionType: "notify"}},
		Status:      models.RuleStatusPaused,
	}
	require.NoError(t, store.Rules().Save(ctx, rule))

	_, err := executions.TriggerRule(ctx, rule.ID, nil)
	assert.ErrorIs(t, err, ErrRuleNotActive)
}

func waitingExecution(t *testing.T, store *file.Persistence, approvers []string) *models.WorkflowExecution {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:            "exec-appr",
		WorkflowID:    "wf-1",
		ProjectID:     "proj-1",
		Status:        models.ExecutionStatusWaitingApproval,
		CurrentNodeID: "gate",
		Approval: &models.ApprovalState{
			NodeID:      "gate",
			Approvers:   approvers,
			RequestedAt: time.Now().UTC(),
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Executions().Save(context.Background(), execution))

	return execution
}

func TestApprove_RecordsDecisionAndWakes(t *testing.T) {
	executions, _, store, _ := newTestExecutionService(t)
	ctx := context.Background()

	waitingExecution(t, store, []string{"lead-1", "lead-2"})

	decided, err := executions.Approve(ctx, "exec-appr", "lead-2")
	require.NoError(t, err)

	require.NotNil(t, decided.Approval)
	assert.Equal(t, models.DecisionApproved, decided.Approval.Decision)
	assert.Equal(t, "lead-2", decided.Approval.DecidedBy)
	assert.NotNil(t, decided.Approval.DecidedAt)
	assert.Nil(t, decided.NextWakeAt)

	// A second decision on the same approval is refused.
	_, err = executions.Reject(ctx, "exec-appr", "lead-1")
	assert.ErrorIs(t, err, ErrApprovalNotPending)
}

func TestApprove_RefusesNonApprovers(t *testing.T) {
	executions, _, store, _ := newTestExecutionService(t)

	waitingExecution(t, store, []string{"lead-1"})

	_, err := executions.Approve(context.Background(), "exec-appr", "intruder")
	assert.ErrorIs(t, err, ErrNotAnApprover)
}

func TestReject_RecordsRejection(t *testing.T) {
	executions, _, store, _ := newTestExecutionService(t)

	waitingExecution(t, store, []string{"lead-1"})

	decided, err := executions.Reject(context.Background(), "exec-appr", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, decided.Approval.Decision)
}

func TestCancel_NonTerminalOnly(t *testing.T) {
	executions, _, store, _ := newTestExecutionService(t)
	ctx := context.Background()

	execution := waitingExecution(t, store, nil)

	cancelled, err := executions.Cancel(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.FinishedAt)

	// Cancelling twice is refused: the execution is already terminal.
	_, err = executions.Cancel(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrExecutionTerminal)
}

func TestRetry_FailedOnly(t *testing.T) {
	executions, _, store, _ := newTestExecutionService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:            "exec-failed",
		WorkflowID:    "wf-1",
		ProjectID:     "proj-1",
		Status:        models.ExecutionStatusFailed,
		CurrentNodeID: "act",
		RetryCount:    3,
		ErrorMessage:  "exhausted retries",
		FinishedAt:    &now,
		CreatedAt:     now,
	}
	require.NoError(t, store.Executions().Save(ctx, execution))

	retried, err := executions.Retry(ctx, execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPending, retried.Status)
	assert.Zero(t, retried.RetryCount)
	assert.Empty(t, retried.ErrorMessage)
	assert.Nil(t, retried.FinishedAt)
	// The resume point survives: the retry continues from the failed node.
	assert.Equal(t, "act", retried.CurrentNodeID)

	_, err = executions.Retry(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrExecutionNotFailed)
}
