package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

func newStore(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestWorkflowRepository_RoundTripAndNotFound(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	workflow := &models.WorkflowDefinition{
		ID:              "wf-1",
		WorkflowGroupID: "grp-1",
		ProjectID:       "proj-1",
		Name:            "Test Workflow",
		Status:          models.WorkflowStatusDraft,
		Version:         1,
	}
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	loaded, err := store.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)

	_, err = store.Workflows().GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_PublishedByGroup(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, w := range []*models.WorkflowDefinition{
		{ID: "wf-1", WorkflowGroupID: "grp-1", Name: "v1", Status: models.WorkflowStatusArchived, Version: 1},
		{ID: "wf-2", WorkflowGroupID: "grp-1", Name: "v2", Status: models.WorkflowStatusPublished, Version: 2},
		{ID: "wf-3", WorkflowGroupID: "grp-1", Name: "v3", Status: models.WorkflowStatusDraft, Version: 3},
	} {
		require.NoError(t, store.Workflows().Save(ctx, w))
	}

	published, err := store.Workflows().PublishedByGroup(ctx, "grp-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-2", published.ID)

	_, err = store.Workflows().PublishedByGroup(ctx, "grp-other")
	assert.True(t, persistence.IsPublishedWorkflowNotFound(err))
}

func TestExecutionRepository_ClaimCompareAndSwap(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	execution := &models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Executions().Save(ctx, execution))

	claimed, err := store.Executions().Claim(ctx, "exec-1", "worker-a")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, claimed.Status)
	assert.Equal(t, "worker-a", claimed.WorkerID)
	assert.NotNil(t, claimed.StartedAt)
	assert.Nil(t, claimed.NextWakeAt)

	// The losing worker gets a claim conflict, not the execution.
	_, err = store.Executions().Claim(ctx, "exec-1", "worker-b")
	assert.True(t, persistence.IsExecutionClaimed(err))

	_, err = store.Executions().Claim(ctx, "missing", "worker-a")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_ClaimFromSuspendedStates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, tc := range []struct {
		id        string
		status    models.ExecutionStatus
		claimable bool
	}{
		{"e-pending", models.ExecutionStatusPending, true},
		{"e-waiting", models.ExecutionStatusWaitingApproval, true},
		{"e-retrying", models.ExecutionStatusRetrying, true},
		{"e-running", models.ExecutionStatusRunning, false},
		{"e-completed", models.ExecutionStatusCompleted, false},
		{"e-failed", models.ExecutionStatusFailed, false},
		{"e-cancelled", models.ExecutionStatusCancelled, false},
	} {
		require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
			ID:     tc.id,
			Status: tc.status,
		}))

		_, err := store.Executions().Claim(ctx, tc.id, "worker-a")
		if tc.claimable {
			assert.NoError(t, err, tc.id)
		} else {
			assert.True(t, persistence.IsExecutionClaimed(err), tc.id)
		}
	}
}

func TestExecutionRepository_DueForWake(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	earlier := now.Add(-2 * time.Minute)
	future := now.Add(time.Hour)

	for _, e := range []*models.WorkflowExecution{
		{ID: "due-late", Status: models.ExecutionStatusRetrying, NextWakeAt: &past},
		{ID: "due-early", Status: models.ExecutionStatusWaitingApproval, NextWakeAt: &earlier},
		{ID: "not-yet", Status: models.ExecutionStatusRetrying, NextWakeAt: &future},
		{ID: "no-timer", Status: models.ExecutionStatusWaitingApproval},
		{ID: "terminal", Status: models.ExecutionStatusFailed, NextWakeAt: &past},
	} {
		require.NoError(t, store.Executions().Save(ctx, e))
	}

	due, err := store.Executions().DueForWake(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	// Earliest wake first.
	assert.Equal(t, "due-early", due[0].ID)
	assert.Equal(t, "due-late", due[1].ID)

	limited, err := store.Executions().DueForWake(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "due-early", limited[0].ID)
}

func TestExecutionRepository_SaveRunningOnlyWhileRunning(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
		ID:     "exec-1",
		Status: models.ExecutionStatusRunning,
	}))

	update := &models.WorkflowExecution{
		ID:     "exec-1",
		Status: models.ExecutionStatusCompleted,
		Steps:  3,
	}
	require.NoError(t, store.Executions().SaveRunning(ctx, update))

	stored, err := store.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.Steps)

	// The row is no longer running; a worker's copy cannot overwrite it.
	update.Status = models.ExecutionStatusFailed
	err = store.Executions().SaveRunning(ctx, update)
	assert.True(t, persistence.IsExecutionStale(err))

	stored, err = store.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	err = store.Executions().SaveRunning(ctx, &models.WorkflowExecution{ID: "missing"})
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_ClearWakeConditional(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
		ID:         "exec-1",
		Status:     models.ExecutionStatusRetrying,
		NextWakeAt: &past,
	}))

	// Status mismatch: someone claimed or completed it meanwhile.
	err := store.Executions().ClearWake(ctx, "exec-1", models.ExecutionStatusWaitingApproval, now)
	assert.True(t, persistence.IsExecutionStale(err))

	require.NoError(t, store.Executions().ClearWake(ctx, "exec-1", models.ExecutionStatusRetrying, now))

	stored, err := store.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Nil(t, stored.NextWakeAt)

	// Already cleared: a second clear loses.
	err = store.Executions().ClearWake(ctx, "exec-1", models.ExecutionStatusRetrying, now)
	assert.True(t, persistence.IsExecutionStale(err))
}

func TestRuleRepository_ListActiveByTrigger(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, r := range []*models.AutomationRule{
		{ID: "r-1", TriggerType: "task.created", Status: models.RuleStatusActive},
		{ID: "r-2", TriggerType: "task.created", Status: models.RuleStatusPaused},
		{ID: "r-3", TriggerType: "task.moved", Status: models.RuleStatusActive},
	} {
		require.NoError(t, store.Rules().Save(ctx, r))
	}

	active, err := store.Rules().ListActiveByTrigger(ctx, "task.created")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "r-1", active[0].ID)
}

func TestScheduleRepository_Due(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	for _, s := range []*models.TriggerSchedule{
		{ID: "s-due", WorkflowID: "wf-1", CronExpression: "* * * * *", Active: true, NextDueAt: past},
		{ID: "s-future", WorkflowID: "wf-1", CronExpression: "* * * * *", Active: true, NextDueAt: future},
		{ID: "s-inactive", WorkflowID: "wf-1", CronExpression: "* * * * *", Active: false, NextDueAt: past},
	} {
		require.NoError(t, store.Schedules().Save(ctx, s))
	}

	due, err := store.Schedules().Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "s-due", due[0].ID)
}
