package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/persistence/file"
	"github.com/taskora/automation/pkg/queue"
)

type fakeTrigger struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTrigger) TriggerWorkflow(_ context.Context, workflowID, _ string, _ map[string]any) (*models.WorkflowExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, workflowID)

	return &models.WorkflowExecution{ID: "exec-" + workflowID}, nil
}

func (f *fakeTrigger) triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// racingPersistence runs a callback after DueForWake returns, standing in for
// a transition landing between the fetch and the wake clear.
type racingPersistence struct {
	persistence.Persistence
	afterFetch func(ctx context.Context)
}

func (p *racingPersistence) Executions() persistence.ExecutionRepository {
	return &racingExecutions{
		ExecutionRepository: p.Persistence.Executions(),
		afterFetch:          p.afterFetch,
	}
}

type racingExecutions struct {
	persistence.ExecutionRepository
	afterFetch func(ctx context.Context)
}

func (r *racingExecutions) DueForWake(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error) {
	executions, err := r.ExecutionRepository.DueForWake(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	r.afterFetch(ctx)

	return executions, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *file.Persistence, *queue.MemoryQueue, *fakeTrigger) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	q := queue.NewMemoryQueue(16)
	trigger := &fakeTrigger{}

	return NewScheduler(store, q, trigger, logger, time.Minute), store, q, trigger
}

func TestTick_WakesDueExecutionsOnce(t *testing.T) {
	sched, store, q, _ := newTestScheduler(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	for _, e := range []*models.WorkflowExecution{
		{ID: "due", Status: models.ExecutionStatusRetrying, NextWakeAt: &past},
		{ID: "later", Status: models.ExecutionStatusWaitingApproval, NextWakeAt: &future},
	} {
		require.NoError(t, store.Executions().Save(ctx, e))
	}

	sched.tick(ctx)

	stored, err := store.Executions().GetByID(ctx, "due")
	require.NoError(t, err)
	assert.Nil(t, stored.NextWakeAt, "wake marker must be cleared before enqueueing")
	assert.Equal(t, models.ExecutionStatusRetrying, stored.Status)

	// A second tick enqueues nothing new.
	sched.tick(ctx)

	require.NoError(t, q.Close(ctx))

	var delivered []string

	require.NoError(t, q.Consume(ctx, func(_ context.Context, item queue.Item) error {
		delivered = append(delivered, item.ExecutionID)

		return nil
	}))
	assert.Equal(t, []string{"due"}, delivered)
}

func TestTick_WakeLosesToConcurrentTransition(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	q := queue.NewMemoryQueue(16)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
		ID:         "exec-gate",
		Status:     models.ExecutionStatusWaitingApproval,
		NextWakeAt: &past,
		Approval: &models.ApprovalState{
			NodeID:    "gate",
			Approvers: []string{"lead-1"},
		},
	}))

	// An approval lands and the worker completes the run while the tick
	// still holds the waiting copy.
	racing := &racingPersistence{Persistence: store, afterFetch: func(ctx context.Context) {
		stored, err := store.Executions().GetByID(ctx, "exec-gate")
		require.NoError(t, err)

		stored.Approval.Decision = models.DecisionApproved
		stored.Status = models.ExecutionStatusCompleted
		stored.NextWakeAt = nil
		require.NoError(t, store.Executions().Save(ctx, stored))
	}}

	sched := NewScheduler(racing, q, &fakeTrigger{}, logger, time.Minute)
	sched.tick(ctx)

	stored, err := store.Executions().GetByID(ctx, "exec-gate")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, models.DecisionApproved, stored.Approval.Decision)
	assert.Nil(t, stored.NextWakeAt)

	require.NoError(t, q.Close(ctx))
	require.NoError(t, q.Consume(ctx, func(_ context.Context, item queue.Item) error {
		t.Errorf("execution %s enqueued after losing the wake", item.ExecutionID)

		return nil
	}))
}

func TestTick_FiresDueSchedulesAndAdvances(t *testing.T) {
	sched, store, _, trigger := newTestScheduler(t)
	ctx := context.Background()

	schedule, err := models.NewTriggerSchedule("s-1", "wf-1", "*/5 * * * *")
	require.NoError(t, err)

	// Force the schedule due now.
	schedule.NextDueAt = time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.Schedules().Save(ctx, schedule))

	sched.tick(ctx)

	assert.Equal(t, []string{"wf-1"}, trigger.triggered())

	stored, err := store.Schedules().GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, stored.NextDueAt.After(time.Now().UTC()), "schedule must advance past now")

	// Advanced schedules do not fire again.
	sched.tick(ctx)
	assert.Equal(t, []string{"wf-1"}, trigger.triggered())
}

func TestStartStop(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t)

	sched.Start(context.Background())
	sched.Stop()
}
