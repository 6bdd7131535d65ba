package rules

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/automation/pkg/dispatcher"
	"github.com/taskora/automation/pkg/events"
	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence/file"
	"github.com/taskora/automation/pkg/protocol"
	"github.com/taskora/automation/pkg/registry"
)

type stubAction struct {
	fn func(executionCtx map[string]any) (map[string]any, error)
}

func (a *stubAction) Execute(_ context.Context, executionCtx map[string]any, _ *slog.Logger) (map[string]any, error) {
	return a.fn(executionCtx)
}

type stubFactory struct {
	id string
	fn func(executionCtx map[string]any) (map[string]any, error)
}

func (f *stubFactory) ID() string { return f.id }

func (f *stubFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &stubAction{fn: f.fn}, nil
}

func (f *stubFactory) Schema() map[string]any { return nil }

func newTestMatcher(t *testing.T, factories ...protocol.ActionFactory) (*Matcher, *file.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	for _, f := range factories {
		reg.RegisterAction(f)
	}

	return NewMatcher(store, dispatcher.NewDispatcher(reg, logger), nil, logger), store
}

func domainEvent(triggerType string, payload map[string]any) *events.DomainEvent {
	return &events.DomainEvent{
		BaseEvent:   events.NewBaseEvent(events.DomainEventType, "proj-1"),
		TriggerType: triggerType,
		Payload:     payload,
	}
}

func saveRule(t *testing.T, store *file.Persistence, rule *models.AutomationRule) {
	t.Helper()
	require.NoError(t, store.Rules().Save(context.Background(), rule))
}

func testRule(conditions *models.ConditionExpression, actions ...models.RuleAction) *models.AutomationRule {
	return &models.AutomationRule{
		ID:          "rule-1",
		ProjectID:   "proj-1",
		Name:        "Notify on urgent tasks",
		TriggerType: "task.created",
		Conditions:  conditions,
		Actions:     actions,
		Status:      models.RuleStatusActive,
	}
}

func TestHandleEvent_MatchingRuleRuns(t *testing.T) {
	var ran bool

	matcher, store := newTestMatcher(t, &stubFactory{
		id: "mark",
		fn: func(_ map[string]any) (map[string]any, error) {
			ran = true

			return map[string]any{"marked": true}, nil
		},
	})

	rule := testRule(
		&models.ConditionExpression{Op: models.OpEqual, Left: "priority", Right: "urgent"},
		models.RuleAction{ID: "a1", ActionType: "mark"},
	)
	saveRule(t, store, rule)

	ctx := context.Background()
	require.NoError(t, matcher.HandleEvent(ctx, domainEvent("task.created", map[string]any{"priority": "urgent"})))

	assert.True(t, ran)

	stored, err := store.Rules().GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ExecutionCount)
	assert.Equal(t, int64(1), stored.SuccessCount)
	assert.Empty(t, stored.LastError)
	assert.NotNil(t, stored.LastRunAt)
}

func TestHandleEvent_NonMatchLeavesNoTrace(t *testing.T) {
	matcher, store := newTestMatcher(t, &stubFactory{
		id: "mark",
		fn: func(_ map[string]any) (map[string]any, error) {
			t.Error("action must not run for a non-matching event")

			return nil, nil
		},
	})

	rule := testRule(
		&models.ConditionExpression{Op: models.OpEqual, Left: "priority", Right: "urgent"},
		models.RuleAction{ID: "a1", ActionType: "mark"},
	)
	saveRule(t, store, rule)

	ctx := context.Background()
	require.NoError(t, matcher.HandleEvent(ctx, domainEvent("task.created", map[string]any{"priority": "low"})))

	stored, err := store.Rules().GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ExecutionCount)
	assert.Zero(t, stored.SuccessCount)
	assert.Nil(t, stored.LastRunAt)

	executions, err := store.Executions().ListByWorkflow(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestHandleEvent_WrongTriggerTypeIgnored(t *testing.T) {
	matcher, store := newTestMatcher(t)

	rule := testRule(nil, models.RuleAction{ID: "a1", ActionType: "mark"})
	saveRule(t, store, rule)

	ctx := context.Background()
	require.NoError(t, matcher.HandleEvent(ctx, domainEvent("task.deleted", map[string]any{})))

	stored, err := store.Rules().GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ExecutionCount)
}

func TestHandleEvent_PausedRuleIgnored(t *testing.T) {
	matcher, store := newTestMatcher(t)

	rule := testRule(nil, models.RuleAction{ID: "a1", ActionType: "mark"})
	rule.Status = models.RuleStatusPaused
	saveRule(t, store, rule)

	ctx := context.Background()
	require.NoError(t, matcher.HandleEvent(ctx, domainEvent("task.created", map[string]any{})))

	stored, err := store.Rules().GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ExecutionCount)
}

func TestInvoke_ActionsRunInOrderAndPatchContext(t *testing.T) {
	var order []string

	matcher, store := newTestMatcher(t,
		&stubFactory{id: "first", fn: func(_ map[string]any) (map[string]any, error) {
			order = append(order, "first")

			return map[string]any{"step": "first"}, nil
		}},
		&stubFactory{id: "second", fn: func(executionCtx map[string]any) (map[string]any, error) {
			order = append(order, "second")
			assert.Equal(t, "first", executionCtx["step"]) // sees the earlier patch

			return map[string]any{"step": "second"}, nil
		}},
	)

	rule := testRule(nil,
		models.RuleAction{ID: "a1", ActionType: "first"},
		models.RuleAction{ID: "a2", ActionType: "second"},
	)
	saveRule(t, store, rule)

	execution, err := matcher.Invoke(context.Background(), rule, domainEvent("task.created", map[string]any{"seed": 1}))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "second", execution.Context["step"])
	assert.Len(t, execution.Log, 2)
}

func TestInvoke_FailureStopsRemainingActions(t *testing.T) {
	matcher, store := newTestMatcher(t,
		&stubFactory{id: "broken", fn: func(_ map[string]any) (map[string]any, error) {
			return nil, errors.New("webhook unreachable")
		}},
		&stubFactory{id: "after", fn: func(_ map[string]any) (map[string]any, error) {
			t.Error("actions after a failure must not run")

			return nil, nil
		}},
	)

	rule := testRule(nil,
		models.RuleAction{ID: "a1", ActionType: "broken"},
		models.RuleAction{ID: "a2", ActionType: "after"},
	)
	saveRule(t, store, rule)

	ctx := context.Background()
	execution, err := matcher.Invoke(ctx, rule, domainEvent("task.created", map[string]any{}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "webhook unreachable")
	assert.Len(t, execution.Log, 1)

	stored, err := store.Rules().GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ExecutionCount)
	assert.Zero(t, stored.SuccessCount)
	assert.Contains(t, stored.LastError, "webhook unreachable")
}

func TestInvoke_SuccessClearsLastError(t *testing.T) {
	matcher, store := newTestMatcher(t, &stubFactory{
		id: "ok",
		fn: func(_ map[string]any) (map[string]any, error) {
			return nil, nil
		},
	})

	rule := testRule(nil, models.RuleAction{ID: "a1", ActionType: "ok"})
	rule.LastError = "stale failure"
	saveRule(t, store, rule)

	ctx := context.Background()
	_, err := matcher.Invoke(ctx, rule, domainEvent("task.created", map[string]any{}))
	require.NoError(t, err)

	stored, err := store.Rules().GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.LastError)
	assert.Equal(t, int64(1), stored.SuccessCount)
}

func TestInvoke_DoesNotMutateEventPayload(t *testing.T) {
	matcher, store := newTestMatcher(t, &stubFactory{
		id: "patch",
		fn: func(_ map[string]any) (map[string]any, error) {
			return map[string]any{"added": true}, nil
		},
	})

	rule := testRule(nil, models.RuleAction{ID: "a1", ActionType: "patch"})
	saveRule(t, store, rule)

	payload := map[string]any{"priority": "urgent"}
	event := domainEvent("task.created", payload)

	_, err := matcher.Invoke(context.Background(), rule, event)
	require.NoError(t, err)

	assert.NotContains(t, payload, "added")
}
