// Package engine drives workflow executions through their state machine:
// pending → running → {waiting_approval, retrying, completed, failed,
// cancelled}. The engine never holds a lock while suspended: it persists the
// resume point and returns, leaving an inert ledger row for the scheduler or
// an approval decision to wake.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskora/automation/pkg/dispatcher"
	"github.com/taskora/automation/pkg/eventbus"
	"github.com/taskora/automation/pkg/events"
	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

const (
	DefaultStepLimit = 1000
	DefaultRetryBase = 30 * time.Second
	DefaultRetryCap  = 1 * time.Hour
)

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	StepLimit int
	RetryBase time.Duration
	RetryCap  time.Duration
}

type Engine struct {
	persistence persistence.Persistence
	dispatcher  *dispatcher.Dispatcher
	publisher   eventbus.EventPublisher
	logger      *slog.Logger

	stepLimit int
	retryBase time.Duration
	retryCap  time.Duration
}

func NewEngine(
	p persistence.Persistence,
	d *dispatcher.Dispatcher,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if cfg.StepLimit <= 0 {
		cfg.StepLimit = DefaultStepLimit
	}

	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}

	if cfg.RetryCap <= 0 {
		cfg.RetryCap = DefaultRetryCap
	}

	return &Engine{
		persistence: p,
		dispatcher:  d,
		publisher:   publisher,
		logger:      logger.With("module", "engine"),
		stepLimit:   cfg.StepLimit,
		retryBase:   cfg.RetryBase,
		retryCap:    cfg.RetryCap,
	}
}

// Run drives a claimed execution until it suspends or terminates. The caller
// must have claimed the execution (status running, worker set). Running a
// terminal execution is a no-op. Returned errors are infrastructure failures;
// domain failures are recorded on the execution itself.
func (e *Engine) Run(ctx context.Context, execution *models.WorkflowExecution) error {
	logger := e.logger.With(
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
	)

	if execution.Status.Terminal() {
		logger.InfoContext(ctx, "Execution already terminal, nothing to do", "status", execution.Status)

		return nil
	}

	workflow, err := e.persistence.Workflows().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return e.fail(ctx, execution, "", fmt.Errorf("failed to load workflow definition: %w", err))
	}

	node, resumed, err := e.entryNode(execution, workflow)
	if err != nil {
		return e.fail(ctx, execution, "", err)
	}

	if resumed {
		e.publish(ctx, execution, events.ExecutionResumed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, execution.ProjectID),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
		})
	} else {
		e.publish(ctx, execution, events.ExecutionStarted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, execution.ProjectID),
			ExecutionID: execution.ID,
			WorkflowID:  execution.WorkflowID,
			RuleID:      execution.RuleID,
		})
	}

	for {
		cancelled, err := e.cancelledMeanwhile(ctx, execution)
		if err != nil {
			return err
		}

		if cancelled {
			logger.InfoContext(ctx, "Execution cancelled, stopping", "node_id", node.ID)

			return nil
		}

		execution.Steps++
		execution.CurrentNodeID = node.ID

		if execution.Steps > e.stepLimit {
			return e.fail(ctx, execution, node.ID,
				fmt.Errorf("%w: %d steps", ErrStepLimitExceeded, e.stepLimit))
		}

		logger.DebugContext(ctx, "Visiting node", "node_id", node.ID, "node_type", node.Type, "step", execution.Steps)

		var (
			next *models.Node
			done bool
		)

		switch node.Type {
		case models.NodeTypeStart:
			next, err = e.passThrough(execution, workflow, node)
		case models.NodeTypeEnd:
			return e.complete(ctx, execution, node)
		case models.NodeTypeAction:
			next, done, err = e.runAction(ctx, execution, workflow, node, logger)
		case models.NodeTypeDecision:
			next, err = e.routeDecision(execution, workflow, node)
		case models.NodeTypeApproval:
			next, done, err = e.runApproval(ctx, execution, workflow, node, logger)
		default:
			err = &RoutingError{NodeID: node.ID, Reason: fmt.Sprintf("unknown node type '%s'", node.Type)}
		}

		if err != nil {
			return e.fail(ctx, execution, node.ID, err)
		}

		if done {
			return nil
		}

		stale, saveErr := e.saveTransition(ctx, execution)
		if saveErr != nil {
			return saveErr
		}

		if stale {
			logger.InfoContext(ctx, "Execution transitioned externally, stopping", "node_id", node.ID)

			return nil
		}

		node = next
	}
}

// saveTransition writes in-run state conditionally: the write lands only
// while the ledger row is still running. stale=true means an external
// transition, usually a cancellation, won and this run must stop without
// publishing anything further.
func (e *Engine) saveTransition(ctx context.Context, execution *models.WorkflowExecution) (bool, error) {
	err := e.persistence.Executions().SaveRunning(ctx, execution)

	switch {
	case err == nil:
		return false, nil
	case persistence.IsExecutionStale(err):
		return true, nil
	default:
		return false, err
	}
}

// entryNode resolves where the run begins: the start node for a fresh
// execution, the recorded node after a suspension.
func (e *Engine) entryNode(execution *models.WorkflowExecution, workflow *models.WorkflowDefinition) (*models.Node, bool, error) {
	if execution.CurrentNodeID == "" {
		start := workflow.StartNode()
		if start == nil {
			return nil, false, &RoutingError{Reason: "workflow has no start node"}
		}

		return start, false, nil
	}

	node := workflow.NodeByID(execution.CurrentNodeID)
	if node == nil {
		return nil, false, &RoutingError{
			NodeID: execution.CurrentNodeID,
			Reason: "resume node no longer exists in definition",
		}
	}

	return node, true, nil
}

// cancelledMeanwhile re-reads the ledger so an external cancellation takes
// effect before the next transition rather than after the run finishes.
func (e *Engine) cancelledMeanwhile(ctx context.Context, execution *models.WorkflowExecution) (bool, error) {
	fresh, err := e.persistence.Executions().GetByID(ctx, execution.ID)
	if err != nil {
		return false, err
	}

	return fresh.Status == models.ExecutionStatusCancelled, nil
}

func (e *Engine) passThrough(execution *models.WorkflowExecution, workflow *models.WorkflowDefinition, node *models.Node) (*models.Node, error) {
	now := time.Now().UTC()
	execution.AppendLog(models.ExecutionLogEntry{
		NodeID:     node.ID,
		NodeType:   node.Type,
		StartedAt:  now,
		FinishedAt: now,
	})

	return e.follow(workflow, node)
}

// follow advances along the first outgoing connection.
func (e *Engine) follow(workflow *models.WorkflowDefinition, node *models.Node) (*models.Node, error) {
	outgoing := workflow.Outgoing(node.ID)
	if len(outgoing) == 0 {
		return nil, &RoutingError{NodeID: node.ID, Reason: "no outgoing connection"}
	}

	target := workflow.NodeByID(outgoing[0].TargetID)
	if target == nil {
		return nil, &RoutingError{NodeID: node.ID, Reason: fmt.Sprintf("connection target '%s' not found", outgoing[0].TargetID)}
	}

	return target, nil
}

func (e *Engine) runAction(
	ctx context.Context,
	execution *models.WorkflowExecution,
	workflow *models.WorkflowDefinition,
	node *models.Node,
	logger *slog.Logger,
) (*models.Node, bool, error) {
	if node.Action == nil {
		return nil, false, &RoutingError{NodeID: node.ID, Reason: "action node without action config"}
	}

	entry := models.ExecutionLogEntry{
		NodeID:    node.ID,
		NodeType:  node.Type,
		StartedAt: time.Now().UTC(),
		Input:     node.Action.Parameters,
	}

	patch, err := e.dispatcher.Dispatch(ctx, node.Action.ActionType, node.Action.Parameters, execution.Context, node.Action.Timeout)
	entry.FinishedAt = time.Now().UTC()

	if err != nil {
		entry.Error = err.Error()
		execution.AppendLog(entry)

		done, failErr := e.handleActionFailure(ctx, execution, node, err, logger)

		return nil, done, failErr
	}

	entry.Output = patch
	execution.AppendLog(entry)

	if execution.Context == nil {
		execution.Context = make(map[string]any)
	}

	for key, value := range patch {
		execution.Context[key] = value
	}

	next, err := e.follow(workflow, node)

	return next, false, err
}

// handleActionFailure applies the retry policy: increment the retry count,
// suspend with exponential backoff while budget remains, fail the execution
// otherwise. The retry budget lives on the execution; it is stamped from the
// failing node's config the first time a failure happens, so the query API
// always shows the budget the engine enforced. Returns done=true when the
// execution was suspended.
func (e *Engine) handleActionFailure(
	ctx context.Context,
	execution *models.WorkflowExecution,
	node *models.Node,
	actionErr error,
	logger *slog.Logger,
) (bool, error) {
	execution.RetryCount++

	if execution.MaxRetries == 0 {
		execution.MaxRetries = node.Action.MaxRetries
	}

	if execution.RetryCount >= execution.MaxRetries {
		return false, fmt.Errorf("action '%s' exhausted retries: %w", node.Action.ActionType, actionErr)
	}

	wakeAt := time.Now().UTC().Add(e.backoff(execution.RetryCount))

	execution.Status = models.ExecutionStatusRetrying
	execution.CurrentNodeID = node.ID
	execution.NextWakeAt = &wakeAt
	execution.WorkerID = ""

	stale, err := e.saveTransition(ctx, execution)
	if err != nil {
		return false, err
	}

	if stale {
		logger.InfoContext(ctx, "Execution transitioned externally, dropping retry", "node_id", node.ID)

		return true, nil
	}

	logger.InfoContext(ctx, "Action failed, retry scheduled",
		"node_id", node.ID,
		"retry_count", execution.RetryCount,
		"wake_at", wakeAt,
		"error", actionErr)

	e.publish(ctx, execution, events.ExecutionSuspended{
		BaseEvent:   events.NewBaseEvent(events.ExecutionSuspendedEvent, execution.ProjectID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		Reason:      "retry",
		WakeAt:      &wakeAt,
	})

	return true, nil
}

// backoff returns base·2^retryCount capped, so successive delays never shrink.
func (e *Engine) backoff(retryCount int) time.Duration {
	delay := e.retryBase

	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= e.retryCap {
			return e.retryCap
		}
	}

	return delay
}

// routeDecision follows the first connection whose condition evaluates true
// against the execution context, in declared order. Unconditioned non-default
// connections always match. The default-role connection is the fallback.
func (e *Engine) routeDecision(execution *models.WorkflowExecution, workflow *models.WorkflowDefinition, node *models.Node) (*models.Node, error) {
	now := time.Now().UTC()
	execution.AppendLog(models.ExecutionLogEntry{
		NodeID:     node.ID,
		NodeType:   node.Type,
		StartedAt:  now,
		FinishedAt: now,
	})

	var fallback *models.Connection

	for _, conn := range workflow.Outgoing(node.ID) {
		if conn.Role == models.RoleDefault {
			if fallback == nil {
				fallback = conn
			}

			continue
		}

		if conn.Condition.Evaluate(execution.Context) {
			return e.target(workflow, node, conn)
		}
	}

	if fallback == nil {
		return nil, &RoutingError{NodeID: node.ID, Reason: "no branch matched and no default connection"}
	}

	return e.target(workflow, node, fallback)
}

func (e *Engine) target(workflow *models.WorkflowDefinition, node *models.Node, conn *models.Connection) (*models.Node, error) {
	next := workflow.NodeByID(conn.TargetID)
	if next == nil {
		return nil, &RoutingError{NodeID: node.ID, Reason: fmt.Sprintf("connection target '%s' not found", conn.TargetID)}
	}

	return next, nil
}

func (e *Engine) runApproval(
	ctx context.Context,
	execution *models.WorkflowExecution,
	workflow *models.WorkflowDefinition,
	node *models.Node,
	logger *slog.Logger,
) (*models.Node, bool, error) {
	if node.Approval == nil {
		return nil, false, &RoutingError{NodeID: node.ID, Reason: "approval node without approval config"}
	}

	now := time.Now().UTC()
	state := execution.Approval

	if state != nil && state.NodeID == node.ID && state.Decision == "" {
		// Woken without a decision: either the deadline elapsed or the wake
		// was spurious.
		if state.Deadline != nil && !now.Before(*state.Deadline) {
			state.Decision = models.DecisionTimeout
			state.DecidedAt = &now
		} else {
			return nil, true, e.suspendForApproval(ctx, execution, node, state, logger)
		}
	}

	if state != nil && state.NodeID == node.ID && state.Decision != "" {
		return e.routeApprovalDecision(execution, workflow, node, state)
	}

	if node.Approval.AutoApprove {
		auto := &models.ApprovalState{
			NodeID:      node.ID,
			Approvers:   node.Approval.Approvers,
			RequestedAt: now,
			Decision:    models.DecisionApproved,
			DecidedBy:   "auto",
			DecidedAt:   &now,
		}
		execution.Approval = auto

		return e.routeApprovalDecision(execution, workflow, node, auto)
	}

	state = &models.ApprovalState{
		NodeID:      node.ID,
		Approvers:   node.Approval.Approvers,
		RequestedAt: now,
	}

	if node.Approval.Timeout > 0 {
		deadline := now.Add(node.Approval.Timeout)
		state.Deadline = &deadline
	}

	execution.Approval = state

	return nil, true, e.suspendForApproval(ctx, execution, node, state, logger)
}

func (e *Engine) suspendForApproval(
	ctx context.Context,
	execution *models.WorkflowExecution,
	node *models.Node,
	state *models.ApprovalState,
	logger *slog.Logger,
) error {
	execution.Status = models.ExecutionStatusWaitingApproval
	execution.CurrentNodeID = node.ID
	execution.NextWakeAt = state.Deadline
	execution.WorkerID = ""

	stale, err := e.saveTransition(ctx, execution)
	if err != nil {
		return err
	}

	if stale {
		logger.InfoContext(ctx, "Execution transitioned externally, dropping suspension", "node_id", node.ID)

		return nil
	}

	logger.InfoContext(ctx, "Execution suspended for approval",
		"node_id", node.ID,
		"approvers", len(state.Approvers),
		"deadline", state.Deadline)

	e.publish(ctx, execution, events.ExecutionSuspended{
		BaseEvent:   events.NewBaseEvent(events.ExecutionSuspendedEvent, execution.ProjectID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		Reason:      "approval",
		WakeAt:      state.Deadline,
	})

	return nil
}

// routeApprovalDecision follows the connection matching the recorded outcome.
// A missing role connection fails the execution: the author never said what a
// rejection or timeout should do, and guessing is worse than stopping.
func (e *Engine) routeApprovalDecision(
	execution *models.WorkflowExecution,
	workflow *models.WorkflowDefinition,
	node *models.Node,
	state *models.ApprovalState,
) (*models.Node, bool, error) {
	var role models.ConnectionRole

	switch state.Decision {
	case models.DecisionApproved:
		role = models.RoleApproved
	case models.DecisionRejected:
		role = models.RoleRejected
	case models.DecisionTimeout:
		role = models.RoleTimeout
	default:
		return nil, false, &RoutingError{NodeID: node.ID, Reason: fmt.Sprintf("unknown approval decision '%s'", state.Decision)}
	}

	entry := models.ExecutionLogEntry{
		NodeID:     node.ID,
		NodeType:   node.Type,
		StartedAt:  state.RequestedAt,
		FinishedAt: time.Now().UTC(),
		Output: map[string]any{
			"decision":   string(state.Decision),
			"decided_by": state.DecidedBy,
		},
	}
	execution.AppendLog(entry)

	conn := workflow.OutgoingByRole(node.ID, role)
	if conn == nil {
		return nil, false, &RoutingError{
			NodeID: node.ID,
			Reason: fmt.Sprintf("no connection for approval outcome '%s'", state.Decision),
		}
	}

	next, err := e.target(workflow, node, conn)

	return next, false, err
}

func (e *Engine) complete(ctx context.Context, execution *models.WorkflowExecution, node *models.Node) error {
	now := time.Now().UTC()

	execution.AppendLog(models.ExecutionLogEntry{
		NodeID:     node.ID,
		NodeType:   node.Type,
		StartedAt:  now,
		FinishedAt: now,
	})

	execution.Status = models.ExecutionStatusCompleted
	execution.CurrentNodeID = node.ID
	execution.Result = execution.Context
	execution.NextWakeAt = nil
	execution.FinishedAt = &now

	stale, err := e.saveTransition(ctx, execution)
	if err != nil {
		return err
	}

	if stale {
		return nil
	}

	var duration time.Duration
	if execution.StartedAt != nil {
		duration = now.Sub(*execution.StartedAt)
	}

	e.publish(ctx, execution, events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, execution.ProjectID),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Result:      execution.Result,
		Duration:    duration,
	})

	return nil
}

// fail records a domain failure on the execution and attributes it to an
// execution-log entry. Infrastructure errors from saving are the only errors
// returned to the caller.
func (e *Engine) fail(ctx context.Context, execution *models.WorkflowExecution, nodeID string, cause error) error {
	now := time.Now().UTC()

	// The action path already logs its own failures; everything else gets
	// the error stamped on the failing node's entry or a fresh one.
	if n := len(execution.Log); n > 0 && execution.Log[n-1].NodeID == nodeID {
		if execution.Log[n-1].Error == "" {
			execution.Log[n-1].Error = cause.Error()
		}
	} else {
		execution.AppendLog(models.ExecutionLogEntry{
			NodeID:     nodeID,
			StartedAt:  now,
			FinishedAt: now,
			Error:      cause.Error(),
		})
	}

	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = cause.Error()
	execution.NextWakeAt = nil
	execution.FinishedAt = &now

	stale, err := e.saveTransition(ctx, execution)
	if err != nil {
		return err
	}

	if stale {
		return nil
	}

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"node_id", nodeID,
		"error", cause)

	e.publish(ctx, execution, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.ProjectID),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		NodeID:      nodeID,
		Error:       cause.Error(),
	})

	return nil
}

func (e *Engine) publish(ctx context.Context, execution *models.WorkflowExecution, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, execution.ID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"execution_id", execution.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}
