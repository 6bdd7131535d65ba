package file

import (
	"context"
	"sort"
	"time"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository is the file-backed execution ledger.
type ExecutionRepository struct {
	store *Persistence
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	execution.UpdatedAt = time.Now().UTC()

	return r.store.write(executionsDir, execution.ID, execution)
}

// SaveRunning persists in-run progress only while the stored row is still
// running. A row that moved out of running, usually by a cancellation, wins:
// the caller gets persistence.ErrExecutionStale and must stop.
func (r *ExecutionRepository) SaveRunning(ctx context.Context, execution *models.WorkflowExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, err := r.GetByID(ctx, execution.ID)
	if err != nil {
		return err
	}

	if stored.Status != models.ExecutionStatusRunning {
		return persistence.ErrExecutionStale
	}

	return r.Save(ctx, execution)
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	err := r.store.read(executionsDir, id, &execution, persistence.ErrExecutionNotFound)
	if err != nil {
		return nil, err
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	var executions []*models.WorkflowExecution

	for _, e := range all {
		if e.WorkflowID != workflowID {
			continue
		}

		if status != "" && e.Status != status {
			continue
		}

		executions = append(executions, e)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})

	return executions, nil
}

// Claim compare-and-swaps the execution from a resumable state to running on
// behalf of the worker. A claim that lost the race returns
// persistence.ErrExecutionClaimed and must be discarded by the caller.
func (r *ExecutionRepository) Claim(ctx context.Context, id, workerID string) (*models.WorkflowExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	execution, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !execution.Status.Resumable() {
		return nil, persistence.ErrExecutionClaimed
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.WorkerID = workerID
	execution.NextWakeAt = nil

	if execution.StartedAt == nil {
		execution.StartedAt = &now
	}

	err = r.Save(ctx, execution)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

func (r *ExecutionRepository) DueForWake(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	var due []*models.WorkflowExecution

	for _, e := range all {
		if !e.Status.Resumable() || e.NextWakeAt == nil {
			continue
		}

		if e.NextWakeAt.After(now) {
			continue
		}

		due = append(due, e)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextWakeAt.Before(*due[j].NextWakeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// ClearWake removes the wake marker only while the execution still looks the
// way the caller observed it: same status, marker set and elapsed. Anything
// else means a concurrent transition won; the caller must drop its copy.
func (r *ExecutionRepository) ClearWake(ctx context.Context, id string, status models.ExecutionStatus, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	execution, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status != status || execution.NextWakeAt == nil || execution.NextWakeAt.After(now) {
		return persistence.ErrExecutionStale
	}

	execution.NextWakeAt = nil

	return r.Save(ctx, execution)
}

func (r *ExecutionRepository) all(ctx context.Context) ([]*models.WorkflowExecution, error) {
	ids, err := r.store.ids(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}
