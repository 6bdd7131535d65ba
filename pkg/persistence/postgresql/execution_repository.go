package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

const executionColumns = `
	id
  , workflow_id
  , rule_id
  , project_id
  , trigger_event
  , context
  , status
  , log
  , current_node_id
  , steps
  , retry_count
  , max_retries
  , next_wake_at
  , approval
  , worker_id
  , result
  , error_message
  , created_at
  , updated_at
  , started_at
  , finished_at
`

// ExecutionRepository is the PostgreSQL execution ledger.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	execution.UpdatedAt = time.Now().UTC()

	contextJSON, err := marshalJSON(execution.Context)
	if err != nil {
		return err
	}

	logJSON, err := marshalJSON(execution.Log)
	if err != nil {
		return err
	}

	approvalJSON, err := marshalJSON(execution.Approval)
	if err != nil {
		return err
	}

	resultJSON, err := marshalJSON(execution.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			context = EXCLUDED.context,
			status = EXCLUDED.status,
			log = EXCLUDED.log,
			current_node_id = EXCLUDED.current_node_id,
			steps = EXCLUDED.steps,
			retry_count = EXCLUDED.retry_count,
			next_wake_at = EXCLUDED.next_wake_at,
			approval = EXCLUDED.approval,
			worker_id = EXCLUDED.worker_id,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		nullString(execution.WorkflowID),
		nullString(execution.RuleID),
		execution.ProjectID,
		execution.TriggerEvent,
		contextJSON,
		execution.Status,
		logJSON,
		execution.CurrentNodeID,
		execution.Steps,
		execution.RetryCount,
		execution.MaxRetries,
		execution.NextWakeAt,
		approvalJSON,
		execution.WorkerID,
		resultJSON,
		execution.ErrorMessage,
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.StartedAt,
		execution.FinishedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "Save", ID: execution.ID, Err: err}
	}

	return nil
}

// SaveRunning persists in-run progress with a conditional UPDATE: the write
// lands only while the row is still running. Zero affected rows means a
// concurrent transition, usually a cancellation, won the race.
func (r *ExecutionRepository) SaveRunning(ctx context.Context, execution *models.WorkflowExecution) error {
	execution.UpdatedAt = time.Now().UTC()

	contextJSON, err := marshalJSON(execution.Context)
	if err != nil {
		return err
	}

	logJSON, err := marshalJSON(execution.Log)
	if err != nil {
		return err
	}

	approvalJSON, err := marshalJSON(execution.Approval)
	if err != nil {
		return err
	}

	resultJSON, err := marshalJSON(execution.Result)
	if err != nil {
		return err
	}

	query := `
		UPDATE executions
		SET context = $1,
		    status = $2,
		    log = $3,
		    current_node_id = $4,
		    steps = $5,
		    retry_count = $6,
		    max_retries = $7,
		    next_wake_at = $8,
		    approval = $9,
		    worker_id = $10,
		    result = $11,
		    error_message = $12,
		    updated_at = $13,
		    finished_at = $14
		WHERE id = $15
		  AND status = $16
	`

	result, err := r.db.ExecContext(ctx, query,
		contextJSON,
		execution.Status,
		logJSON,
		execution.CurrentNodeID,
		execution.Steps,
		execution.RetryCount,
		execution.MaxRetries,
		execution.NextWakeAt,
		approvalJSON,
		execution.WorkerID,
		resultJSON,
		execution.ErrorMessage,
		execution.UpdatedAt,
		execution.FinishedAt,
		execution.ID,
		models.ExecutionStatusRunning,
	)
	if err != nil {
		return &persistence.StoreError{Op: "SaveRunning", ID: execution.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, execution.ID); err != nil {
			return err
		}

		return persistence.ErrExecutionStale
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE id = $1", id)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "GetByID", ID: id, Err: err}
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE workflow_id = $1"
	args := []any{workflowID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}

	query += " ORDER BY created_at ASC"

	return r.queryExecutions(ctx, query, args...)
}

// Claim takes ownership of an execution with a single conditional UPDATE:
// the status moves from a resumable state to running, or nobody moves it.
// Zero affected rows means another worker won the race.
func (r *ExecutionRepository) Claim(ctx context.Context, id, workerID string) (*models.WorkflowExecution, error) {
	now := time.Now().UTC()

	query := `
		UPDATE executions
		SET status = $1,
		    worker_id = $2,
		    next_wake_at = NULL,
		    started_at = COALESCE(started_at, $3),
		    updated_at = $3
		WHERE id = $4
		  AND status IN ($5, $6, $7)
	`

	result, err := r.db.ExecContext(ctx, query,
		models.ExecutionStatusRunning,
		workerID,
		now,
		id,
		models.ExecutionStatusPending,
		models.ExecutionStatusWaitingApproval,
		models.ExecutionStatusRetrying,
	)
	if err != nil {
		return nil, &persistence.StoreError{Op: "Claim", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		// Either the row is gone or its status already moved on.
		_, err = r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		return nil, persistence.ErrExecutionClaimed
	}

	return r.GetByID(ctx, id)
}

func (r *ExecutionRepository) DueForWake(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + executionColumns + ` FROM executions
		WHERE status IN ($1, $2)
		  AND next_wake_at IS NOT NULL
		  AND next_wake_at <= $3
		ORDER BY next_wake_at ASC
		LIMIT $4`

	return r.queryExecutions(ctx, query,
		models.ExecutionStatusWaitingApproval,
		models.ExecutionStatusRetrying,
		now,
		limit,
	)
}

// ClearWake removes the wake marker only while the row still carries the
// observed status with an elapsed marker. Zero affected rows means a
// concurrent transition won and the caller must not enqueue.
func (r *ExecutionRepository) ClearWake(ctx context.Context, id string, status models.ExecutionStatus, now time.Time) error {
	query := `
		UPDATE executions
		SET next_wake_at = NULL,
		    updated_at = $1
		WHERE id = $2
		  AND status = $3
		  AND next_wake_at IS NOT NULL
		  AND next_wake_at <= $1
	`

	result, err := r.db.ExecContext(ctx, query, now, id, status)
	if err != nil {
		return &persistence.StoreError{Op: "ClearWake", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}

		return persistence.ErrExecutionStale
	}

	return nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution                          models.WorkflowExecution
		workflowID, ruleID                 sql.NullString
		contextJSON, logJSON, approvalJSON []byte
		resultJSON                         []byte
	)

	err := row.Scan(
		&execution.ID,
		&workflowID,
		&ruleID,
		&execution.ProjectID,
		&execution.TriggerEvent,
		&contextJSON,
		&execution.Status,
		&logJSON,
		&execution.CurrentNodeID,
		&execution.Steps,
		&execution.RetryCount,
		&execution.MaxRetries,
		&execution.NextWakeAt,
		&approvalJSON,
		&execution.WorkerID,
		&resultJSON,
		&execution.ErrorMessage,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&execution.StartedAt,
		&execution.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.WorkflowID = workflowID.String
	execution.RuleID = ruleID.String

	if err := unmarshalJSON(contextJSON, &execution.Context); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(logJSON, &execution.Log); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(approvalJSON, &execution.Approval); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(resultJSON, &execution.Result); err != nil {
		return nil, err
	}

	return &execution, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
