package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

const workflowColumns = `
	id
  , workflow_group_id
  , project_id
  , name
  , description
  , status
  , version
  , nodes
  , connections
  , variables
  , is_active
  , owner
  , created_at
  , updated_at
  , published_at
  , archived_at
`

// WorkflowRepository handles workflow definition rows.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	nodes, err := marshalJSON(workflow.Nodes)
	if err != nil {
		return err
	}

	connections, err := marshalJSON(workflow.Connections)
	if err != nil {
		return err
	}

	variables, err := marshalJSON(workflow.Variables)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			variables = EXCLUDED.variables,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			archived_at = EXCLUDED.archived_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.WorkflowGroupID,
		workflow.ProjectID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.Version,
		nodes,
		connections,
		variables,
		workflow.IsActive,
		workflow.Owner,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.PublishedAt,
		workflow.ArchivedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "Save", ID: workflow.ID, Err: err}
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "GetByID", ID: id, Err: err}
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, projectID string) ([]*models.WorkflowDefinition, error) {
	query := "SELECT " + workflowColumns + " FROM workflows"
	args := []any{}

	if projectID != "" {
		query += " WHERE project_id = $1"
		args = append(args, projectID)
	}

	query += " ORDER BY created_at DESC"

	return r.queryWorkflows(ctx, query, args...)
}

func (r *WorkflowRepository) ListByGroup(ctx context.Context, groupID string) ([]*models.WorkflowDefinition, error) {
	query := "SELECT " + workflowColumns + ` FROM workflows
		WHERE workflow_group_id = $1 ORDER BY version ASC`

	return r.queryWorkflows(ctx, query, groupID)
}

func (r *WorkflowRepository) PublishedByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE workflow_group_id = $1 AND status = $2",
		groupID, models.WorkflowStatusPublished)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrPublishedWorkflowNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "PublishedByGroup", ID: groupID, Err: err}
	}

	return workflow, nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return &persistence.StoreError{Op: "Delete", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		workflow               models.WorkflowDefinition
		nodes, conns, vars     []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.WorkflowGroupID,
		&workflow.ProjectID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.Version,
		&nodes,
		&conns,
		&vars,
		&workflow.IsActive,
		&workflow.Owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.PublishedAt,
		&workflow.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(nodes, &workflow.Nodes); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(conns, &workflow.Connections); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(vars, &workflow.Variables); err != nil {
		return nil, err
	}

	return &workflow, nil
}
