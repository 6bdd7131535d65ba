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

// TemplateRepository stores workflow templates.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	nodesJSON, err := marshalJSON(template.Nodes)
	if err != nil {
		return err
	}

	connectionsJSON, err := marshalJSON(template.Connections)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO templates (id, name, category, description, nodes, connections, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.Category,
		template.Description,
		nodesJSON,
		connectionsJSON,
		template.CreatedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "Save", ID: template.ID, Err: err}
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, category, description, nodes, connections, created_at FROM templates WHERE id = $1", id)

	template, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTemplateNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "GetByID", ID: id, Err: err}
	}

	return template, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, category, description, nodes, connections, created_at FROM templates ORDER BY category, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	return templates, rows.Err()
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = $1", id)
	if err != nil {
		return &persistence.StoreError{Op: "Delete", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return persistence.ErrTemplateNotFound
	}

	return nil
}

func scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template        models.WorkflowTemplate
		nodesJSON       []byte
		connectionsJSON []byte
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Category,
		&template.Description,
		&nodesJSON,
		&connectionsJSON,
		&template.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(nodesJSON, &template.Nodes); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(connectionsJSON, &template.Connections); err != nil {
		return nil, err
	}

	return &template, nil
}

// ScheduleRepository stores recurring trigger schedules.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.TriggerSchedule) error {
	schedule.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO trigger_schedules (id, workflow_id, cron_expression, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.WorkflowID,
		schedule.CronExpression,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "Save", ID: schedule.ID, Err: err}
	}

	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.TriggerSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, workflow_id, cron_expression, next_due_at, active, created_at, updated_at FROM trigger_schedules WHERE id = $1", id)

	schedule, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrScheduleNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "GetByID", ID: id, Err: err}
	}

	return schedule, nil
}

func (r *ScheduleRepository) List(ctx context.Context) ([]*models.TriggerSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workflow_id, cron_expression, next_due_at, active, created_at, updated_at
		 FROM trigger_schedules
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	schedules := make([]*models.TriggerSchedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// Due returns active schedules whose precomputed due time has elapsed.
func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.TriggerSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workflow_id, cron_expression, next_due_at, active, created_at, updated_at
		 FROM trigger_schedules
		 WHERE active = TRUE AND next_due_at <= $1
		 ORDER BY next_due_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	schedules := make([]*models.TriggerSchedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM trigger_schedules WHERE id = $1", id)
	if err != nil {
		return &persistence.StoreError{Op: "Delete", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return persistence.ErrScheduleNotFound
	}

	return nil
}

func scanSchedule(row rowScanner) (*models.TriggerSchedule, error) {
	var schedule models.TriggerSchedule

	err := row.Scan(
		&schedule.ID,
		&schedule.WorkflowID,
		&schedule.CronExpression,
		&schedule.NextDueAt,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}
