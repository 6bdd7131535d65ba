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

const ruleColumns = `
	id
  , project_id
  , name
  , trigger_type
  , trigger_config
  , conditions
  , actions
  , status
  , execution_count
  , success_count
  , last_error
  , last_run_at
  , created_at
  , updated_at
`

// RuleRepository stores flat automation rules.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	rule.UpdatedAt = time.Now().UTC()

	triggerConfigJSON, err := marshalJSON(rule.TriggerConfig)
	if err != nil {
		return err
	}

	conditionsJSON, err := marshalJSON(rule.Conditions)
	if err != nil {
		return err
	}

	actionsJSON, err := marshalJSON(rule.Actions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			status = EXCLUDED.status,
			execution_count = EXCLUDED.execution_count,
			success_count = EXCLUDED.success_count,
			last_error = EXCLUDED.last_error,
			last_run_at = EXCLUDED.last_run_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.ProjectID,
		rule.Name,
		rule.TriggerType,
		triggerConfigJSON,
		conditionsJSON,
		actionsJSON,
		rule.Status,
		rule.ExecutionCount,
		rule.SuccessCount,
		rule.LastError,
		rule.LastRunAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "Save", ID: rule.ID, Err: err}
	}

	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM automation_rules WHERE id = $1", id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrRuleNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "GetByID", ID: id, Err: err}
	}

	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context, projectID string) ([]*models.AutomationRule, error) {
	return r.queryRules(ctx,
		"SELECT "+ruleColumns+" FROM automation_rules WHERE project_id = $1 ORDER BY created_at ASC",
		projectID)
}

// ListActiveByTrigger fetches match candidates for one incoming event type.
func (r *RuleRepository) ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.AutomationRule, error) {
	return r.queryRules(ctx,
		"SELECT "+ruleColumns+" FROM automation_rules WHERE trigger_type = $1 AND status = $2 ORDER BY created_at ASC",
		triggerType, models.RuleStatusActive)
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = $1", id)
	if err != nil {
		return &persistence.StoreError{Op: "Delete", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return persistence.ErrRuleNotFound
	}

	return nil
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.AutomationRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation rules: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	rules := make([]*models.AutomationRule, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation rule: %w", err)
		}

		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func scanRule(row rowScanner) (*models.AutomationRule, error) {
	var (
		rule              models.AutomationRule
		triggerConfigJSON []byte
		conditionsJSON    []byte
		actionsJSON       []byte
	)

	err := row.Scan(
		&rule.ID,
		&rule.ProjectID,
		&rule.Name,
		&rule.TriggerType,
		&triggerConfigJSON,
		&conditionsJSON,
		&actionsJSON,
		&rule.Status,
		&rule.ExecutionCount,
		&rule.SuccessCount,
		&rule.LastError,
		&rule.LastRunAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(triggerConfigJSON, &rule.TriggerConfig); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(conditionsJSON, &rule.Conditions); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(actionsJSON, &rule.Actions); err != nil {
		return nil, err
	}

	return &rule, nil
}
