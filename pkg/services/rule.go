package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/registry"
)

// RuleService owns CRUD and lifecycle for flat automation rules.
type RuleService struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewRuleService(p persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *RuleService {
	return &RuleService{
		persistence: p,
		registry:    reg,
		validate:    validator.New(),
		logger:      logger.With("module", "rule_service"),
	}
}

func (s *RuleService) Create(ctx context.Context, rule *models.AutomationRule) (*models.AutomationRule, error) {
	now := time.Now().UTC()

	rule.ID = uuid.New().String()
	rule.Status = models.RuleStatusActive
	rule.ExecutionCount = 0
	rule.SuccessCount = 0
	rule.LastError = ""
	rule.LastRunAt = nil
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.validateRule(rule); err != nil {
		return nil, err
	}

	if err := s.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, &ServiceError{Op: "Create", Err: err}
	}

	s.logger.InfoContext(ctx, "Created rule", "rule_id", rule.ID, "trigger_type", rule.TriggerType)

	return rule, nil
}

func (s *RuleService) Update(ctx context.Context, id string, updated *models.AutomationRule) (*models.AutomationRule, error) {
	existing, err := s.persistence.Rules().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = updated.Name
	existing.TriggerType = updated.TriggerType
	existing.TriggerConfig = updated.TriggerConfig
	existing.Conditions = updated.Conditions
	existing.Actions = updated.Actions

	if err := s.validateRule(existing); err != nil {
		return nil, err
	}

	if err := s.persistence.Rules().Save(ctx, existing); err != nil {
		return nil, &ServiceError{Op: "Update", Err: err}
	}

	return existing, nil
}

func (s *RuleService) Get(ctx context.Context, id string) (*models.AutomationRule, error) {
	return s.persistence.Rules().GetByID(ctx, id)
}

func (s *RuleService) List(ctx context.Context, projectID string) ([]*models.AutomationRule, error) {
	return s.persistence.Rules().List(ctx, projectID)
}

func (s *RuleService) Delete(ctx context.Context, id string) error {
	return s.persistence.Rules().Delete(ctx, id)
}

// Pause stops a rule from matching without losing its counters.
func (s *RuleService) Pause(ctx context.Context, id string) (*models.AutomationRule, error) {
	return s.setStatus(ctx, id, models.RuleStatusPaused)
}

func (s *RuleService) Resume(ctx context.Context, id string) (*models.AutomationRule, error) {
	return s.setStatus(ctx, id, models.RuleStatusActive)
}

func (s *RuleService) setStatus(ctx context.Context, id string, status models.RuleStatus) (*models.AutomationRule, error) {
	rule, err := s.persistence.Rules().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rule.Status = status

	if err := s.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, &ServiceError{Op: "setStatus", Err: err}
	}

	return rule, nil
}

func (s *RuleService) validateRule(rule *models.AutomationRule) error {
	if err := s.validate.Struct(rule); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if len(rule.Actions) == 0 {
		return fmt.Errorf("%w: rule requires at least one action", ErrInvalidRequest)
	}

	if rule.Conditions != nil {
		if err := rule.Conditions.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	if s.registry == nil {
		return nil
	}

	for _, action := range rule.Actions {
		if err := s.registry.ValidateActionConfig(action.ActionType, action.Parameters); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	return nil
}
