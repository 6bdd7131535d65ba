package file

import (
	"context"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

const rulesDir = "rules"

// RuleRepository stores automation rules as JSON documents.
type RuleRepository struct {
	store *Persistence
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	return r.store.write(rulesDir, rule.ID, rule)
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	var rule models.AutomationRule

	err := r.store.read(rulesDir, id, &rule, persistence.ErrRuleNotFound)
	if err != nil {
		return nil, err
	}

	return &rule, nil
}

func (r *RuleRepository) List(ctx context.Context, projectID string) ([]*models.AutomationRule, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.AutomationRule, 0, len(all))

	for _, rule := range all {
		if projectID == "" || rule.ProjectID == projectID {
			rules = append(rules, rule)
		}
	}

	return rules, nil
}

func (r *RuleRepository) ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.AutomationRule, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	var rules []*models.AutomationRule

	for _, rule := range all {
		if rule.Status == models.RuleStatusActive && rule.TriggerType == triggerType {
			rules = append(rules, rule)
		}
	}

	return rules, nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	return r.store.delete(rulesDir, id, persistence.ErrRuleNotFound)
}

func (r *RuleRepository) all(ctx context.Context) ([]*models.AutomationRule, error) {
	ids, err := r.store.ids(rulesDir)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.AutomationRule, 0, len(ids))

	for _, id := range ids {
		rule, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	return rules, nil
}
