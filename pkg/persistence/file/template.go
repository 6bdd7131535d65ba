package file

import (
	"context"
	"time"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

const (
	templatesDir = "templates"
	schedulesDir = "schedules"
)

// TemplateRepository stores workflow templates as JSON documents.
type TemplateRepository struct {
	store *Persistence
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	return r.store.write(templatesDir, template.ID, template)
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	err := r.store.read(templatesDir, id, &template, persistence.ErrTemplateNotFound)
	if err != nil {
		return nil, err
	}

	return &template, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	ids, err := r.store.ids(templatesDir)
	if err != nil {
		return nil, err
	}

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		template, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	return templates, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return r.store.delete(templatesDir, id, persistence.ErrTemplateNotFound)
}

// ScheduleRepository stores recurring trigger schedules as JSON documents.
type ScheduleRepository struct {
	store *Persistence
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.TriggerSchedule) error {
	return r.store.write(schedulesDir, schedule.ID, schedule)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.TriggerSchedule, error) {
	var schedule models.TriggerSchedule

	err := r.store.read(schedulesDir, id, &schedule, persistence.ErrScheduleNotFound)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}

func (r *ScheduleRepository) List(ctx context.Context) ([]*models.TriggerSchedule, error) {
	ids, err := r.store.ids(schedulesDir)
	if err != nil {
		return nil, err
	}

	schedules := make([]*models.TriggerSchedule, 0, len(ids))

	for _, id := range ids {
		schedule, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.TriggerSchedule, error) {
	ids, err := r.store.ids(schedulesDir)
	if err != nil {
		return nil, err
	}

	var due []*models.TriggerSchedule

	for _, id := range ids {
		schedule, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if schedule.Due(now) {
			due = append(due, schedule)
		}
	}

	return due, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	return r.store.delete(schedulesDir, id, persistence.ErrScheduleNotFound)
}
