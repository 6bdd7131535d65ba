package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

// ScheduleService manages recurring trigger schedules: cron-shaped entries
// the scheduler polls to start executions of a published workflow.
type ScheduleService struct {
	persistence persistence.Persistence
	definitions *DefinitionService
	logger      *slog.Logger
}

func NewScheduleService(
	p persistence.Persistence,
	definitions *DefinitionService,
	logger *slog.Logger,
) *ScheduleService {
	return &ScheduleService{
		persistence: p,
		definitions: definitions,
		logger:      logger.With("module", "schedule_service"),
	}
}

// Create registers a recurring trigger for a published workflow. The cron
// expression is parsed up front so a malformed schedule never reaches the
// poller.
func (s *ScheduleService) Create(ctx context.Context, workflowID, cronExpression string) (*models.TriggerSchedule, error) {
	workflow, err := s.definitions.PublishedByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	schedule, err := models.NewTriggerSchedule(uuid.New().String(), workflow.ID, cronExpression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if err := s.persistence.Schedules().Save(ctx, schedule); err != nil {
		return nil, &ServiceError{Op: "Create", Err: err}
	}

	s.logger.InfoContext(ctx, "Created trigger schedule",
		"schedule_id", schedule.ID,
		"workflow_id", workflow.ID,
		"next_due_at", schedule.NextDueAt)

	return schedule, nil
}

func (s *ScheduleService) Get(ctx context.Context, id string) (*models.TriggerSchedule, error) {
	return s.persistence.Schedules().GetByID(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context) ([]*models.TriggerSchedule, error) {
	return s.persistence.Schedules().List(ctx)
}

func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	return s.persistence.Schedules().Delete(ctx, id)
}
