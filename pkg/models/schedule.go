package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerSchedule is a recurring workflow trigger stored with a precomputed
// next execution time, so the scheduler can query due schedules in one pass
// without keeping per-schedule timers.
type TriggerSchedule struct {
	ID         string `json:"id"          validate:"required"`
	WorkflowID string `json:"workflow_id" validate:"required"`

	// CronExpression uses the standard 5-field format (minute hour dom month dow).
	CronExpression string `json:"cron_expression" validate:"required"`

	NextDueAt time.Time `json:"next_due_at"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTriggerSchedule creates a schedule with its first due time computed.
func NewTriggerSchedule(id, workflowID, cronExpression string) (*TriggerSchedule, error) {
	now := time.Now().UTC()
	schedule := &TriggerSchedule{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.Advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance recomputes NextDueAt from the reference time.
func (s *TriggerSchedule) Advance(reference time.Time) error {
	if s.CronExpression == "" {
		return errors.New("schedule cron expression is required")
	}

	cronSchedule, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// Due reports whether the schedule should fire at the reference time.
func (s *TriggerSchedule) Due(reference time.Time) bool {
	return s.Active && !s.NextDueAt.IsZero() && !s.NextDueAt.After(reference)
}
