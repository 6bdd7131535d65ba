// Package scheduler wakes suspended executions whose deadline elapsed and
// fires recurring workflow triggers. It holds no timers: everything due is
// found by polling the precomputed wake and due columns.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/queue"
)

const (
	DefaultInterval  = 5 * time.Second
	DefaultBatchSize = 100
)

// WorkflowTrigger starts a new execution of a published workflow. The
// execution service implements this.
type WorkflowTrigger interface {
	TriggerWorkflow(ctx context.Context, workflowID, triggerEvent string, payload map[string]any) (*models.WorkflowExecution, error)
}

type Scheduler struct {
	persistence persistence.Persistence
	queue       queue.Queue
	trigger     WorkflowTrigger
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(
	p persistence.Persistence,
	q queue.Queue,
	trigger WorkflowTrigger,
	logger *slog.Logger,
	interval time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		persistence: p,
		queue:       q,
		trigger:     trigger,
		logger:      logger.With("module", "scheduler"),
		interval:    interval,
		batchSize:   DefaultBatchSize,
		stopCh:      make(chan struct{}),
	}
}

// Start runs the polling loop until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.InfoContext(ctx, "Scheduler started", "interval", s.interval)

		for {
			select {
			case <-s.stopCh:
				s.logger.InfoContext(ctx, "Scheduler stopped")

				return
			case <-ctx.Done():
				s.logger.InfoContext(ctx, "Context cancelled, stopping scheduler")

				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.wakeDueExecutions(ctx, now)
	s.fireDueSchedules(ctx, now)
}

// wakeDueExecutions enqueues suspended executions whose retry timer or
// approval deadline elapsed. The wake marker is cleared with a conditional
// write before enqueueing: a clear that loses against a concurrent approval,
// claim or completion skips the execution instead of overwriting it.
func (s *Scheduler) wakeDueExecutions(ctx context.Context, now time.Time) {
	due, err := s.persistence.Executions().DueForWake(ctx, now, s.batchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to fetch due executions", "error", err)

		return
	}

	for _, execution := range due {
		logger := s.logger.With("execution_id", execution.ID, "status", execution.Status)

		err := s.persistence.Executions().ClearWake(ctx, execution.ID, execution.Status, now)

		switch {
		case persistence.IsExecutionStale(err) || persistence.IsExecutionNotFound(err):
			logger.DebugContext(ctx, "Wake superseded by a concurrent transition")

			continue
		case err != nil:
			logger.ErrorContext(ctx, "Failed to clear wake marker", "error", err)

			continue
		}

		err = s.queue.Enqueue(ctx, queue.Item{ExecutionID: execution.ID, EnqueuedAt: now})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to enqueue execution", "error", err)

			continue
		}

		logger.InfoContext(ctx, "Woke suspended execution")
	}
}

// fireDueSchedules triggers workflows whose recurring schedule is due and
// advances each schedule to its next occurrence.
func (s *Scheduler) fireDueSchedules(ctx context.Context, now time.Time) {
	due, err := s.persistence.Schedules().Due(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to fetch due schedules", "error", err)

		return
	}

	for _, schedule := range due {
		logger := s.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

		payload := map[string]any{
			"schedule_id": schedule.ID,
			"fired_at":    now.Format(time.RFC3339),
		}

		if _, err := s.trigger.TriggerWorkflow(ctx, schedule.WorkflowID, "schedule", payload); err != nil {
			logger.ErrorContext(ctx, "Failed to trigger scheduled workflow", "error", err)
		}

		if err := schedule.Advance(now); err != nil {
			logger.ErrorContext(ctx, "Failed to advance schedule", "error", err)

			continue
		}

		if err := s.persistence.Schedules().Save(ctx, schedule); err != nil {
			logger.ErrorContext(ctx, "Failed to save schedule", "error", err)

			continue
		}

		logger.InfoContext(ctx, "Fired scheduled trigger", "next_due_at", schedule.NextDueAt)
	}
}
