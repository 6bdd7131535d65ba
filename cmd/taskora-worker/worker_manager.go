// Package main provides the Taskora automation worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/taskora/automation/pkg/dispatcher"
	"github.com/taskora/automation/pkg/engine"
	"github.com/taskora/automation/pkg/eventbus"
	"github.com/taskora/automation/pkg/otelhelper"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/queue"
	"github.com/taskora/automation/pkg/registry"
)

// WorkerManager consumes the execution queue, claims each execution against
// the ledger and drives it through the engine. Duplicate deliveries and
// already-claimed executions are skipped silently.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	queue       queue.Queue
	engine      *engine.Engine
	tracer      trace.Tracer
}

func NewWorkerManager(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	q queue.Queue,
	logger *slog.Logger,
) *WorkerManager {
	reg := registry.NewDefaultRegistry(logger)
	actionDispatcher := dispatcher.NewDispatcher(reg, logger)

	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "taskora-worker"),
		persistence: p,
		eventBus:    eventBus,
		queue:       q,
		engine:      engine.NewEngine(p, actionDispatcher, eventBus, logger, engine.Config{}),
		tracer:      noop.NewTracerProvider().Tracer("taskora-worker"),
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	tracer, err := otelhelper.NewTracer(ctx, "taskora-worker")
	if err != nil {
		w.logger.WarnContext(ctx, "Tracing disabled", "error", err)
	} else {
		w.tracer = tracer
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- w.queue.Consume(consumeCtx, w.handleItem)
	}()

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
		cancel()

		return nil
	case err := <-errCh:
		return err
	}
}

func (w *WorkerManager) handleItem(ctx context.Context, item queue.Item) error {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, item.ExecutionID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("execution_id", item.ExecutionID)

	execution, err := w.persistence.Executions().Claim(ctx, item.ExecutionID, w.id)
	if err != nil {
		// Another worker won the claim, or the execution reached a state
		// this delivery no longer applies to.
		if persistence.IsExecutionClaimed(err) || persistence.IsExecutionNotFound(err) {
			logger.DebugContext(ctx, "Skipping execution", "reason", err)

			return nil
		}

		otelhelper.SetError(span, err)

		return err
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID))

	err = w.engine.Run(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.ExecutionIDKey, item.ExecutionID),
		)
		logger.ErrorContext(ctx, "Execution run failed", "error", err)

		return err
	}

	return nil
}
