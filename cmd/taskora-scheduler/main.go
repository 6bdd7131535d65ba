// Package main provides the Taskora automation scheduler: it wakes suspended
// executions whose timers elapsed and fires recurring trigger schedules.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/taskora/automation/pkg/cmd"
	"github.com/taskora/automation/pkg/dispatcher"
	"github.com/taskora/automation/pkg/log"
	"github.com/taskora/automation/pkg/registry"
	"github.com/taskora/automation/pkg/rules"
	"github.com/taskora/automation/pkg/scheduler"
	"github.com/taskora/automation/pkg/services"
)

const defaultPollInterval = 5 * time.Second

func main() {
	command := &cli.Command{
		Name:                  "taskora-scheduler",
		Usage:                 "Wake suspended executions and fire recurring schedules",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "queue-url",
				Usage:    "Execution queue URL (redis://...)",
				Required: true,
				Sources:  cli.EnvVars("QUEUE_URL"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often to poll for due work",
				Value:   defaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("scheduler")

			logger.InfoContext(ctx, "Initializing Taskora Automation Scheduler")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "taskora-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			queue, err := cmd.NewQueue(ctx, command.String("queue-url"), logger)
			if err != nil {
				return err
			}

			defer func() {
				err := queue.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			reg := registry.NewDefaultRegistry(logger)
			actionDispatcher := dispatcher.NewDispatcher(reg, logger)
			matcher := rules.NewMatcher(persistence, actionDispatcher, eventBus, logger)
			definitions := services.NewDefinitionService(persistence, reg, eventBus, logger)
			executions := services.NewExecutionService(persistence, definitions, matcher, queue, eventBus, logger)

			sched := scheduler.NewScheduler(persistence, queue, executions, logger, command.Duration("poll-interval"))
			sched.Start(ctx)

			logger.InfoContext(ctx, "Scheduler started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down scheduler...")
			sched.Stop()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
