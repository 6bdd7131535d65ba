// Package main provides the Taskora automation API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/taskora/automation/pkg/dispatcher"
	"github.com/taskora/automation/pkg/eventbus"
	"github.com/taskora/automation/pkg/events"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/queue"
	"github.com/taskora/automation/pkg/registry"
	"github.com/taskora/automation/pkg/rules"
	"github.com/taskora/automation/pkg/services"
	"github.com/taskora/automation/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	queue       queue.Queue
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	q queue.Queue,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		eventBus:    eventBus,
		queue:       q,
		registry:    registry.NewDefaultRegistry(logger),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() (*fiber.App, *rules.Matcher) {
	actionDispatcher := dispatcher.NewDispatcher(a.registry, a.logger)
	matcher := rules.NewMatcher(a.persistence, actionDispatcher, a.eventBus, a.logger)

	definitionService := services.NewDefinitionService(a.persistence, a.registry, a.eventBus, a.logger)
	executionService := services.NewExecutionService(a.persistence, definitionService, matcher, a.queue, a.eventBus, a.logger)
	ruleService := services.NewRuleService(a.persistence, a.registry, a.logger)
	templateService := services.NewTemplateService(a.persistence, definitionService, a.logger)
	scheduleService := services.NewScheduleService(a.persistence, definitionService, a.logger)

	handlers := web.NewAPIHandlers(
		definitionService,
		executionService,
		ruleService,
		templateService,
		scheduleService,
		a.persistence,
		a.eventBus,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Taskora Automation API")
	})

	handlers.Register(app)

	return app, matcher
}

func (a *API) Start(ctx context.Context, port int) error {
	app, matcher := a.App()

	// Domain events posted through the API (or arriving over Kafka) flow to
	// the rule matcher.
	a.eventBus.Handle(events.DomainEventType, func(ctx context.Context, event any) error {
		domainEvent, ok := event.(*events.DomainEvent)
		if !ok {
			a.logger.ErrorContext(ctx, "Invalid event type for domain event handler")

			return nil
		}

		return matcher.HandleEvent(ctx, domainEvent)
	})

	err := a.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
