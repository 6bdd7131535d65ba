// Package web provides the REST surface of the automation engine.
package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/taskora/automation/pkg/eventbus"
	"github.com/taskora/automation/pkg/events"
	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/services"
)

type APIHandlers struct {
	definitions *services.DefinitionService
	executions  *services.ExecutionService
	rules       *services.RuleService
	templates   *services.TemplateService
	schedules   *services.ScheduleService
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
}

func NewAPIHandlers(
	definitions *services.DefinitionService,
	executions *services.ExecutionService,
	rules *services.RuleService,
	templates *services.TemplateService,
	schedules *services.ScheduleService,
	p persistence.Persistence,
	publisher eventbus.EventPublisher,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		executions:  executions,
		rules:       rules,
		templates:   templates,
		schedules:   schedules,
		persistence: p,
		publisher:   publisher,
		validator:   validate,
	}
}

// Register mounts every route under /v1.
func (h *APIHandlers) Register(app *fiber.App) {
	v1 := app.Group("/v1")

	w := v1.Group("/workflows")
	w.Get("/", h.ListWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Post("/:id/validate", h.ValidateWorkflow)
	w.Post("/:id/publish", h.PublishWorkflow)
	w.Post("/:id/archive", h.ArchiveWorkflow)
	w.Post("/:id/trigger", h.TriggerWorkflow)
	w.Get("/:id/executions", h.ListWorkflowExecutions)

	v1.Post("/workflow-groups/:groupId/draft", h.CreateDraftFromPublished)

	r := v1.Group("/rules")
	r.Get("/", h.ListRules)
	r.Post("/", h.CreateRule)
	r.Get("/:id", h.GetRule)
	r.Patch("/:id", h.UpdateRule)
	r.Delete("/:id", h.DeleteRule)
	r.Post("/:id/pause", h.PauseRule)
	r.Post("/:id/resume", h.ResumeRule)
	r.Post("/:id/trigger", h.TriggerRule)

	e := v1.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/approve", h.ApproveExecution)
	e.Post("/:id/reject", h.RejectExecution)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Post("/:id/retry", h.RetryExecution)

	t := v1.Group("/templates")
	t.Get("/", h.ListTemplates)
	t.Post("/:id/instantiate", h.InstantiateTemplate)

	s := v1.Group("/schedules")
	s.Get("/", h.ListSchedules)
	s.Post("/", h.CreateSchedule)
	s.Delete("/:id", h.DeleteSchedule)

	v1.Post("/events", h.PublishEvent)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	workflows, err := h.definitions.List(c.Context(), c.Query("project_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.definitions.Create(c.Context(), &models.WorkflowDefinition{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		Variables:   req.Variables,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.definitions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	updated, err := h.definitions.Update(c.Context(), c.Params("id"), &models.WorkflowDefinition{
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		Variables:   req.Variables,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

// ValidateWorkflow runs graph validation without publishing, returning the
// full issue list.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	workflow, err := h.definitions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.definitions.ValidateGraph(workflow); err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"valid":  false,
				"issues": ve.Issues,
			})
		}

		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"valid": true})
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	published, err := h.definitions.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	archived, err := h.definitions.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

func (h *APIHandlers) CreateDraftFromPublished(c fiber.Ctx) error {
	draft, err := h.definitions.CreateDraftFromPublished(c.Context(), c.Params("groupId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if req.Event == "" {
		req.Event = "manual"
	}

	execution, err := h.executions.TriggerWorkflow(c.Context(), c.Params("id"), req.Event, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggeredResponse{
		ExecutionID: execution.ID,
		Status:      string(execution.Status),
	})
}

func (h *APIHandlers) ListWorkflowExecutions(c fiber.Ctx) error {
	status := models.ExecutionStatus(c.Query("status"))

	executions, err := h.executions.ListByWorkflow(c.Context(), c.Params("id"), status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) ListRules(c fiber.Ctx) error {
	rules, err := h.rules.List(c.Context(), c.Query("project_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rules)
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var req CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.rules.Create(c.Context(), &models.AutomationRule{
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		Conditions:    req.Conditions,
		Actions:       req.Actions,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.rules.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) UpdateRule(c fiber.Ctx) error {
	var req CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	updated, err := h.rules.Update(c.Context(), c.Params("id"), &models.AutomationRule{
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		Conditions:    req.Conditions,
		Actions:       req.Actions,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	if err := h.rules.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PauseRule(c fiber.Ctx) error {
	rule, err := h.rules.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) ResumeRule(c fiber.Ctx) error {
	rule, err := h.rules.Resume(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) TriggerRule(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	execution, err := h.executions.TriggerRule(c.Context(), c.Params("id"), req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggeredResponse{
		ExecutionID: execution.ID,
		Status:      string(execution.Status),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ApproveExecution(c fiber.Ctx) error {
	return h.decideExecution(c, h.executions.Approve)
}

func (h *APIHandlers) RejectExecution(c fiber.Ctx) error {
	return h.decideExecution(c, h.executions.Reject)
}

func (h *APIHandlers) decideExecution(
	c fiber.Ctx,
	decide func(ctx context.Context, executionID, actorID string) (*models.WorkflowExecution, error),
) error {
	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := decide(c.Context(), c.Params("id"), req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	execution, err := h.executions.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) RetryExecution(c fiber.Ctx) error {
	execution, err := h.executions.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggeredResponse{
		ExecutionID: execution.ID,
		Status:      string(execution.Status),
	})
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	templates, err := h.templates.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(templates)
}

func (h *APIHandlers) InstantiateTemplate(c fiber.Ctx) error {
	var req InstantiateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	draft, err := h.templates.Instantiate(c.Context(), c.Params("id"), req.ProjectID, req.Owner)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *APIHandlers) ListSchedules(c fiber.Ctx) error {
	schedules, err := h.schedules.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedules)
}

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.schedules.Create(c.Context(), req.WorkflowID, req.CronExpression)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.schedules.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

/// PublishEvent is the explicit event intake: it puts one domain event on the
// bus for the rule matcher and trigger handling.
func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	var req PublishEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.DomainEvent{
		BaseEvent:   events.NewBaseEvent(events.DomainEventType, req.ProjectID),
		TriggerType: req.TriggerType,
		Payload:     req.Payload,
	}

	if err := h.publisher.Publish(c.Context(), event.ID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": event.ID})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
