package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/taskora/automation/pkg/eventbus"
	"github.com/taskora/automation/pkg/events"
	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
	"github.com/taskora/automation/pkg/registry"
)

const (
	publishedCacheTTL     = 30 * time.Second
	publishedCacheCleanup = 5 * time.Minute
)

// DefinitionService owns the workflow definition lifecycle: draft →
// published → archived. Published versions are immutable; editing spawns a
// new draft in the same group. Publishing never touches in-flight executions
// because they bind to a definition ID, not the group.
type DefinitionService struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger

	// published definitions are read on every trigger; a short TTL cache
	// keeps that path off the database.
	publishedCache *cache.Cache
}

func NewDefinitionService(
	p persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *DefinitionService {
	return &DefinitionService{
		persistence:    p,
		registry:       reg,
		publisher:      publisher,
		validate:       validator.New(),
		logger:         logger.With("module", "definition_service"),
		publishedCache: cache.New(publishedCacheTTL, publishedCacheCleanup),
	}
}

// Create stores a new draft definition as version 1 of a fresh group.
func (s *DefinitionService) Create(ctx context.Context, workflow *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := time.Now().UTC()

	workflow.ID = uuid.New().String()
	workflow.WorkflowGroupID = uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.Version = 1
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.PublishedAt = nil
	workflow.ArchivedAt = nil

	if err := s.validate.Struct(workflow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, &ServiceError{Op: "Create", Err: err}
	}

	s.logger.InfoContext(ctx, "Created draft workflow",
		"workflow_id", workflow.ID,
		"group_id", workflow.WorkflowGroupID)

	return workflow, nil
}

// Update replaces the graph of a draft. Published and archived versions are
// immutable.
func (s *DefinitionService) Update(ctx context.Context, id string, updated *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	existing, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("workflow '%s': %w", id, ErrNotDraft)
	}

	existing.Name = updated.Name
	existing.Description = updated.Description
	existing.Nodes = updated.Nodes
	existing.Connections = updated.Connections
	existing.Variables = updated.Variables
	existing.UpdatedAt = time.Now().UTC()

	if err := s.validate.Struct(existing); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if err := s.persistence.Workflows().Save(ctx, existing); err != nil {
		return nil, &ServiceError{Op: "Update", Err: err}
	}

	return existing, nil
}

func (s *DefinitionService) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.persistence.Workflows().GetByID(ctx, id)
}

func (s *DefinitionService) List(ctx context.Context, projectID string) ([]*models.WorkflowDefinition, error) {
	return s.persistence.Workflows().List(ctx, projectID)
}

// PublishedByID returns a published definition by its version id, from cache
// when fresh. Only published rows are cached: they are immutable, so a hit
// can never serve a stale graph. This is the read on every trigger.
func (s *DefinitionService) PublishedByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	if cached, found := s.publishedCache.Get(id); found {
		if workflow, ok := cached.(*models.WorkflowDefinition); ok {
			return workflow, nil
		}
	}

	workflow, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("workflow '%s': %w", id, ErrNotPublished)
	}

	s.publishedCache.Set(id, workflow, cache.DefaultExpiration)

	return workflow, nil
}

// Publish validates a draft and makes it the group's published version,
// archiving the previous one. The published version number is always one
// past the previously published version.
func (s *DefinitionService) Publish(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("workflow '%s': %w", id, ErrNotDraft)
	}

	if err := s.ValidateGraph(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	previous, err := s.persistence.Workflows().PublishedByGroup(ctx, workflow.WorkflowGroupID)
	switch {
	case err == nil:
		workflow.Version = previous.Version + 1

		previous.Status = models.WorkflowStatusArchived
		previous.IsActive = false
		previous.ArchivedAt = &now

		if err := s.persistence.Workflows().Save(ctx, previous); err != nil {
			return nil, &ServiceError{Op: "Publish", Err: err}
		}

		s.publishedCache.Delete(previous.ID)
	case persistence.IsPublishedWorkflowNotFound(err):
		workflow.Version = 1
	default:
		return nil, &ServiceError{Op: "Publish", Err: err}
	}

	workflow.Status = models.WorkflowStatusPublished
	workflow.IsActive = true
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, &ServiceError{Op: "Publish", Err: err}
	}

	s.logger.InfoContext(ctx, "Published workflow",
		"workflow_id", workflow.ID,
		"group_id", workflow.WorkflowGroupID,
		"version", workflow.Version)

	s.publishEvent(ctx, workflow.ID, events.WorkflowPublished{
		BaseEvent:       events.NewBaseEvent(events.WorkflowPublishedEvent, workflow.ProjectID),
		WorkflowID:      workflow.ID,
		WorkflowGroupID: workflow.WorkflowGroupID,
		Version:         workflow.Version,
	})

	return workflow, nil
}

// Archive takes a published version out of service. In-flight executions
// keep running against it; only new triggers are refused.
func (s *DefinitionService) Archive(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, fmt.Errorf("workflow '%s': %w", id, ErrAlreadyArchived)
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("workflow '%s': %w", id, ErrNotPublished)
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusArchived
	workflow.IsActive = false
	workflow.ArchivedAt = &now
	workflow.UpdatedAt = now

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, &ServiceError{Op: "Archive", Err: err}
	}

	s.publishedCache.Delete(workflow.ID)

	s.publishEvent(ctx, workflow.ID, events.WorkflowArchived{
		BaseEvent:       events.NewBaseEvent(events.WorkflowArchivedEvent, workflow.ProjectID),
		WorkflowID:      workflow.ID,
		WorkflowGroupID: workflow.WorkflowGroupID,
	})

	return workflow, nil
}

// CreateDraftFromPublished copies the published version of a group into a
// new editable draft.
func (s *DefinitionService) CreateDraftFromPublished(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	published, err := s.persistence.Workflows().PublishedByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	draft := *published
	draft.ID = uuid.New().String()
	draft.Status = models.WorkflowStatusDraft
	draft.Version = published.Version + 1
	draft.IsActive = false
	draft.CreatedAt = now
	draft.UpdatedAt = now
	draft.PublishedAt = nil
	draft.ArchivedAt = nil

	if err := s.persistence.Workflows().Save(ctx, &draft); err != nil {
		return nil, &ServiceError{Op: "CreateDraftFromPublished", Err: err}
	}

	return &draft, nil
}

func (s *DefinitionService) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
