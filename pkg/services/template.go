package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

// TemplateService lists workflow templates and turns them into drafts.
type TemplateService struct {
	persistence persistence.Persistence
	definitions *DefinitionService
	logger      *slog.Logger
}

func NewTemplateService(p persistence.Persistence, definitions *DefinitionService, logger *slog.Logger) *TemplateService {
	return &TemplateService{
		persistence: p,
		definitions: definitions,
		logger:      logger.With("module", "template_service"),
	}
}

func (s *TemplateService) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return s.persistence.Templates().List(ctx)
}

func (s *TemplateService) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return s.persistence.Templates().GetByID(ctx, id)
}

func (s *TemplateService) Save(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template.ID == "" {
		template.ID = uuid.New().String()
		template.CreatedAt = time.Now().UTC()
	}

	if err := s.persistence.Templates().Save(ctx, template); err != nil {
		return nil, &ServiceError{Op: "Save", Err: err}
	}

	return template, nil
}

// Instantiate copies a template's graph into a new draft definition in a
// fresh workflow group.
func (s *TemplateService) Instantiate(ctx context.Context, templateID, projectID, owner string) (*models.WorkflowDefinition, error) {
	template, err := s.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	draft := &models.WorkflowDefinition{
		ProjectID:   projectID,
		Name:        template.Name,
		Description: template.Description,
		Nodes:       template.Nodes,
		Connections: template.Connections,
		Owner:       owner,
	}

	created, err := s.definitions.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Instantiated template",
		"template_id", templateID,
		"workflow_id", created.ID)

	return created, nil
}
