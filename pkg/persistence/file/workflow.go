package file

import (
	"context"
	"sort"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence"
)

const workflowsDir = "workflows"

// WorkflowRepository stores workflow definitions as JSON documents.
type WorkflowRepository struct {
	store *Persistence
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	return r.store.write(workflowsDir, workflow.ID, workflow)
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	var workflow models.WorkflowDefinition

	err := r.store.read(workflowsDir, id, &workflow, persistence.ErrWorkflowNotFound)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, projectID string) ([]*models.WorkflowDefinition, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(all))

	for _, w := range all {
		if projectID == "" || w.ProjectID == projectID {
			workflows = append(workflows, w)
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) ListByGroup(ctx context.Context, groupID string) ([]*models.WorkflowDefinition, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	var versions []*models.WorkflowDefinition

	for _, w := range all {
		if w.WorkflowGroupID == groupID {
			versions = append(versions, w)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version < versions[j].Version
	})

	return versions, nil
}

func (r *WorkflowRepository) PublishedByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	versions, err := r.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	for _, w := range versions {
		if w.Status == models.WorkflowStatusPublished {
			return w, nil
		}
	}

	return nil, persistence.ErrPublishedWorkflowNotFound
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	return r.store.delete(workflowsDir, id, persistence.ErrWorkflowNotFound)
}

func (r *WorkflowRepository) all(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	ids, err := r.store.ids(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}
