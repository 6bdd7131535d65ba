package services

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/automation/pkg/models"
	"github.com/taskora/automation/pkg/persistence/file"
	"github.com/taskora/automation/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDefinitionService(t *testing.T) (*DefinitionService, *file.Persistence) {
	t.Helper()

	logger := testLogger()
	store := file.NewPersistence(t.TempDir())

	return NewDefinitionService(store, registry.NewDefaultRegistry(logger), nil, logger), store
}

func validGraph() ([]*models.Node, []*models.Connection) {
	nodes := []*models.Node{
		{ID: "start", Type: models.NodeTypeStart},
		{ID: "notify", Type: models.NodeTypeAction, Action: &models.ActionNodeConfig{
			ActionType: "notify",
			Parameters: map[string]any{"message": "task {{.task.id}} moved"},
		}},
		{ID: "end", Type: models.NodeTypeEnd},
	}
	connections := []*models.Connection{
		{ID: "c1", SourceID: "start", TargetID: "notify"},
		{ID: "c2", SourceID: "notify", TargetID: "end"},
	}

	return nodes, connections
}

func draftWorkflow() *models.WorkflowDefinition {
	nodes, connections := validGraph()

	return &models.WorkflowDefinition{
		ProjectID:   "proj-1",
		Name:        "Notify on move",
		Status:      models.WorkflowStatusDraft,
		Nodes:       nodes,
		Connections: connections,
	}
}

func TestCreate_AssignsIdentityAndDraftStatus(t *testing.T) {
	service, _ := newTestDefinitionService(t)

	created, err := service.Create(context.Background(), draftWorkflow())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.WorkflowGroupID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Equal(t, 1, created.Version)
	assert.False(t, created.IsActive)
}

func TestCreate_InvalidRequestRejected(t *testing.T) {
	service, _ := newTestDefinitionService(t)

	workflow := draftWorkflow()
	workflow.Name = "ab" // below min length

	_, err := service.Create(context.Background(), workflow)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestUpdate_OnlyDraftsAreEditable(t *testing.T) {
	service, _ := newTestDefinitionService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftWorkflow())
	require.NoError(t, err)

	created.Description = "updated"
	updated, err := service.Update(ctx, created.ID, created)
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Description)

	_, err = service.Publish(ctx, created.ID)
	require.NoError(t, err)

	_, err = service.Update(ctx, created.ID, created)
	assert.ErrorIs(t, err, ErrNotDraft)
}

func TestPublish_LifecycleAndVersioning(t *testing.T) {
	service, store := newTestDefinitionService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftWorkflow())
	require.NoError(t, err)

	published, err := service.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	assert.Equal(t, 1, published.Version)
	assert.True(t, published.IsActive)
	require.NotNil(t, published.PublishedAt)

	// Publishing is one-shot per version.
	_, err = service.Publish(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotDraft)

	// A new draft in the same group publishes as the next version and
	// archives the previous one.
	draft, err := service.CreateDraftFromPublished(ctx, published.WorkflowGroupID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, draft.Status)
	assert.Equal(t, 2, draft.Version)
	assert.NotEqual(t, published.ID, draft.ID)

	second, err := service.Publish(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	previous, err := store.Workflows().GetByID(ctx, published.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusArchived, previous.Status)
	assert.False(t, previous.IsActive)

	current, err := store.Workflows().PublishedByGroup(ctx, published.WorkflowGroupID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
}

func TestPublishedByID_ServesFromCache(t *testing.T) {
	service, store := newTestDefinitionService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftWorkflow())
	require.NoError(t, err)

	published, err := service.Publish(ctx, created.ID)
	require.NoError(t, err)

	first, err := service.PublishedByID(ctx, published.ID)
	require.NoError(t, err)
	assert.Equal(t, published.ID, first.ID)

	// Mutate the stored row behind the service's back: a cache hit must
	// still serve the copy read on the first call.
	stored, err := store.Workflows().GetByID(ctx, published.ID)
	require.NoError(t, err)
	stored.Name = "renamed out of band"
	require.NoError(t, store.Workflows().Save(ctx, stored))

	second, err := service.PublishedByID(ctx, published.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
}

func TestPublishedByID_RefusesDraftsAndArchived(t *testing.T) {
	service, _ := newTestDefinitionService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftWorkflow())
	require.NoError(t, err)

	_, err = service.PublishedByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotPublished)

	published, err := service.Publish(ctx, created.ID)
	require.NoError(t, err)

	_, err = service.PublishedByID(ctx, published.ID)
	require.NoError(t, err)

	// Archiving evicts the cached entry, so the next lookup sees the
	// archived status instead of a stale published copy.
	_, err = service.Archive(ctx, published.ID)
	require.NoError(t, err)

	_, err = service.PublishedByID(ctx, published.ID)
	assert.ErrorIs(t, err, ErrNotPublished)
}

func TestPublish_InvalidGraphRejectedWithIssues(t *testing.T) {
	service, _ := newTestDefinitionService(t)
	ctx := context.Background()

	workflow := draftWorkflow()
	workflow.Connections = []*models.Connection{
		{ID: "c1", SourceID: "start", TargetID: "ghost"}, // unknown target
	}

	created, err := service.Create(ctx, workflow)
	require.NoError(t, err)

	_, err = service.Publish(ctx, created.ID)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.NotEmpty(t, validationErr.Issues)
	assert.True(t, IsValidationError(err))
}

func TestArchive_PublishedOnly(t *testing.T) {
	service, _ := newTestDefinitionService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftWorkflow())
	require.NoError(t, err)

	// Drafts cannot be archived.
	_, err = service.Archive(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotPublished)

	published, err := service.Publish(ctx, created.ID)
	require.NoError(t, err)

	archived, err := service.Archive(ctx, published.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)

	_, err = service.Archive(ctx, published.ID)
	assert.ErrorIs(t, err, ErrAlreadyArchived)
}

func TestValidateGraph_Issues(t *testing.T) {
	service, _ := newTestDefinitionService(t)

	issuesOf := func(t *testing.T, workflow *models.WorkflowDefinition) []ValidationIssue {
		t.Helper()

		err := service.ValidateGraph(workflow)
		require.Error(t, err)

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)

		return validationErr.Issues
	}

	t.Run("duplicate node ids", func(t *testing.T) {
		nodes, connections := validGraph()
		nodes = append(nodes, &models.Node{ID: "start", Type: models.NodeTypeStart})

		issues := issuesOf(t, &models.WorkflowDefinition{Nodes: nodes, Connections: connections})
		assert.NotEmpty(t, issues)
	})

	t.Run("missing start node", func(t *testing.T) {
		nodes, connections := validGraph()
		issues := issuesOf(t, &models.WorkflowDefinition{Nodes: nodes[1:], Connections: connections})
		assert.NotEmpty(t, issues)
	})

	t.Run("missing end node", func(t *testing.T) {
		nodes, connections := validGraph()
		issues := issuesOf(t, &models.WorkflowDefinition{Nodes: nodes[:2], Connections: connections[:1]})
		assert.NotEmpty(t, issues)
	})

	t.Run("unknown action type", func(t *testing.T) {
		nodes, connections := validGraph()
		nodes[1].Action.ActionType = "teleport"

		issues := issuesOf(t, &models.WorkflowDefinition{Nodes: nodes, Connections: connections})
		assert.NotEmpty(t, issues)
	})

	t.Run("action config failing schema", func(t *testing.T) {
		nodes, connections := validGraph()
		nodes[1].Action.Parameters = map[string]any{} // notify requires message

		issues := issuesOf(t, &models.WorkflowDefinition{Nodes: nodes, Connections: connections})
		assert.NotEmpty(t, issues)
	})

	t.Run("decision without default", func(t *testing.T) {
		workflow := &models.WorkflowDefinition{
			Nodes: []*models.Node{
				{ID: "start", Type: models.NodeTypeStart},
				{ID: "dec", Type: models.NodeTypeDecision},
				{ID: "end", Type: models.NodeTypeEnd},
			},
			Connections: []*models.Connection{
				{ID: "c1", SourceID: "start", TargetID: "dec"},
				{ID: "c2", SourceID: "dec", TargetID: "end", Condition: &models.ConditionExpression{
					Op: models.OpExists, Left: "x",
				}},
			},
		}

		issues := issuesOf(t, workflow)
		assert.NotEmpty(t, issues)
	})

	t.Run("approval without approved edge", func(t *testing.T) {
		workflow := &models.WorkflowDefinition{
			Nodes: []*models.Node{
				{ID: "start", Type: models.NodeTypeStart},
				{ID: "gate", Type: models.NodeTypeApproval, Approval: &models.ApprovalNodeConfig{
					Approvers: []string{"lead-1"},
				}},
				{ID: "end", Type: models.NodeTypeEnd},
			},
			Connections: []*models.Connection{
				{ID: "c1", SourceID: "start", TargetID: "gate"},
				{ID: "c2", SourceID: "gate", TargetID: "end", Role: models.RoleRejected},
			},
		}

		issues := issuesOf(t, workflow)
		assert.NotEmpty(t, issues)
	})

	t.Run("unreachable node", func(t *testing.T) {
		nodes, connections := validGraph()
		nodes = append(nodes, &models.Node{ID: "island", Type: models.NodeTypeAction, Action: &models.ActionNodeConfig{
			ActionType: "notify",
			Parameters: map[string]any{"message": "never"},
		}})

		issues := issuesOf(t, &models.WorkflowDefinition{Nodes: nodes, Connections: connections})
		assert.NotEmpty(t, issues)
	})

	t.Run("invalid condition expression", func(t *testing.T) {
		nodes, connections := validGraph()
		connections[0].Condition = &models.ConditionExpression{Op: "matches", Left: "x"}

		issues := issuesOf(t, &models.WorkflowDefinition{Nodes: nodes, Connections: connections})
		assert.NotEmpty(t, issues)
	})

	t.Run("valid graph passes", func(t *testing.T) {
		nodes, connections := validGraph()
		require.NoError(t, service.ValidateGraph(&models.WorkflowDefinition{Nodes: nodes, Connections: connections}))
	})
}
