// Package models defines the core domain models for the workflow automation engine.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not executable
	WorkflowStatusPublished WorkflowStatus = "published" // Immutable, executable
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Historical, no new executions
)

// WorkflowDefinition is one version of a user-authored workflow graph.
// Published versions are immutable; edits create a new draft version in the
// same group. Executions bind to a definition ID, never to the group, so
// publishing a new version never affects in-flight executions.
type WorkflowDefinition struct {
	ID              string         `json:"id"`
	WorkflowGroupID string         `json:"workflow_group_id"` // Stable ID linking all versions
	ProjectID       string         `json:"project_id"         validate:"required"`
	Name            string         `json:"name"               validate:"required,min=3"`
	Description     string         `json:"description"`
	Status          WorkflowStatus `json:"status"             validate:"required"`
	Version         int            `json:"version"`
	Nodes           []*Node        `json:"nodes"`
	Connections     []*Connection  `json:"connections"`
	Variables       map[string]any `json:"variables,omitempty"`
	IsActive        bool           `json:"is_active"`
	Owner           string         `json:"owner"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	PublishedAt     *time.Time     `json:"published_at,omitempty"`
	ArchivedAt      *time.Time     `json:"archived_at,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (w *WorkflowDefinition) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// StartNode returns the single start node, or nil when the graph has none.
func (w *WorkflowDefinition) StartNode() *Node {
	for _, n := range w.Nodes {
		if n.Type == NodeTypeStart {
			return n
		}
	}

	return nil
}

// Outgoing returns the connections leaving a node in declared order.
// Declared order matters: decision nodes follow the first matching branch.
func (w *WorkflowDefinition) Outgoing(nodeID string) []*Connection {
	var out []*Connection

	for _, c := range w.Connections {
		if c.SourceID == nodeID {
			out = append(out, c)
		}
	}

	return out
}

// OutgoingByRole returns the first outgoing connection carrying the given role.
func (w *WorkflowDefinition) OutgoingByRole(nodeID string, role ConnectionRole) *Connection {
	for _, c := range w.Connections {
		if c.SourceID == nodeID && c.Role == role {
			return c
		}
	}

	return nil
}
