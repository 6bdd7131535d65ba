package services

import (
	"fmt"

	"github.com/taskora/automation/pkg/models"
)

// ValidateGraph checks a definition's graph for the defects that would
// otherwise surface as runtime routing failures: duplicate node IDs, dangling
// connections, missing start node, unreachable end, per-variant config holes
// and malformed condition expressions. All issues are collected into one
// ValidationError.
func (s *DefinitionService) ValidateGraph(workflow *models.WorkflowDefinition) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	var issues []ValidationIssue

	nodes := make(map[string]*models.Node, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			issues = append(issues, ValidationIssue{Message: "node without id"})

			continue
		}

		if _, dup := nodes[node.ID]; dup {
			issues = append(issues, ValidationIssue{NodeID: node.ID, Message: "duplicate node id"})

			continue
		}

		nodes[node.ID] = node
	}

	issues = append(issues, s.validateConnections(workflow, nodes)...)
	issues = append(issues, s.validateNodeConfigs(workflow)...)
	issues = append(issues, validateTopology(workflow, nodes)...)

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	return nil
}

func (s *DefinitionService) validateConnections(workflow *models.WorkflowDefinition, nodes map[string]*models.Node) []ValidationIssue {
	var issues []ValidationIssue

	for _, conn := range workflow.Connections {
		if _, ok := nodes[conn.SourceID]; !ok {
			issues = append(issues, ValidationIssue{
				Message: fmt.Sprintf("connection '%s' references unknown source '%s'", conn.ID, conn.SourceID),
			})
		}

		if _, ok := nodes[conn.TargetID]; !ok {
			issues = append(issues, ValidationIssue{
				Message: fmt.Sprintf("connection '%s' references unknown target '%s'", conn.ID, conn.TargetID),
			})
		}

		if conn.Condition != nil {
			if err := conn.Condition.Validate(); err != nil {
				issues = append(issues, ValidationIssue{
					Message: fmt.Sprintf("connection '%s' condition: %v", conn.ID, err),
				})
			}
		}
	}

	return issues
}

func (s *DefinitionService) validateNodeConfigs(workflow *models.WorkflowDefinition) []ValidationIssue {
	var issues []ValidationIssue

	startCount := 0
	endCount := 0

	for _, node := range workflow.Nodes {
		switch node.Type {
		case models.NodeTypeStart:
			startCount++
		case models.NodeTypeEnd:
			endCount++
		case models.NodeTypeAction:
			issues = append(issues, s.validateActionNode(node)...)
		case models.NodeTypeDecision:
			issues = append(issues, validateDecisionNode(workflow, node)...)
		case models.NodeTypeApproval:
			issues = append(issues, validateApprovalNode(workflow, node)...)
		default:
			issues = append(issues, ValidationIssue{
				NodeID:  node.ID,
				Message: fmt.Sprintf("%v: '%s'", ErrUnknownNodeType, node.Type),
			})
		}
	}

	if startCount != 1 {
		issues = append(issues, ValidationIssue{
			Message: fmt.Sprintf("workflow must have exactly one start node, found %d", startCount),
		})
	}

	if endCount == 0 {
		issues = append(issues, ValidationIssue{Message: "workflow must have at least one end node"})
	}

	return issues
}

func (s *DefinitionService) validateActionNode(node *models.Node) []ValidationIssue {
	if node.Action == nil {
		return []ValidationIssue{{NodeID: node.ID, Field: "action", Message: "action node requires action config"}}
	}

	var issues []ValidationIssue

	if node.Action.ActionType == "" {
		issues = append(issues, ValidationIssue{NodeID: node.ID, Field: "action_type", Message: "action type is required"})
	} else if s.registry != nil {
		if err := s.registry.ValidateActionConfig(node.Action.ActionType, node.Action.Parameters); err != nil {
			issues = append(issues, ValidationIssue{NodeID: node.ID, Field: "parameters", Message: err.Error()})
		}
	}

	if node.Action.MaxRetries < 0 {
		issues = append(issues, ValidationIssue{NodeID: node.ID, Field: "max_retries", Message: "max retries cannot be negative"})
	}

	return issues
}

func validateDecisionNode(workflow *models.WorkflowDefinition, node *models.Node) []ValidationIssue {
	var issues []ValidationIssue

	outgoing := workflow.Outgoing(node.ID)
	if len(outgoing) == 0 {
		issues = append(issues, ValidationIssue{NodeID: node.ID, Message: "decision node has no outgoing connections"})
	}

	defaults := 0

	for _, conn := range outgoing {
		if conn.Role == models.RoleDefault {
			defaults++
		}
	}

	if defaults == 0 {
		issues = append(issues, ValidationIssue{NodeID: node.ID, Message: "decision node requires a default connection"})
	}

	if defaults > 1 {
		issues = append(issues, ValidationIssue{NodeID: node.ID, Message: "decision node has more than one default connection"})
	}

	return issues
}

func validateApprovalNode(workflow *models.WorkflowDefinition, node *models.Node) []ValidationIssue {
	if node.Approval == nil {
		return []ValidationIssue{{NodeID: node.ID, Field: "approval", Message: "approval node requires approval config"}}
	}

	var issues []ValidationIssue

	if len(node.Approval.Approvers) == 0 && !node.Approval.AutoApprove {
		issues = append(issues, ValidationIssue{NodeID: node.ID, Field: "approvers", Message: "approval node requires approvers or auto-approve"})
	}

	if workflow.OutgoingByRole(node.ID, models.RoleApproved) == nil {
		issues = append(issues, ValidationIssue{NodeID: node.ID, Message: "approval node requires an 'approved' connection"})
	}

	// Rejected and timeout connections are optional: without them the
	// execution fails on that outcome.

	return issues
}

// validateTopology walks the graph from the start node and requires at least
// one end node to be reachable.
func validateTopology(workflow *models.WorkflowDefinition, nodes map[string]*models.Node) []ValidationIssue {
	start := workflow.StartNode()
	if start == nil {
		return nil // already reported by the node count check
	}

	visited := make(map[string]bool, len(nodes))
	frontier := []string{start.ID}
	endReachable := false

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]

		if visited[id] {
			continue
		}

		visited[id] = true

		node, ok := nodes[id]
		if !ok {
			continue
		}

		if node.Type == models.NodeTypeEnd {
			endReachable = true
		}

		for _, conn := range workflow.Outgoing(id) {
			frontier = append(frontier, conn.TargetID)
		}
	}

	var issues []ValidationIssue

	if !endReachable {
		issues = append(issues, ValidationIssue{Message: "no end node is reachable from the start node"})
	}

	for id := range nodes {
		if !visited[id] {
			issues = append(issues, ValidationIssue{NodeID: id, Message: "node is unreachable from the start node"})
		}
	}

	return issues
}
