package models

import "time"

// NodeType is the closed set of step variants a workflow graph may contain.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeEnd      NodeType = "end"
	NodeTypeAction   NodeType = "action"
	NodeTypeDecision NodeType = "decision"
	NodeTypeApproval NodeType = "approval"
)

// Node is one step in a workflow graph. Type-specific configuration lives in
// the per-variant struct matching the type; the other config fields are nil.
// Decision nodes carry no config of their own: branching lives on the
// conditions of their outgoing connections.
type Node struct {
	ID        string              `json:"id"                 validate:"required"`
	Type      NodeType            `json:"type"               validate:"required"`
	Name      string              `json:"name"`
	Action    *ActionNodeConfig   `json:"action,omitempty"`
	Approval  *ApprovalNodeConfig `json:"approval,omitempty"`
	PositionX int                 `json:"position_x"`
	PositionY int                 `json:"position_y"`
}

// ActionNodeConfig configures an action node: which registered handler to
// invoke and with which parameters. Parameter values support templating
// against the execution context.
type ActionNodeConfig struct {
	ActionType string         `json:"action_type" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timeout    time.Duration  `json:"timeout,omitempty"`
	MaxRetries int            `json:"max_retries"`
}

// ApprovalNodeConfig configures an approval node. When AutoApprove is set the
// engine records an approval and continues without suspending.
type ApprovalNodeConfig struct {
	Approvers   []string      `json:"approvers"`
	AutoApprove bool          `json:"auto_approve"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ConnectionRole distinguishes special outgoing edges. Decision nodes use
// RoleDefault as the fallback branch; approval nodes route their outcome
// along RoleApproved, RoleRejected and RoleTimeout edges.
type ConnectionRole string

const (
	RoleNone     ConnectionRole = ""
	RoleDefault  ConnectionRole = "default"
	RoleApproved ConnectionRole = "approved"
	RoleRejected ConnectionRole = "rejected"
	RoleTimeout  ConnectionRole = "timeout"
)

// Connection is a directed edge between two nodes, optionally guarded by a
// condition expression evaluated against the execution context.
type Connection struct {
	ID        string               `json:"id"`
	SourceID  string               `json:"source_id" validate:"required"`
	TargetID  string               `json:"target_id" validate:"required"`
	Role      ConnectionRole       `json:"role,omitempty"`
	Condition *ConditionExpression `json:"condition,omitempty"`
}
