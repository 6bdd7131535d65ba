package models

import "time"

// ExecutionStatus is the state of one workflow or rule execution.
type ExecutionStatus string

const (
	ExecutionStatusPending         ExecutionStatus = "pending"
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusWaitingApproval ExecutionStatus = "waiting_approval"
	ExecutionStatusRetrying        ExecutionStatus = "retrying"
	ExecutionStatusCompleted       ExecutionStatus = "completed"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusCancelled       ExecutionStatus = "cancelled"
)

// Terminal reports whether no further engine work may happen on the execution.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}

	return false
}

// Resumable reports whether a worker may claim the execution. The claim is a
// compare-and-swap from one of these states to running, so at most one worker
// ever drives a given execution.
func (s ExecutionStatus) Resumable() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusWaitingApproval, ExecutionStatusRetrying:
		return true
	}

	return false
}

// ExecutionLogEntry records one visited node. Every failure is attributed to
// an entry here; nothing is silently dropped.
type ExecutionLogEntry struct {
	NodeID     string         `json:"node_id"`
	NodeType   NodeType       `json:"node_type"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ApprovalDecision is the recorded outcome of an approval node.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
	DecisionTimeout  ApprovalDecision = "timeout"
)

// ApprovalState is persisted while an execution is suspended on an approval
// node, and afterwards as an audit record of the decision.
type ApprovalState struct {
	NodeID      string           `json:"node_id"`
	Approvers   []string         `json:"approvers"`
	RequestedAt time.Time        `json:"requested_at"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Decision    ApprovalDecision `json:"decision,omitempty"`
	DecidedBy   string           `json:"decided_by,omitempty"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
}

// PendingFor reports whether the actor may decide this approval.
func (a *ApprovalState) PendingFor(actorID string) bool {
	if a == nil || a.Decision != "" {
		return false
	}

	if len(a.Approvers) == 0 {
		return true
	}

	for _, id := range a.Approvers {
		if id == actorID {
			return true
		}
	}

	return false
}

// WorkflowExecution is one run of a workflow or rule against a triggering
// event. Suspended executions hold no worker or lock: they are inert rows
// woken by an approval response or by the scheduler once NextWakeAt elapses.
type WorkflowExecution struct {
	ID           string              `json:"id"`
	WorkflowID   string              `json:"workflow_id,omitempty"` // Bound definition version, not the group
	RuleID       string              `json:"rule_id,omitempty"`
	ProjectID    string              `json:"project_id"`
	TriggerEvent string              `json:"trigger_event"`
	Context      map[string]any      `json:"context"`
	Status       ExecutionStatus     `json:"status"`
	Log          []ExecutionLogEntry `json:"log"`

	// CurrentNodeID is the resume point: the node the engine re-enters after
	// a suspension, never the start node.
	CurrentNodeID string `json:"current_node_id,omitempty"`
	Steps         int    `json:"steps"`

	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	NextWakeAt *time.Time `json:"next_wake_at,omitempty"` // retry timer or approval deadline

	Approval *ApprovalState `json:"approval,omitempty"`

	WorkerID     string         `json:"worker_id,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// AppendLog adds an entry to the execution log.
func (e *WorkflowExecution) AppendLog(entry ExecutionLogEntry) {
	e.Log = append(e.Log, entry)
}
