// Package events defines the domain and execution lifecycle events flowing
// over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "taskora.automation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// DomainEventType carries product events (task created, status changed)
	// into the rule matcher and trigger handling.
	DomainEventType EventType = "domain.event"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"

	WorkflowPublishedEvent EventType = "workflow.published"
	WorkflowArchivedEvent  EventType = "workflow.archived"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ProjectID string         `json:"project_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, projectID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ProjectID: projectID,
	}
}

// DomainEvent is one product event: a trigger type plus its payload. The rule
// matcher and workflow trigger handling subscribe to these.
type DomainEvent struct {
	BaseEvent

	TriggerType string         `json:"trigger_type"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (e DomainEvent) GetType() EventType {
	return DomainEventType
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id,omitempty"`
	RuleID      string `json:"rule_id,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id,omitempty"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// ExecutionSuspended is published when an execution parks on an approval or
// a retry timer. Reason is "approval" or "retry".
type ExecutionSuspended struct {
	BaseEvent

	ExecutionID string     `json:"execution_id"`
	NodeID      string     `json:"node_id"`
	Reason      string     `json:"reason"`
	WakeAt      *time.Time `json:"wake_at,omitempty"`
}

func (e ExecutionSuspended) GetType() EventType {
	return ExecutionSuspendedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type WorkflowPublished struct {
	BaseEvent

	WorkflowID      string `json:"workflow_id"`
	WorkflowGroupID string `json:"workflow_group_id"`
	Version         int    `json:"version"`
}

func (e WorkflowPublished) GetType() EventType {
	return WorkflowPublishedEvent
}

type WorkflowArchived struct {
	BaseEvent

	WorkflowID      string `json:"workflow_id"`
	WorkflowGroupID string `json:"workflow_group_id"`
}

func (e WorkflowArchived) GetType() EventType {
	return WorkflowArchivedEvent
}
