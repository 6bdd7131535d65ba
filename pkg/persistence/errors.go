// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow definition was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrPublishedWorkflowNotFound indicates no published version exists for the group.
	ErrPublishedWorkflowNotFound = errors.New("published workflow not found")

	// ErrRuleNotFound indicates an automation rule was not found.
	ErrRuleNotFound = errors.New("automation rule not found")

	// ErrExecutionNotFound indicates an execution record was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionClaimed indicates another worker already claimed the
	// execution, or its status moved out of a resumable state. Callers
	// discard their claim; the conflict is never surfaced to users.
	ErrExecutionClaimed = errors.New("execution already claimed")

	// ErrExecutionStale indicates a conditional write lost against a
	// concurrent transition on the same execution row. The caller's copy
	// is outdated and must be discarded, never written back.
	ErrExecutionStale = errors.New("execution changed concurrently")

	// ErrTemplateNotFound indicates a workflow template was not found.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrScheduleNotFound indicates a trigger schedule was not found.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g. "GetByID", "Claim")
	ID  string // Record ID if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsPublishedWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrPublishedWorkflowNotFound)
}

func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsExecutionClaimed(err error) bool {
	return errors.Is(err, ErrExecutionClaimed)
}

func IsExecutionStale(err error) bool {
	return errors.Is(err, ErrExecutionStale)
}

func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}
