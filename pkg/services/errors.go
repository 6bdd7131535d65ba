// Package services implements the application operations on top of the
// persistence layer: definition lifecycle, execution control, rules and
// templates.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Business logic errors. These map to client errors (4xx) at the API layer.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrWorkflowNil     = errors.New("workflow cannot be nil")
	ErrUnknownNodeType = errors.New("unknown node type")

	// Lifecycle conflicts (409 Conflict).
	ErrNotDraft           = errors.New("workflow is not a draft")
	ErrNotPublished       = errors.New("workflow is not published")
	ErrAlreadyArchived    = errors.New("workflow is already archived")
	ErrRuleNotActive      = errors.New("rule is not active")
	ErrExecutionTerminal  = errors.New("execution is already terminal")
	ErrExecutionNotFailed = errors.New("only failed executions can be retried")
	ErrApprovalNotPending = errors.New("execution has no pending approval")
	ErrNotAnApprover      = errors.New("actor is not in the approver set")
)

// ValidationIssue is one defect found by graph validation.
type ValidationIssue struct {
	NodeID  string `json:"node_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError carries every issue found in one validation pass, so the
// author sees all defects at once rather than one per round trip.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.NodeID != "" {
			messages = append(messages, fmt.Sprintf("node '%s': %s", issue.NodeID, issue.Message))
		} else {
			messages = append(messages, issue.Message)
		}
	}

	return "workflow validation failed: " + strings.Join(messages, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// ServiceError wraps service-level errors with the failing operation.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether the error should map to HTTP 400.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve) || errors.Is(err, ErrInvalidRequest)
}

// IsConflictError reports whether the error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrNotDraft) ||
		errors.Is(err, ErrNotPublished) ||
		errors.Is(err, ErrAlreadyArchived) ||
		errors.Is(err, ErrRuleNotActive) ||
		errors.Is(err, ErrExecutionTerminal) ||
		errors.Is(err, ErrExecutionNotFailed) ||
		errors.Is(err, ErrApprovalNotPending)
}

// IsForbiddenError reports whether the error should map to HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotAnApprover)
}
