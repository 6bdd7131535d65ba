package engine

import (
	"errors"
	"fmt"
)

// ErrStepLimitExceeded marks an execution that ran past its step budget.
// It is fatal: the execution fails and is never retried automatically.
var ErrStepLimitExceeded = errors.New("execution step limit exceeded")

// RoutingError is a graph defect observed at runtime: a node whose outgoing
// connections cannot produce a next node. Validation prevents these for
// published definitions, but the engine still guards.
type RoutingError struct {
	NodeID string
	Reason string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed at node '%s': %s", e.NodeID, e.Reason)
}
