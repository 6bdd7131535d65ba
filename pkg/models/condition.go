// Package models provides condition expression evaluation for workflow branching.
package models

import (
	"fmt"
	"strings"
)

// ConditionOperator is the closed set of comparison operators.
type ConditionOperator string

const (
	OpEqual          ConditionOperator = "eq"
	OpNotEqual       ConditionOperator = "neq"
	OpGreater        ConditionOperator = "gt"
	OpGreaterOrEqual ConditionOperator = "gte"
	OpLess           ConditionOperator = "lt"
	OpLessOrEqual    ConditionOperator = "lte"
	OpContains       ConditionOperator = "contains"
	OpExists         ConditionOperator = "exists"
)

// Expression tree limits, enforced at definition validation time so that
// evaluation never has to reject input.
const (
	MaxConditionDepth = 16
	MaxConditionTerms = 128
)

// ConditionExpression is a declarative boolean tree evaluated against the
// execution context. Exactly one of All, Any, Not or Op is set per node.
// It is a closed grammar on purpose: conditions are data, never code, so a
// malicious author can at worst make a branch evaluate to false.
type ConditionExpression struct {
	All []*ConditionExpression `json:"all,omitempty"` // conjunction
	Any []*ConditionExpression `json:"any,omitempty"` // disjunction
	Not *ConditionExpression   `json:"not,omitempty"`

	Op        ConditionOperator `json:"op,omitempty"`
	Left      string            `json:"left,omitempty"`       // dotted path into the context
	Right     any               `json:"right,omitempty"`      // literal operand
	RightPath string            `json:"right_path,omitempty"` // path operand, wins over Right
}

// Validate checks the expression shape and size limits. Evaluation assumes a
// validated tree; malformed trees are rejected here, at definition
// validation time, never at run time.
func (e *ConditionExpression) Validate() error {
	terms := 0

	return e.validate(1, &terms)
}

func (e *ConditionExpression) validate(depth int, terms *int) error {
	if e == nil {
		return nil
	}

	if depth > MaxConditionDepth {
		return fmt.Errorf("condition exceeds maximum depth of %d", MaxConditionDepth)
	}

	*terms++
	if *terms > MaxConditionTerms {
		return fmt.Errorf("condition exceeds maximum size of %d terms", MaxConditionTerms)
	}

	set := 0
	if len(e.All) > 0 {
		set++
	}

	if len(e.Any) > 0 {
		set++
	}

	if e.Not != nil {
		set++
	}

	if e.Op != "" {
		set++
	}

	if set != 1 {
		return fmt.Errorf("condition node must set exactly one of all/any/not/op, got %d", set)
	}

	if e.Op != "" {
		switch e.Op {
		case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpContains, OpExists:
		default:
			return fmt.Errorf("unknown condition operator %q", e.Op)
		}

		if e.Left == "" {
			return fmt.Errorf("comparison with operator %q is missing its left path", e.Op)
		}

		return nil
	}

	for _, child := range e.All {
		if err := child.validate(depth+1, terms); err != nil {
			return err
		}
	}

	for _, child := range e.Any {
		if err := child.validate(depth+1, terms); err != nil {
			return err
		}
	}

	if e.Not != nil {
		return e.Not.validate(depth+1, terms)
	}

	return nil
}

// Evaluate interprets the expression against the context. It is total for
// validated expressions: it never errors and never mutates the context.
// Comparisons against missing paths evaluate to false rather than failing.
// A nil expression is vacuously true.
func (e *ConditionExpression) Evaluate(ctx map[string]any) bool {
	if e == nil {
		return true
	}

	switch {
	case len(e.All) > 0:
		for _, child := range e.All {
			if !child.Evaluate(ctx) {
				return false
			}
		}

		return true

	case len(e.Any) > 0:
		for _, child := range e.Any {
			if child.Evaluate(ctx) {
				return true
			}
		}

		return false

	case e.Not != nil:
		return !e.Not.Evaluate(ctx)

	case e.Op != "":
		return e.compare(ctx)
	}

	return false
}

func (e *ConditionExpression) compare(ctx map[string]any) bool {
	left, found := LookupPath(ctx, e.Left)

	if e.Op == OpExists {
		return found
	}

	if !found {
		return false
	}

	right := e.Right
	if e.RightPath != "" {
		var ok bool

		right, ok = LookupPath(ctx, e.RightPath)
		if !ok {
			return false
		}
	}

	switch e.Op {
	case OpEqual:
		return looseEqual(left, right)
	case OpNotEqual:
		return !looseEqual(left, right)
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		return orderedCompare(e.Op, left, right)
	case OpContains:
		return contains(left, right)
	default:
		return false
	}
}

// LookupPath resolves a dotted path into nested maps. It returns false when
// any intermediate segment is missing or not a map.
func LookupPath(ctx map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	current := any(ctx)

	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// looseEqual compares scalars with numeric coercion so that a JSON-decoded
// float64(3) equals an authored int(3).
func looseEqual(left, right any) bool {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)

	if lok && rok {
		return lf == rf
	}

	return left == right
}

func orderedCompare(op ConditionOperator, left, right any) bool {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)

	if lok && rok {
		switch op {
		case OpGreater:
			return lf > rf
		case OpGreaterOrEqual:
			return lf >= rf
		case OpLess:
			return lf < rf
		case OpLessOrEqual:
			return lf <= rf
		}
	}

	ls, lok2 := left.(string)
	rs, rok2 := right.(string)

	if lok2 && rok2 {
		switch op {
		case OpGreater:
			return ls > rs
		case OpGreaterOrEqual:
			return ls >= rs
		case OpLess:
			return ls < rs
		case OpLessOrEqual:
			return ls <= rs
		}
	}

	return false
}

func contains(left, right any) bool {
	switch l := left.(type) {
	case string:
		rs, ok := right.(string)

		return ok && strings.Contains(l, rs)
	case []any:
		for _, item := range l {
			if looseEqual(item, right) {
				return true
			}
		}
	}

	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}

	return 0, false
}
