package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate_Comparisons(t *testing.T) {
	ctx := map[string]any{
		"task": map[string]any{
			"priority": "high",
			"points":   float64(8),
			"labels":   []any{"bug", "urgent"},
			"title":    "fix login crash",
		},
	}

	tests := []struct {
		name string
		expr *ConditionExpression
		want bool
	}{
		{
			name: "eq string match",
			expr: &ConditionExpression{Op: OpEqual, Left: "task.priority", Right: "high"},
			want: true,
		},
		{
			name: "eq string mismatch",
			expr: &ConditionExpression{Op: OpEqual, Left: "task.priority", Right: "low"},
			want: false,
		},
		{
			name: "neq",
			expr: &ConditionExpression{Op: OpNotEqual, Left: "task.priority", Right: "low"},
			want: true,
		},
		{
			name: "numeric coercion int literal vs float context",
			expr: &ConditionExpression{Op: OpEqual, Left: "task.points", Right: 8},
			want: true,
		},
		{
			name: "gt numeric",
			expr: &ConditionExpression{Op: OpGreater, Left: "task.points", Right: 5},
			want: true,
		},
		{
			name: "lte numeric",
			expr: &ConditionExpression{Op: OpLessOrEqual, Left: "task.points", Right: 7},
			want: false,
		},
		{
			name: "gt string lexicographic",
			expr: &ConditionExpression{Op: OpGreater, Left: "task.priority", Right: "alpha"},
			want: true,
		},
		{
			name: "contains substring",
			expr: &ConditionExpression{Op: OpContains, Left: "task.title", Right: "login"},
			want: true,
		},
		{
			name: "contains list element",
			expr: &ConditionExpression{Op: OpContains, Left: "task.labels", Right: "urgent"},
			want: true,
		},
		{
			name: "contains list element missing",
			expr: &ConditionExpression{Op: OpContains, Left: "task.labels", Right: "wontfix"},
			want: false,
		},
		{
			name: "exists present",
			expr: &ConditionExpression{Op: OpExists, Left: "task.priority"},
			want: true,
		},
		{
			name: "exists missing",
			expr: &ConditionExpression{Op: OpExists, Left: "task.assignee"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.Evaluate(ctx))
		})
	}
}

func TestConditionEvaluate_MissingPathIsFalseNotError(t *testing.T) {
	ctx := map[string]any{"task": map[string]any{"priority": "high"}}

	expr := &ConditionExpression{Op: OpGreater, Left: "task.points", Right: 5}
	assert.False(t, expr.Evaluate(ctx))

	// Intermediate segment is not a map.
	expr = &ConditionExpression{Op: OpEqual, Left: "task.priority.x", Right: "high"}
	assert.False(t, expr.Evaluate(ctx))

	// But the negation of a missing comparison is true: totality, not errors.
	not := &ConditionExpression{Not: expr}
	assert.True(t, not.Evaluate(ctx))
}

func TestConditionEvaluate_NilIsVacuouslyTrue(t *testing.T) {
	var expr *ConditionExpression

	assert.True(t, expr.Evaluate(map[string]any{}))
	assert.True(t, expr.Evaluate(nil))
}

func TestConditionEvaluate_Combinators(t *testing.T) {
	ctx := map[string]any{"status": "done", "points": float64(3)}

	all := &ConditionExpression{All: []*ConditionExpression{
		{Op: OpEqual, Left: "status", Right: "done"},
		{Op: OpLess, Left: "points", Right: 5},
	}}
	assert.True(t, all.Evaluate(ctx))

	anyOf := &ConditionExpression{Any: []*ConditionExpression{
		{Op: OpEqual, Left: "status", Right: "open"},
		{Op: OpEqual, Left: "status", Right: "done"},
	}}
	assert.True(t, anyOf.Evaluate(ctx))

	nested := &ConditionExpression{All: []*ConditionExpression{
		{Op: OpEqual, Left: "status", Right: "done"},
		{Not: &ConditionExpression{Op: OpGreater, Left: "points", Right: 10}},
	}}
	assert.True(t, nested.Evaluate(ctx))
}

func TestConditionEvaluate_RightPathWinsOverLiteral(t *testing.T) {
	ctx := map[string]any{
		"task":     map[string]any{"assignee": "u-1"},
		"reporter": "u-1",
		"other":    "u-2",
	}

	expr := &ConditionExpression{Op: OpEqual, Left: "task.assignee", Right: "ignored", RightPath: "reporter"}
	assert.True(t, expr.Evaluate(ctx))

	expr.RightPath = "other"
	assert.False(t, expr.Evaluate(ctx))

	// A missing right path makes the comparison false.
	expr.RightPath = "nope"
	assert.False(t, expr.Evaluate(ctx))
}

func TestConditionValidate_Shape(t *testing.T) {
	valid := &ConditionExpression{Op: OpEqual, Left: "status", Right: "done"}
	require.NoError(t, valid.Validate())

	// Exactly one of all/any/not/op.
	both := &ConditionExpression{
		Op:   OpEqual,
		Left: "status",
		Not:  &ConditionExpression{Op: OpExists, Left: "x"},
	}
	assert.Error(t, both.Validate())

	empty := &ConditionExpression{}
	assert.Error(t, empty.Validate())

	unknownOp := &ConditionExpression{Op: "matches", Left: "status"}
	assert.Error(t, unknownOp.Validate())

	missingLeft := &ConditionExpression{Op: OpEqual, Right: "done"}
	assert.Error(t, missingLeft.Validate())
}

func TestConditionValidate_DepthLimit(t *testing.T) {
	expr := &ConditionExpression{Op: OpExists, Left: "x"}
	for i := 0; i < MaxConditionDepth; i++ {
		expr = &ConditionExpression{Not: expr}
	}

	assert.Error(t, expr.Validate())
}

func TestConditionValidate_TermLimit(t *testing.T) {
	children := make([]*ConditionExpression, MaxConditionTerms)
	for i := range children {
		children[i] = &ConditionExpression{Op: OpExists, Left: "x"}
	}

	expr := &ConditionExpression{All: children}
	assert.Error(t, expr.Validate())
}
