package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_PlainString(t *testing.T) {
	result, err := Render("task {{.task.id}} assigned to {{.assignee}}", map[string]any{
		"task":     map[string]any{"id": "T-42"},
		"assignee": "morgan",
	})
	require.NoError(t, err)
	assert.Equal(t, "task T-42 assigned to morgan", result)
}

func TestRender_TypedResults(t *testing.T) {
	data := map[string]any{
		"count":   float64(3),
		"enabled": true,
		"task":    map[string]any{"id": "T-1"},
	}

	result, err := Render("{{.count}}", data)
	require.NoError(t, err)
	assert.Equal(t, float64(3), result)

	result, err = Render("{{.enabled}}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = Render(`{"id": "{{.task.id}}"}`, data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "T-1"}, result)
}

func TestRender_MissingKeyRendersZero(t *testing.T) {
	result, err := Render("value: {{.absent}}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "value: <no value>", result)
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{.unclosed", map[string]any{})
	assert.Error(t, err)
}

func TestRenderParameters_RecursesAndPassesThrough(t *testing.T) {
	data := map[string]any{"task": map[string]any{"id": "T-9", "points": float64(5)}}

	rendered, err := RenderParameters(map[string]any{
		"message": "closing {{.task.id}}",
		"static":  "no templates here",
		"number":  42,
		"nested": map[string]any{
			"points": "{{.task.points}}",
		},
		"list": []any{"{{.task.id}}", "literal"},
	}, data)
	require.NoError(t, err)

	assert.Equal(t, "closing T-9", rendered["message"])
	assert.Equal(t, "no templates here", rendered["static"])
	assert.Equal(t, 42, rendered["number"])
	assert.Equal(t, map[string]any{"points": float64(5)}, rendered["nested"])
	assert.Equal(t, []any{"T-9", "literal"}, rendered["list"])
}

func TestRenderParameters_NilInNilOut(t *testing.T) {
	rendered, err := RenderParameters(nil, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, rendered)
}
