// Package template renders action parameters against the execution context.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render executes a text/template string against data. The rendered output is
// re-parsed so that templated JSON, numbers and booleans come back as typed
// values rather than strings.
func Render(templateStr string, data map[string]any) (any, error) {
	tmpl, err := template.
		New("parameter").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).
		Option("missingkey=zero").
		Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderParameters renders every string value of a parameter map, recursing
// into nested maps and slices. Non-string values pass through untouched.
func RenderParameters(parameters map[string]any, data map[string]any) (map[string]any, error) {
	if parameters == nil {
		return nil, nil
	}

	rendered := make(map[string]any, len(parameters))

	for key, value := range parameters {
		out, err := renderValue(value, data)
		if err != nil {
			return nil, err
		}

		rendered[key] = out
	}

	return rendered, nil
}

func renderValue(value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		return RenderParameters(v, data)
	case []any:
		rendered := make([]any, len(v))

		for i, item := range v {
			out, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			rendered[i] = out
		}

		return rendered, nil
	default:
		return value, nil
	}
}
