// Package webhook implements the call-external-webhook action.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/taskora/automation/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrWebhookURLInvalid is returned when the webhook URL is missing or malformed.
	ErrWebhookURLInvalid = errors.New("invalid webhook url")
	// ErrWebhookServerError is returned when the remote endpoint answers 5xx.
	ErrWebhookServerError = errors.New("webhook endpoint returned server error")
)

// Action posts a payload to an external HTTP endpoint. URL, headers and body
// support templating against the execution context.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrWebhookURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "webhook")
	logger.InfoContext(ctx, "Executing webhook action", "method", a.Method)

	req, err := a.buildRequest(ctx, executionCtx)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: a.Timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrWebhookServerError)
	}

	return a.processResponse(resp)
}

func (a *Action) buildRequest(ctx context.Context, executionCtx map[string]any) (*http.Request, error) {
	rendered, err := template.Render(a.URL, executionCtx)
	if err != nil {
		return nil, err
	}

	url, ok := rendered.(string)
	if !ok {
		return nil, fmt.Errorf("templated url is not a string: %w", ErrWebhookURLInvalid)
	}

	var body io.Reader

	if a.Body != "" {
		renderedBody, err := template.Render(a.Body, executionCtx)
		if err != nil {
			return nil, err
		}

		switch v := renderedBody.(type) {
		case string:
			body = strings.NewReader(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode webhook body: %w", err)
			}

			body = strings.NewReader(string(encoded))
		}
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	if req.Header.Get("Content-Type") == "" && a.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range a.Headers {
		renderedValue, err := template.Render(value, executionCtx)
		if err != nil {
			return nil, err
		}

		if strVal, ok := renderedValue.(string); ok {
			req.Header.Set(key, strVal)
		}
	}

	return req, nil
}

func (a *Action) processResponse(resp *http.Response) (map[string]any, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	patch := map[string]any{
		"status_code": resp.StatusCode,
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		patch["body"] = decoded
	} else {
		patch["body"] = string(raw)
	}

	return patch, nil
}
