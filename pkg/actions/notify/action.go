// Package notify implements the send-notification action. Delivery transport
// is owned by the surrounding product; this action renders the message and
// records the notification intent in the execution context.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskora/automation/pkg/template"
)

// ErrNotifyMessageInvalid is returned when the message template is missing.
var ErrNotifyMessageInvalid = errors.New("invalid notification message")

type Action struct {
	Recipients []string
	Channel    string
	Message    string
}

func NewAction(config map[string]any) (*Action, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, fmt.Errorf("missing or invalid 'message' in configuration: %w", ErrNotifyMessageInvalid)
	}

	channel, _ := config["channel"].(string)
	if channel == "" {
		channel = "in_app"
	}

	recipients := make([]string, 0)

	if raw, exists := config["recipients"]; exists {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if id, ok := item.(string); ok {
					recipients = append(recipients, id)
				}
			}
		}
	}

	return &Action{
		Recipients: recipients,
		Channel:    channel,
		Message:    message,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "notify")

	rendered, err := template.Render(a.Message, executionCtx)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("%v", rendered)

	logger.InfoContext(ctx, "Notification emitted",
		"channel", a.Channel,
		"recipients", len(a.Recipients),
		"message", message)

	return map[string]any{
		"channel":    a.Channel,
		"recipients": a.Recipients,
		"message":    message,
		"sent_at":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
