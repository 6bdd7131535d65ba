package registry

import (
	"log/slog"

	"github.com/taskora/automation/pkg/actions/assign"
	"github.com/taskora/automation/pkg/actions/entity"
	"github.com/taskora/automation/pkg/actions/notify"
	"github.com/taskora/automation/pkg/actions/webhook"
)

// NewDefaultRegistry returns a registry with the built-in actions registered.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	r.RegisterAction(assign.NewActionFactory())
	r.RegisterAction(entity.NewActionFactory())
	r.RegisterAction(notify.NewActionFactory())
	r.RegisterAction(webhook.NewActionFactory())

	return r
}
