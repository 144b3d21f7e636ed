// Package rules evaluates automation rules: trigger + conditions + ordered
// actions, with rolling per-rule statistics.
package rules

import (
	"context"
	"log/slog"

	"github.com/lumenpress/automation/pkg/models"
)

// ActionFunc performs one side effect with the action's configuration.
type ActionFunc func(ctx context.Context, config map[string]any) error

// ActionHandlers binds each known action kind to its external handler. Nil
// handlers dispatch as logged no-ops.
type ActionHandlers struct {
	GenerateContent    ActionFunc
	SendNotification   ActionFunc
	SchedulePost       ActionFunc
	AnalyzePerformance ActionFunc
}

// Dispatcher routes actions to their handlers by type tag. The set of action
// kinds is closed; an unrecognized type is a logged no-op, never an error.
type Dispatcher struct {
	logger   *slog.Logger
	handlers ActionHandlers
}

func NewDispatcher(logger *slog.Logger, handlers ActionHandlers) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		handlers: handlers,
	}
}

// Dispatch invokes the handler bound to the action's type.
func (d *Dispatcher) Dispatch(ctx context.Context, action models.Action) error {
	var handler ActionFunc

	switch action.Type {
	case models.ActionGenerateContent:
		handler = d.handlers.GenerateContent
	case models.ActionSendNotification:
		handler = d.handlers.SendNotification
	case models.ActionSchedulePost:
		handler = d.handlers.SchedulePost
	case models.ActionAnalyzePerformance:
		handler = d.handlers.AnalyzePerformance
	default:
		d.logger.Warn("Ignoring unrecognized action type", "action_type", action.Type)

		return nil
	}

	if handler == nil {
		d.logger.Warn("No handler bound for action type", "action_type", action.Type)

		return nil
	}

	return handler(ctx, action.Config)
}
