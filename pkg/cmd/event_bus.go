package cmd

import (
	"log/slog"

	"github.com/lumenpress/automation/pkg/eventbus"
)

// NewEventBus creates the in-process lifecycle event bus.
func NewEventBus(logger *slog.Logger) eventbus.EventBus {
	return eventbus.NewGoChannelEventBus(logger)
}
