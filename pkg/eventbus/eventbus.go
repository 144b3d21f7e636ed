// Package eventbus publishes execution lifecycle events to interested
// subscribers inside the process.
package eventbus

import (
	"context"

	"github.com/lumenpress/automation/pkg/events"
)

// EventHandler processes one decoded event.
type EventHandler func(ctx context.Context, event events.Event) error

// EventBus decouples the execution services from observers of their
// lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, key string, event events.Event) error
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
	Close() error
}
