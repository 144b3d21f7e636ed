package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/lumenpress/automation/pkg/events"
)

// WatermillEventBus implements EventBus over a watermill publisher and
// subscriber pair.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	logger        *slog.Logger
}

// NewWatermillEventBus wraps an existing watermill publisher/subscriber.
func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		logger:        logger,
	}
}

// NewGoChannelEventBus creates an in-process bus backed by watermill's
// gochannel pub/sub.
func NewGoChannelEventBus(logger *slog.Logger) *WatermillEventBus {
	channel := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	return NewWatermillEventBus(channel, channel, logger)
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

// Handle registers the handler invoked for events of the given type. Must be
// called before Subscribe.
func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) {
	eb.subscriptions[eventType] = handler
}

// Subscribe starts consuming the event topic until ctx is cancelled.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event, err := decodeEvent(eventType, msg.Payload)
			if err != nil {
				eb.logger.Error("Failed to decode event", "event_type", eventType, "error", err)
				msg.Ack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				eb.logger.Error("Event handler failed", "event_type", eventType, "error", err)
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	return eb.publisher.Close()
}

func decodeEvent(eventType events.EventType, payload []byte) (events.Event, error) {
	var event events.Event

	switch eventType {
	case events.PipelineExecutionStartedEvent:
		event = &events.PipelineExecutionStarted{}
	case events.PipelineExecutionFinishedEvent:
		event = &events.PipelineExecutionFinished{}
	case events.WorkflowExecutionStartedEvent:
		event = &events.WorkflowExecutionStarted{}
	case events.WorkflowExecutionFinishedEvent:
		event = &events.WorkflowExecutionFinished{}
	case events.RuleExecutedEvent:
		event = &events.RuleExecuted{}
	default:
		event = &events.BaseEvent{}
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, err
	}

	return event, nil
}
