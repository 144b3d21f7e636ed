package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/automation/pkg/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGoChannelEventBus_PublishAndHandle(t *testing.T) {
	bus := NewGoChannelEventBus(testLogger())
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan events.Event, 1)

	bus.Handle(events.PipelineExecutionFinishedEvent, func(_ context.Context, event events.Event) error {
		received <- event

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	published := events.PipelineExecutionFinished{
		BaseEvent: events.BaseEvent{
			ID:        "evt-1",
			Type:      events.PipelineExecutionFinishedEvent,
			Timestamp: time.Now().UTC(),
		},
		PipelineID:  "pipe-1",
		ExecutionID: "exec-1",
		Status:      "completed",
	}
	require.NoError(t, bus.Publish(ctx, "pipe-1", published))

	select {
	case event := <-received:
		finished, ok := event.(*events.PipelineExecutionFinished)
		require.True(t, ok)
		assert.Equal(t, "pipe-1", finished.PipelineID)
		assert.Equal(t, "exec-1", finished.ExecutionID)
		assert.Equal(t, "completed", finished.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestGoChannelEventBus_UnhandledTypesAreDropped(t *testing.T) {
	bus := NewGoChannelEventBus(testLogger())
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan events.Event, 2)

	bus.Handle(events.RuleExecutedEvent, func(_ context.Context, event events.Event) error {
		received <- event

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler for this one; it must be acked and skipped.
	require.NoError(t, bus.Publish(ctx, "pipe-1", events.PipelineExecutionStarted{
		BaseEvent: events.BaseEvent{Type: events.PipelineExecutionStartedEvent},
	}))
	require.NoError(t, bus.Publish(ctx, "rule-1", events.RuleExecuted{
		BaseEvent: events.BaseEvent{Type: events.RuleExecutedEvent},
		RuleID:    "rule-1",
		Fired:     true,
		Success:   true,
	}))

	select {
	case event := <-received:
		executed, ok := event.(*events.RuleExecuted)
		require.True(t, ok)
		assert.Equal(t, "rule-1", executed.RuleID)
		assert.True(t, executed.Fired)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	assert.Empty(t, received)
}

func TestGenerateIDIsUnique(t *testing.T) {
	bus := NewGoChannelEventBus(testLogger())
	t.Cleanup(func() { _ = bus.Close() })

	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := bus.GenerateID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
