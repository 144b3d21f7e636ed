package rules

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEngine(handlers ActionHandlers) (*Engine, *memory.Persistence) {
	store := memory.NewPersistence()
	dispatcher := NewDispatcher(testLogger(), handlers)

	return NewEngine(testLogger(), store, dispatcher), store
}

func TestEngine_CreateRuleDefaults(t *testing.T) {
	engine, store := newTestEngine(ActionHandlers{})

	created, err := engine.CreateRule(t.Context(), &models.AutomationRule{
		Name:    "Notify on new drafts",
		Actions: []models.Action{{Type: models.ActionSendNotification}},
		Enabled: true,

		// Caller-supplied statistics are never trusted.
		RunCount:    42,
		SuccessRate: 3,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(0), created.RunCount)
	assert.InDelta(t, 100.0, created.SuccessRate, 0.001)
	assert.Nil(t, created.LastRun)

	stored, err := store.Rules().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)
}

func TestEngine_ExecuteRuleUnknownRule(t *testing.T) {
	engine, _ := newTestEngine(ActionHandlers{})

	matched, err := engine.ExecuteRule(t.Context(), "no-such-rule", nil)

	require.NoError(t, err)
	assert.False(t, matched)
}

func TestEngine_ExecuteRuleDisabled(t *testing.T) {
	engine, store := newTestEngine(ActionHandlers{})

	created, err := engine.CreateRule(t.Context(), &models.AutomationRule{
		Name:    "Disabled rule",
		Actions: []models.Action{{Type: models.ActionGenerateContent}},
		Enabled: false,
	})
	require.NoError(t, err)

	matched, err := engine.ExecuteRule(t.Context(), created.ID, nil)
	require.NoError(t, err)
	assert.False(t, matched)

	stored, err := store.Rules().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.RunCount, "skipped rules never count an attempt")
}

func TestEngine_ExecuteRuleConditionMissLeavesStats(t *testing.T) {
	engine, store := newTestEngine(ActionHandlers{})

	created, err := engine.CreateRule(t.Context(), &models.AutomationRule{
		Name: "High performing posts",
		Conditions: []models.Condition{
			{Field: "seo_score", Operator: models.OperatorGreaterThan, Value: 90},
		},
		Actions: []models.Action{{Type: models.ActionSchedulePost}},
		Enabled: true,
	})
	require.NoError(t, err)

	matched, err := engine.ExecuteRule(t.Context(), created.ID, map[string]any{"seo_score": 40})
	require.NoError(t, err)
	assert.False(t, matched)

	stored, err := store.Rules().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.RunCount)
	assert.Nil(t, stored.LastRun)
}

func TestEngine_ExecuteRuleDispatchesActionsInOrder(t *testing.T) {
	var mu sync.Mutex

	var calls []string

	record := func(name string) ActionFunc {
		return func(_ context.Context, _ map[string]any) error {
			mu.Lock()
			defer mu.Unlock()

			calls = append(calls, name)

			return nil
		}
	}

	engine, store := newTestEngine(ActionHandlers{
		GenerateContent:  record("generate"),
		SendNotification: record("notify"),
	})

	created, err := engine.CreateRule(t.Context(), &models.AutomationRule{
		Name: "Generate then notify",
		Conditions: []models.Condition{
			{Field: "category", Operator: models.OperatorEquals, Value: "recipes"},
		},
		Actions: []models.Action{
			{Type: models.ActionGenerateContent},
			{Type: models.ActionSendNotification},
		},
		Enabled: true,
	})
	require.NoError(t, err)

	matched, err := engine.ExecuteRule(t.Context(), created.ID, map[string]any{"category": "recipes"})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, []string{"generate", "notify"}, calls)

	stored, err := store.Rules().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.RunCount)
	assert.InDelta(t, 100.0, stored.SuccessRate, 0.001)
	assert.NotNil(t, stored.LastRun)
}

func TestEngine_ExecuteRuleActionFailureAbortsRemaining(t *testing.T) {
	var notified bool

	engine, store := newTestEngine(ActionHandlers{
		GenerateContent: func(_ context.Context, _ map[string]any) error {
			return errors.New("model unavailable")
		},
		SendNotification: func(_ context.Context, _ map[string]any) error {
			notified = true

			return nil
		},
	})

	created, err := engine.CreateRule(t.Context(), &models.AutomationRule{
		Name: "Generate then notify",
		Actions: []models.Action{
			{Type: models.ActionGenerateContent},
			{Type: models.ActionSendNotification},
		},
		Enabled: true,
	})
	require.NoError(t, err)

	matched, err := engine.ExecuteRule(t.Context(), created.ID, nil)
	require.NoError(t, err, "action failures surface through statistics, not errors")
	assert.False(t, matched)
	assert.False(t, notified, "actions after the first failure must not run")

	stored, err := store.Rules().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.RunCount)
	assert.InDelta(t, 0.0, stored.SuccessRate, 0.001)
}

func TestEngine_ExecuteRuleNoConditionsAlwaysMatches(t *testing.T) {
	engine, _ := newTestEngine(ActionHandlers{
		AnalyzePerformance: func(_ context.Context, _ map[string]any) error { return nil },
	})

	created, err := engine.CreateRule(t.Context(), &models.AutomationRule{
		Name:    "Unconditional analysis",
		Actions: []models.Action{{Type: models.ActionAnalyzePerformance}},
		Enabled: true,
	})
	require.NoError(t, err)

	matched, err := engine.ExecuteRule(t.Context(), created.ID, nil)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEngine_ConcurrentExecutionsSerializeStatistics(t *testing.T) {
	engine, store := newTestEngine(ActionHandlers{
		GenerateContent: func(_ context.Context, _ map[string]any) error { return nil },
	})

	created, err := engine.CreateRule(t.Context(), &models.AutomationRule{
		Name:    "Concurrent rule",
		Actions: []models.Action{{Type: models.ActionGenerateContent}},
		Enabled: true,
	})
	require.NoError(t, err)

	const attempts = 50

	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := engine.ExecuteRule(context.Background(), created.ID, nil)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stored, err := store.Rules().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(attempts), stored.RunCount, "every attempt is counted exactly once")
	assert.InDelta(t, 100.0, stored.SuccessRate, 0.001)
}

func TestDispatcher_UnknownActionTypeIsNoOp(t *testing.T) {
	dispatcher := NewDispatcher(testLogger(), ActionHandlers{})

	err := dispatcher.Dispatch(t.Context(), models.Action{Type: "publish_everywhere"})
	assert.NoError(t, err)
}

func TestDispatcher_NilHandlerIsNoOp(t *testing.T) {
	dispatcher := NewDispatcher(testLogger(), ActionHandlers{})

	err := dispatcher.Dispatch(t.Context(), models.Action{Type: models.ActionSchedulePost})
	assert.NoError(t, err)
}

func TestDispatcher_PassesActionConfig(t *testing.T) {
	var received map[string]any

	dispatcher := NewDispatcher(testLogger(), ActionHandlers{
		SchedulePost: func(_ context.Context, config map[string]any) error {
			received = config

			return nil
		},
	})

	err := dispatcher.Dispatch(t.Context(), models.Action{
		Type:   models.ActionSchedulePost,
		Config: map[string]any{"channel": "blog", "delay_hours": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"channel": "blog", "delay_hours": 2}, received)
}
