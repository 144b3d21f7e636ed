package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/automation/pkg/models"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.DiscardHandler))
}

func TestRegistry_StageRoundtrip(t *testing.T) {
	reg := newTestRegistry()

	reg.RegisterStage("seo", func(_ context.Context, payload map[string]any) (any, error) {
		return payload["draft"], nil
	})

	fn, err := reg.Stage("seo")
	require.NoError(t, err)

	result, err := fn(t.Context(), map[string]any{"draft": "optimized"})
	require.NoError(t, err)
	assert.Equal(t, "optimized", result)
}

func TestRegistry_UnknownStage(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Stage("missing")
	assert.ErrorContains(t, err, "not registered")
}

func TestRegistry_RegisterStageReplaces(t *testing.T) {
	reg := newTestRegistry()

	reg.RegisterStage("idea", func(_ context.Context, _ map[string]any) (any, error) {
		return "first", nil
	})
	reg.RegisterStage("idea", func(_ context.Context, _ map[string]any) (any, error) {
		return "second", nil
	})

	fn, err := reg.Stage("idea")
	require.NoError(t, err)

	result, err := fn(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, "second", result)
}

func TestRegistry_StepRoundtrip(t *testing.T) {
	reg := newTestRegistry()

	reg.RegisterStep(models.StepTypeGeneration, func(_ context.Context, config map[string]any, _ map[string]any) (any, error) {
		return config["prompt"], nil
	})

	fn, err := reg.Step(models.StepTypeGeneration)
	require.NoError(t, err)

	result, err := fn(t.Context(), map[string]any{"prompt": "write an intro"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "write an intro", result)
}

func TestRegistry_RefusesUnknownStepType(t *testing.T) {
	reg := newTestRegistry()

	reg.RegisterStep("human_review", func(_ context.Context, _ map[string]any, _ map[string]any) (any, error) {
		return nil, nil
	})

	_, err := reg.Step("human_review")
	assert.Error(t, err)
}

func TestRegistry_HealthCheck(t *testing.T) {
	reg := newTestRegistry()

	message, healthy := reg.HealthCheck()
	assert.False(t, healthy)
	assert.Equal(t, "No handlers registered", message)

	reg.RegisterStage("idea", func(_ context.Context, _ map[string]any) (any, error) { return nil, nil })
	reg.RegisterStep(models.StepTypePublishing, func(_ context.Context, _ map[string]any, _ map[string]any) (any, error) { return nil, nil })

	message, healthy = reg.HealthCheck()
	assert.True(t, healthy)
	assert.Equal(t, "1 stage handlers, 1 step handlers", message)
}
