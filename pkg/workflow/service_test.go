package workflow

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
	"github.com/lumenpress/automation/pkg/persistence/memory"
	"github.com/lumenpress/automation/pkg/registry"
	"github.com/lumenpress/automation/pkg/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func publishingTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:      "publishing-flow",
		Name:    "Blog publishing flow",
		Enabled: true,
		Steps: []*models.WorkflowStep{
			{ID: "gen", Name: "Generate draft", Type: models.StepTypeGeneration},
			{ID: "check", Name: "Quality check", Type: models.StepTypeQualityCheck, DependsOn: []string{"gen"}},
			{ID: "pub", Name: "Publish", Type: models.StepTypePublishing, DependsOn: []string{"check"}},
		},
	}
}

func newTestService(t *testing.T, template *models.WorkflowTemplate) (*Service, *memory.Persistence, *registry.Registry) {
	t.Helper()

	store := memory.NewPersistence()
	if template != nil {
		require.NoError(t, store.Templates().Save(t.Context(), template))
	}

	reg := registry.NewRegistry(testLogger())

	return NewService(testLogger(), store, reg, nil), store, reg
}

func registerStepEcho(reg *registry.Registry, types ...models.StepType) {
	for _, stepType := range types {
		st := stepType
		reg.RegisterStep(st, func(_ context.Context, _ map[string]any, _ map[string]any) (any, error) {
			return string(st) + " done", nil
		})
	}
}

func TestService_CreateTemplate(t *testing.T) {
	service, store, _ := newTestService(t, nil)

	created, err := service.CreateTemplate(t.Context(), &models.WorkflowTemplate{
		Name:    "Review flow",
		Enabled: true,
		Steps: []*models.WorkflowStep{
			{ID: "gen", Name: "Generate", Type: models.StepTypeGeneration},
			{ID: "approve", Name: "Approve", Type: models.StepTypeApproval, DependsOn: []string{"gen"}},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	stored, err := store.Templates().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review flow", stored.Name)
}

func TestService_CreateTemplateRejectsUnknownStepType(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	_, err := service.CreateTemplate(t.Context(), &models.WorkflowTemplate{
		Name: "Broken flow",
		Steps: []*models.WorkflowStep{
			{ID: "review", Name: "Review", Type: "human_review"},
		},
	})
	assert.ErrorIs(t, err, ErrUnknownStepType)
}

func TestService_CreateTemplateRejectsCycle(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	_, err := service.CreateTemplate(t.Context(), &models.WorkflowTemplate{
		Name: "Cyclic flow",
		Steps: []*models.WorkflowStep{
			{ID: "a", Name: "A", Type: models.StepTypeGeneration, DependsOn: []string{"b"}},
			{ID: "b", Name: "B", Type: models.StepTypePublishing, DependsOn: []string{"a"}},
		},
	})
	assert.ErrorIs(t, err, scheduler.ErrDependencyCycle)
}

func TestService_ExecuteReturnsImmediatelyAndCompletes(t *testing.T) {
	service, store, reg := newTestService(t, publishingTemplate())
	registerStepEcho(reg, models.StepTypeGeneration, models.StepTypeQualityCheck, models.StepTypePublishing)

	executionID, err := service.Execute(t.Context(), "publishing-flow", map[string]any{"topic": "ramen"})
	require.NoError(t, err)
	require.NotEmpty(t, executionID)

	service.Wait()

	stored, err := store.Executions().GetByID(t.Context(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, models.ExecutionKindWorkflow, stored.Kind)
	assert.Equal(t, "publishing-flow", stored.DefinitionID)
	assert.Equal(t, "publishing done", stored.Results["pub"])
	assert.Equal(t, 3, stored.StagesExecuted())
	assert.Contains(t, stored.Log, "Starting step: Generate draft")
	assert.Contains(t, stored.Log, "Completed step: Publish")
}

func TestService_ExecuteUnknownTemplate(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	_, err := service.Execute(t.Context(), "missing", nil)
	assert.ErrorIs(t, err, persistence.ErrTemplateNotFound)
}

func TestService_ExecuteDisabledTemplate(t *testing.T) {
	template := publishingTemplate()
	template.Enabled = false

	service, store, _ := newTestService(t, template)

	_, err := service.Execute(t.Context(), "publishing-flow", nil)
	assert.ErrorIs(t, err, ErrTemplateDisabled)

	executions, err := store.Executions().List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestService_FailedStepStopsLaterSteps(t *testing.T) {
	service, store, reg := newTestService(t, publishingTemplate())

	registerStepEcho(reg, models.StepTypeGeneration, models.StepTypePublishing)
	reg.RegisterStep(models.StepTypeQualityCheck, func(_ context.Context, _ map[string]any, _ map[string]any) (any, error) {
		return nil, errors.New("readability below threshold")
	})

	executionID, err := service.Execute(t.Context(), "publishing-flow", nil)
	require.NoError(t, err)

	service.Wait()

	stored, err := store.Executions().GetByID(t.Context(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "check")
	assert.Equal(t, models.StageStatusCompleted, stored.StageProgress["gen"].Status)
	assert.Equal(t, models.StageStatusFailed, stored.StageProgress["check"].Status)
	assert.Equal(t, models.StageStatusPending, stored.StageProgress["pub"].Status)
	assert.Contains(t, stored.Log, "Step failed: Quality check - readability below threshold")
}

func TestService_StepTimeout(t *testing.T) {
	template := &models.WorkflowTemplate{
		ID:      "slow-flow",
		Name:    "Slow generation flow",
		Enabled: true,
		Steps: []*models.WorkflowStep{
			{ID: "gen", Name: "Generate", Type: models.StepTypeGeneration, TimeoutSeconds: 1},
		},
	}

	service, store, reg := newTestService(t, template)

	reg.RegisterStep(models.StepTypeGeneration, func(ctx context.Context, _ map[string]any, _ map[string]any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	executionID, err := service.Execute(t.Context(), "slow-flow", nil)
	require.NoError(t, err)

	service.Wait()

	stored, err := store.Executions().GetByID(t.Context(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "timed out")
}

func TestService_PanicLandsInExecutionRecord(t *testing.T) {
	template := &models.WorkflowTemplate{
		ID:      "panicky-flow",
		Name:    "Panicky flow",
		Enabled: true,
		Steps: []*models.WorkflowStep{
			{ID: "gen", Name: "Generate", Type: models.StepTypeGeneration},
		},
	}

	service, store, reg := newTestService(t, template)

	reg.RegisterStep(models.StepTypeGeneration, func(_ context.Context, _ map[string]any, _ map[string]any) (any, error) {
		var pipeline *models.Pipeline

		return pipeline.Name, nil // nil dereference
	})

	executionID, err := service.Execute(t.Context(), "panicky-flow", nil)
	require.NoError(t, err)

	service.Wait()

	stored, err := store.Executions().GetByID(t.Context(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "panic")
}

func TestService_StepReceivesUpstreamContext(t *testing.T) {
	service, _, reg := newTestService(t, publishingTemplate())

	var checkContext map[string]any

	reg.RegisterStep(models.StepTypeGeneration, func(_ context.Context, _ map[string]any, _ map[string]any) (any, error) {
		return "draft v1", nil
	})
	reg.RegisterStep(models.StepTypeQualityCheck, func(_ context.Context, _ map[string]any, completed map[string]any) (any, error) {
		checkContext = completed

		return "passed", nil
	})
	registerStepEcho(reg, models.StepTypePublishing)

	_, err := service.Execute(t.Context(), "publishing-flow", nil)
	require.NoError(t, err)

	service.Wait()

	require.NotNil(t, checkContext)
	assert.Equal(t, "draft v1", checkContext["gen"])
}
