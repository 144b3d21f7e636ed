package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

func TestPipelineRepository_CRUD(t *testing.T) {
	store := NewPersistence()

	pipeline := &models.Pipeline{
		ID:      "pipe-1",
		Name:    "Daily content pipeline",
		Enabled: true,
		Stages: []*models.Stage{
			{ID: "idea", Name: "Idea generation", Handler: "idea"},
		},
	}

	require.NoError(t, store.Pipelines().Save(t.Context(), pipeline))

	fetched, err := store.Pipelines().GetByID(t.Context(), "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, "Daily content pipeline", fetched.Name)
	require.Len(t, fetched.Stages, 1)

	all, err := store.Pipelines().List(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Pipelines().Delete(t.Context(), "pipe-1"))

	_, err = store.Pipelines().GetByID(t.Context(), "pipe-1")
	assert.ErrorIs(t, err, persistence.ErrPipelineNotFound)
}

func TestRepositories_NotFoundSentinels(t *testing.T) {
	store := NewPersistence()
	ctx := t.Context()

	_, err := store.Pipelines().GetByID(ctx, "x")
	assert.ErrorIs(t, err, persistence.ErrPipelineNotFound)

	_, err = store.Executions().GetByID(ctx, "x")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	_, err = store.Templates().GetByID(ctx, "x")
	assert.ErrorIs(t, err, persistence.ErrTemplateNotFound)

	_, err = store.Rules().GetByID(ctx, "x")
	assert.ErrorIs(t, err, persistence.ErrRuleNotFound)

	_, err = store.Schedules().GetByID(ctx, "x")
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)

	assert.True(t, persistence.IsNotFound(err))
}

func TestStore_ClonesOnSaveAndRead(t *testing.T) {
	store := NewPersistence()

	rule := &models.AutomationRule{
		ID:      "rule-1",
		Name:    "Notify editors",
		Actions: []models.Action{{Type: models.ActionSendNotification}},
	}
	require.NoError(t, store.Rules().Save(t.Context(), rule))

	// Mutating the saved record must not leak into the store.
	rule.Name = "changed after save"

	fetched, err := store.Rules().GetByID(t.Context(), "rule-1")
	require.NoError(t, err)
	assert.Equal(t, "Notify editors", fetched.Name)

	// Mutating a fetched record must not leak either.
	fetched.Name = "changed after read"

	again, err := store.Rules().GetByID(t.Context(), "rule-1")
	require.NoError(t, err)
	assert.Equal(t, "Notify editors", again.Name)
}

func TestStore_ListIsSortedByID(t *testing.T) {
	store := NewPersistence()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Schedules().Save(t.Context(), &models.Schedule{
			ID: id, PipelineID: "pipe-1", CronExpr: "@hourly",
		}))
	}

	all, err := store.Schedules().List(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "c", all[2].ID)
}

func TestExecutionRepository_ListByDefinition(t *testing.T) {
	store := NewPersistence()

	first := models.NewExecution(models.ExecutionKindPipeline, "pipe-1", []string{"idea"}, nil)
	second := models.NewExecution(models.ExecutionKindPipeline, "pipe-2", []string{"idea"}, nil)
	third := models.NewExecution(models.ExecutionKindWorkflow, "pipe-1", []string{"gen"}, nil)

	for _, execution := range []*models.Execution{first, second, third} {
		require.NoError(t, store.Executions().Save(t.Context(), execution))
	}

	matched, err := store.Executions().ListByDefinition(t.Context(), "pipe-1")
	require.NoError(t, err)
	assert.Len(t, matched, 2)

	for _, execution := range matched {
		assert.Equal(t, "pipe-1", execution.DefinitionID)
	}
}

func TestPersistence_HealthCheckAndClose(t *testing.T) {
	store := NewPersistence()

	assert.NoError(t, store.HealthCheck(t.Context()))
	assert.NoError(t, store.Close(t.Context()))
}
