// Package pipeline runs persisted pipeline definitions over the dependency
// graph scheduler, persisting live per-stage progress so callers can poll an
// execution mid-run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenpress/automation/pkg/eventbus"
	"github.com/lumenpress/automation/pkg/events"
	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
	"github.com/lumenpress/automation/pkg/registry"
	"github.com/lumenpress/automation/pkg/scheduler"
	"github.com/lumenpress/automation/pkg/template"
)

var (
	// ErrPipelineDisabled is returned when executing a pipeline that exists
	// but is not enabled.
	ErrPipelineDisabled = errors.New("pipeline is disabled")

	// ErrPipelineNotFound is returned when the pipeline id is unknown.
	ErrPipelineNotFound = persistence.ErrPipelineNotFound
)

// StageError wraps the first failing stage's error.
type StageError struct {
	StageID string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.StageID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the structured outcome returned to the caller. It is populated
// with as much partial progress as was captured, even on failure.
type Result struct {
	Success        bool                             `json:"success"`
	ExecutionID    string                           `json:"execution_id"`
	Status         models.ExecutionStatus           `json:"status"`
	StagesExecuted int                              `json:"stages_executed"`
	TotalStages    int                              `json:"total_stages"`
	Results        map[string]any                   `json:"results"`
	StagesProgress map[string]*models.StageProgress `json:"stages_progress"`
	Error          string                           `json:"error,omitempty"`
}

// Executor is the pipeline execution service.
type Executor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	bus         eventbus.EventBus
}

// NewExecutor creates a pipeline executor. The event bus may be nil when no
// observer is interested in lifecycle events.
func NewExecutor(logger *slog.Logger, store persistence.Persistence, reg *registry.Registry, bus eventbus.EventBus) *Executor {
	return &Executor{
		logger:      logger,
		persistence: store,
		registry:    reg,
		bus:         bus,
	}
}

// Execute runs the pipeline to completion and returns the full result. The
// execution record is persisted after every stage transition so an external
// observer can poll live progress; a cycle or unknown dependency aborts
// before the execution record is even created.
func (e *Executor) Execute(ctx context.Context, pipelineID string, triggerData map[string]any) (*Result, error) {
	logger := e.logger.With("pipeline_id", pipelineID)

	pipeline, err := e.persistence.Pipelines().GetByID(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pipeline %s: %w", pipelineID, err)
	}

	if !pipeline.Enabled {
		return nil, fmt.Errorf("pipeline %s: %w", pipelineID, ErrPipelineDisabled)
	}

	units := make([]scheduler.Unit, 0, len(pipeline.Stages))
	stageIDs := make([]string, 0, len(pipeline.Stages))
	stagesByID := make(map[string]*models.Stage, len(pipeline.Stages))

	for _, stage := range pipeline.Stages {
		units = append(units, scheduler.Unit{ID: stage.ID, DependsOn: stage.DependsOn})
		stageIDs = append(stageIDs, stage.ID)
		stagesByID[stage.ID] = stage
	}

	// Fatal configuration errors surface before any side effect.
	if err := scheduler.Validate(units); err != nil {
		return nil, err
	}

	execution := models.NewExecution(models.ExecutionKindPipeline, pipelineID, stageIDs, triggerData)
	logger = logger.With("execution_id", execution.ID)

	if err := e.persistExecution(ctx, execution); err != nil {
		return nil, err
	}

	logger.Info("Starting pipeline execution", "total_stages", len(units))
	e.publishStarted(ctx, pipeline, execution)

	var mu sync.Mutex

	report, err := scheduler.Run(ctx, units, func(ctx context.Context, unit scheduler.Unit, completed map[string]any) (any, error) {
		return e.executeStage(ctx, stagesByID[unit.ID], execution.ID, triggerData, completed)
	}, scheduler.Options{
		OnTransition: func(unitID string, progress scheduler.Progress) {
			mu.Lock()
			defer mu.Unlock()

			applyProgress(execution, unitID, progress)
			e.persistProgress(ctx, execution)
		},
	})
	if err != nil {
		// Unreachable after the Validate above, kept as a safety net.
		return nil, err
	}

	errorMessage := ""
	status := models.ExecutionStatusCompleted

	if report.Status == scheduler.StatusFailed {
		status = models.ExecutionStatusFailed
		errorMessage = report.Err.Error()
	}

	execution.Finish(status, errorMessage)

	if err := e.persistExecution(ctx, execution); err != nil {
		logger.Error("Failed to persist final execution state", "error", err)
	}

	e.recordMetrics(ctx, pipeline, status == models.ExecutionStatusCompleted)
	e.publishFinished(ctx, pipeline, execution)

	logger.Info("Pipeline execution finished",
		"status", execution.Status,
		"stages_executed", execution.StagesExecuted())

	return &Result{
		Success:        status == models.ExecutionStatusCompleted,
		ExecutionID:    execution.ID,
		Status:         execution.Status,
		StagesExecuted: execution.StagesExecuted(),
		TotalStages:    len(units),
		Results:        execution.Results,
		StagesProgress: execution.StageProgress,
		Error:          errorMessage,
	}, nil
}

// Execution returns the persisted execution record by id, at any point during
// or after the run.
func (e *Executor) Execution(ctx context.Context, executionID string) (*models.Execution, error) {
	return e.persistence.Executions().GetByID(ctx, executionID)
}

// executeStage invokes the external stage function with the stage's own
// configuration merged with the trigger data, upstream results and the
// execution id.
func (e *Executor) executeStage(ctx context.Context, stage *models.Stage, executionID string, triggerData map[string]any, completed map[string]any) (any, error) {
	fn, err := e.registry.Stage(stage.Handler)
	if err != nil {
		return nil, &StageError{StageID: stage.ID, Err: err}
	}

	config, err := template.RenderConfig(stage.Config, template.Context{
		ExecutionID: executionID,
		TriggerData: triggerData,
		Results:     completed,
	})
	if err != nil {
		return nil, &StageError{StageID: stage.ID, Err: err}
	}

	payload := make(map[string]any, len(config)+3)
	for key, value := range config {
		payload[key] = value
	}

	payload["trigger_data"] = triggerData
	payload["previous_results"] = completed
	payload["pipeline_execution_id"] = executionID

	result, err := invokeStage(ctx, fn, payload)
	if err != nil {
		return nil, &StageError{StageID: stage.ID, Err: err}
	}

	return result, nil
}

// invokeStage shields the run from handler panics; stage handlers are
// external code and a panicking one fails its stage like any other error.
func invokeStage(ctx context.Context, fn registry.StageFunc, payload map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return fn(ctx, payload)
}

func applyProgress(execution *models.Execution, stageID string, progress scheduler.Progress) {
	stageProgress := execution.StageProgress[stageID]
	if stageProgress == nil {
		stageProgress = &models.StageProgress{}
		execution.StageProgress[stageID] = stageProgress
	}

	stageProgress.Status = models.StageStatus(progress.Status)
	stageProgress.StartedAt = progress.StartedAt
	stageProgress.CompletedAt = progress.CompletedAt
	stageProgress.DurationMS = progress.Duration.Milliseconds()
	stageProgress.Result = progress.Result

	if progress.Err != nil {
		stageProgress.Error = progress.Err.Error()
	}

	if progress.Status == scheduler.StatusCompleted {
		execution.Results[stageID] = progress.Result
	}
}

// persistExecution writes the execution snapshot, retrying once. Failing to
// persist progress must never kill the run, but it is never silent either.
func (e *Executor) persistExecution(ctx context.Context, execution *models.Execution) error {
	err := e.persistence.Executions().Save(ctx, execution)
	if err == nil {
		return nil
	}

	e.logger.Warn("Execution progress write failed, retrying",
		"execution_id", execution.ID, "error", err)

	if err = e.persistence.Executions().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
	}

	return nil
}

func (e *Executor) persistProgress(ctx context.Context, execution *models.Execution) {
	if err := e.persistExecution(ctx, execution); err != nil {
		// The run continues in memory; losing observability is flagged loudly.
		e.logger.Error("Execution progress lost", "execution_id", execution.ID, "error", err)
	}
}

func (e *Executor) recordMetrics(ctx context.Context, pipeline *models.Pipeline, success bool) {
	pipeline.RecordRun(success)
	pipeline.UpdatedAt = time.Now().UTC()

	if err := e.persistence.Pipelines().Save(ctx, pipeline); err != nil {
		e.logger.Error("Failed to update pipeline metrics", "pipeline_id", pipeline.ID, "error", err)
	}
}

func (e *Executor) publishStarted(ctx context.Context, pipeline *models.Pipeline, execution *models.Execution) {
	if e.bus == nil {
		return
	}

	event := events.PipelineExecutionStarted{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.PipelineExecutionStartedEvent,
			Timestamp: time.Now().UTC(),
		},
		PipelineID:  pipeline.ID,
		ExecutionID: execution.ID,
		TriggerData: execution.TriggerData,
	}

	if err := e.bus.Publish(ctx, pipeline.ID, event); err != nil {
		e.logger.Warn("Failed to publish execution started event", "error", err)
	}
}

func (e *Executor) publishFinished(ctx context.Context, pipeline *models.Pipeline, execution *models.Execution) {
	if e.bus == nil {
		return
	}

	event := events.PipelineExecutionFinished{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.PipelineExecutionFinishedEvent,
			Timestamp: time.Now().UTC(),
		},
		PipelineID:  pipeline.ID,
		ExecutionID: execution.ID,
		Status:      string(execution.Status),
		Error:       execution.ErrorMessage,
		Duration:    execution.CompletedAt.Sub(execution.StartedAt),
	}

	if err := e.bus.Publish(ctx, pipeline.ID, event); err != nil {
		e.logger.Warn("Failed to publish execution finished event", "error", err)
	}
}
