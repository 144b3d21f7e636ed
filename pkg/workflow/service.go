// Package workflow runs reusable workflow templates over the dependency
// graph scheduler. Unlike pipeline runs, workflow executions are asynchronous
// and fail fast: once a step fails no further step is launched.
package workflow

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
)

var (
	// ErrTemplateDisabled is returned when executing a template that exists
	// but is not enabled.
	ErrTemplateDisabled = errors.New("workflow template is disabled")

	// ErrTemplateNotFound is returned when the template id is unknown.
	ErrTemplateNotFound = persistence.ErrTemplateNotFound

	// ErrUnknownStepType is returned when a template declares a step type
	// outside the known set.
	ErrUnknownStepType = errors.New("unknown step type")
)

// Service is the workflow execution service.
type Service struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	bus         eventbus.EventBus

	runs sync.WaitGroup
}

// NewService creates a workflow service. The event bus may be nil.
func NewService(logger *slog.Logger, store persistence.Persistence, reg *registry.Registry, bus eventbus.EventBus) *Service {
	return &Service{
		logger:      logger,
		persistence: store,
		registry:    reg,
		bus:         bus,
	}
}

// CreateTemplate validates and registers a reusable workflow template. This
// is a pure metadata operation; nothing executes.
func (s *Service) CreateTemplate(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if err := models.ValidateTemplateDefinition(template); err != nil {
		return nil, err
	}

	units := make([]scheduler.Unit, 0, len(template.Steps))

	for _, step := range template.Steps {
		if !step.Type.Valid() {
			return nil, fmt.Errorf("step %s: %w: %s", step.ID, ErrUnknownStepType, step.Type)
		}

		units = append(units, scheduler.Unit{ID: step.ID, DependsOn: step.DependsOn})
	}

	if err := scheduler.Validate(units); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if template.ID == "" {
		template.ID = uuid.New().String()
	}

	template.CreatedAt = now
	template.UpdatedAt = now

	if err := s.persistence.Templates().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// Templates lists all registered templates.
func (s *Service) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return s.persistence.Templates().List(ctx)
}

// Template fetches one template by id.
func (s *Service) Template(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return s.persistence.Templates().GetByID(ctx, id)
}

// DeleteTemplate removes a template. Running executions keep their own copy
// of the step graph and are unaffected.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.persistence.Templates().Delete(ctx, id)
}

// Execute starts an asynchronous execution of the template and returns the
// execution id immediately. The run proceeds independently of the caller; its
// outcome is always observable by polling the execution record.
func (s *Service) Execute(ctx context.Context, templateID string, triggerConfig map[string]any) (string, error) {
	template, err := s.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch template %s: %w", templateID, err)
	}

	if !template.Enabled {
		return "", fmt.Errorf("template %s: %w", templateID, ErrTemplateDisabled)
	}

	units := make([]scheduler.Unit, 0, len(template.Steps))
	stepIDs := make([]string, 0, len(template.Steps))
	stepsByID := make(map[string]*models.WorkflowStep, len(template.Steps))

	for _, step := range template.Steps {
		units = append(units, scheduler.Unit{ID: step.ID, DependsOn: step.DependsOn})
		stepIDs = append(stepIDs, step.ID)
		stepsByID[step.ID] = step
	}

	if err := scheduler.Validate(units); err != nil {
		return "", err
	}

	execution := models.NewExecution(models.ExecutionKindWorkflow, templateID, stepIDs, triggerConfig)

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return "", fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
	}

	s.runs.Add(1)

	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer s.runs.Done()
		s.run(runCtx, template, execution, units, stepsByID)
	}()

	return execution.ID, nil
}

// Execution returns the persisted execution record by id.
func (s *Service) Execution(ctx context.Context, executionID string) (*models.Execution, error) {
	return s.persistence.Executions().GetByID(ctx, executionID)
}

// Wait blocks until all in-flight executions have finished. Used during
// shutdown and in tests.
func (s *Service) Wait() {
	s.runs.Wait()
}

// run drives one supervised execution. Failures of any kind, panics
// included, always land in the execution record.
func (s *Service) run(ctx context.Context, template *models.WorkflowTemplate, execution *models.Execution, units []scheduler.Unit, stepsByID map[string]*models.WorkflowStep) {
	logger := s.logger.With("template_id", template.ID, "execution_id", execution.ID)

	var mu sync.Mutex

	defer func() {
		if r := recover(); r != nil {
			mu.Lock()
			execution.Log = append(execution.Log, fmt.Sprintf("Execution panicked: %v", r))
			execution.Finish(models.ExecutionStatusFailed, fmt.Sprintf("panic: %v", r))
			mu.Unlock()

			s.persistProgress(ctx, execution)
			logger.Error("Workflow execution panicked", "panic", r)
		}
	}()

	logger.Info("Starting workflow execution", "total_steps", len(units))

	report, err := scheduler.Run(ctx, units, func(ctx context.Context, unit scheduler.Unit, completed map[string]any) (any, error) {
		return s.executeStep(ctx, stepsByID[unit.ID], completed)
	}, scheduler.Options{
		FailFast: true,
		OnTransition: func(unitID string, progress scheduler.Progress) {
			step := stepsByID[unitID]

			mu.Lock()
			defer mu.Unlock()

			switch progress.Status {
			case scheduler.StatusRunning:
				execution.Log = append(execution.Log, "Starting step: "+step.Name)
			case scheduler.StatusCompleted:
				execution.Log = append(execution.Log, "Completed step: "+step.Name)
			case scheduler.StatusFailed:
				execution.Log = append(execution.Log,
					fmt.Sprintf("Step failed: %s - %v", step.Name, progress.Err))
			}

			applyStepProgress(execution, unitID, progress)
			s.persistProgress(ctx, execution)
		},
	})
	if err != nil {
		// Graph errors are caught in Execute before the goroutine starts;
		// reaching this means the definition changed underneath us.
		mu.Lock()
		execution.Finish(models.ExecutionStatusFailed, err.Error())
		mu.Unlock()

		s.persistProgress(ctx, execution)

		return
	}

	status := models.ExecutionStatusCompleted
	errorMessage := ""

	if report.Status == scheduler.StatusFailed {
		status = models.ExecutionStatusFailed
		errorMessage = report.Err.Error()
	}

	mu.Lock()
	execution.Finish(status, errorMessage)
	mu.Unlock()

	s.persistProgress(ctx, execution)
	s.publishFinished(ctx, template, execution)

	logger.Info("Workflow execution finished", "status", execution.Status)
}

// executeStep resolves the step handler by type and applies the step's own
// timeout; exceeding it is treated exactly like a handler error.
func (s *Service) executeStep(ctx context.Context, step *models.WorkflowStep, completed map[string]any) (any, error) {
	fn, err := s.registry.Step(step.Type)
	if err != nil {
		return nil, err
	}

	timeout := step.Timeout()
	if timeout <= 0 {
		return invokeStep(ctx, fn, step, completed)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, err := invokeStep(stepCtx, fn, step, completed)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-stepCtx.Done():
		return nil, fmt.Errorf("step %s timed out after %s", step.ID, timeout)
	}
}

// invokeStep shields the run from handler panics; step handlers are external
// code and a panicking one fails its step like any other error.
func invokeStep(ctx context.Context, fn registry.StepFunc, step *models.WorkflowStep, completed map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", step.ID, r)
		}
	}()

	return fn(ctx, step.Config, completed)
}

func applyStepProgress(execution *models.Execution, stepID string, progress scheduler.Progress) {
	stepProgress := execution.StageProgress[stepID]
	if stepProgress == nil {
		stepProgress = &models.StageProgress{}
		execution.StageProgress[stepID] = stepProgress
	}

	stepProgress.Status = models.StageStatus(progress.Status)
	stepProgress.StartedAt = progress.StartedAt
	stepProgress.CompletedAt = progress.CompletedAt
	stepProgress.DurationMS = progress.Duration.Milliseconds()
	stepProgress.Result = progress.Result

	if progress.Err != nil {
		stepProgress.Error = progress.Err.Error()
	}

	if progress.Status == scheduler.StatusCompleted {
		execution.Results[stepID] = progress.Result
	}
}

// persistProgress writes the execution snapshot, retrying once and logging
// loudly when observability would otherwise be lost.
func (s *Service) persistProgress(ctx context.Context, execution *models.Execution) {
	err := s.persistence.Executions().Save(ctx, execution)
	if err == nil {
		return
	}

	s.logger.Warn("Execution progress write failed, retrying",
		"execution_id", execution.ID, "error", err)

	if err = s.persistence.Executions().Save(ctx, execution); err != nil {
		s.logger.Error("Execution progress lost", "execution_id", execution.ID, "error", err)
	}
}

func (s *Service) publishFinished(ctx context.Context, template *models.WorkflowTemplate, execution *models.Execution) {
	if s.bus == nil {
		return
	}

	event := events.WorkflowExecutionFinished{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.WorkflowExecutionFinishedEvent,
			Timestamp: time.Now().UTC(),
		},
		TemplateID:  template.ID,
		ExecutionID: execution.ID,
		Status:      string(execution.Status),
		Error:       execution.ErrorMessage,
		Duration:    execution.CompletedAt.Sub(execution.StartedAt),
	}

	if err := s.bus.Publish(ctx, template.ID, event); err != nil {
		s.logger.Warn("Failed to publish execution finished event", "error", err)
	}
}
