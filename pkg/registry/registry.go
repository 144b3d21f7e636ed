// Package registry holds the external handler functions that pipeline stages
// and workflow steps are bound to. The execution core only knows handlers by
// their registered tag; the concrete behavior lives with the caller.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lumenpress/automation/pkg/models"
)

// StageFunc executes one pipeline stage. The payload is the stage's own
// configuration merged with trigger data, accumulated upstream results and
// the execution id.
type StageFunc func(ctx context.Context, payload map[string]any) (any, error)

// StepFunc executes one workflow step of a given type against the step's
// configuration and the accumulated context of completed steps.
type StepFunc func(ctx context.Context, config map[string]any, completed map[string]any) (any, error)

type Registry struct {
	logger *slog.Logger

	mu     sync.RWMutex
	stages map[string]StageFunc
	steps  map[models.StepType]StepFunc
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		stages: make(map[string]StageFunc),
		steps:  make(map[models.StepType]StepFunc),
	}
}

// RegisterStage binds a handler id to a stage function. Re-registering an id
// replaces the previous handler.
func (r *Registry) RegisterStage(id string, fn StageFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stages[id] = fn
}

// Stage resolves a stage handler by id.
func (r *Registry) Stage(id string) (StageFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.stages[id]
	if !ok {
		return nil, fmt.Errorf("stage handler '%s' not registered", id)
	}

	return fn, nil
}

// RegisterStep binds a workflow step type to its handler.
func (r *Registry) RegisterStep(stepType models.StepType, fn StepFunc) {
	if !stepType.Valid() {
		r.logger.Warn("Refusing to register unknown step type", "step_type", stepType)

		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps[stepType] = fn
}

// Step resolves a step handler by type.
func (r *Registry) Step(stepType models.StepType) (StepFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.steps[stepType]
	if !ok {
		return nil, fmt.Errorf("step type '%s' not registered", stepType)
	}

	return fn, nil
}

// HealthCheck reports whether any handlers are registered.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.stages) == 0 && len(r.steps) == 0 {
		return "No handlers registered", false
	}

	return fmt.Sprintf("%d stage handlers, %d step handlers", len(r.stages), len(r.steps)), true
}
