// Package services provides the application services between the HTTP layer
// and persistence.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
	"github.com/lumenpress/automation/pkg/scheduler"
)

// ErrValidation marks definition errors the caller can fix.
var ErrValidation = errors.New("validation failed")

// IsValidationError reports whether the error is caller-fixable.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// Pipelines manages pipeline definitions.
type Pipelines struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewPipelines creates a pipeline definition service.
func NewPipelines(store persistence.Persistence) *Pipelines {
	return &Pipelines{
		persistence: store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create validates and registers a pipeline definition. The stage graph must
// be well formed before the pipeline is accepted.
func (p *Pipelines) Create(ctx context.Context, pipeline *models.Pipeline) (*models.Pipeline, error) {
	if err := p.validate.Struct(pipeline); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := models.ValidatePipelineDefinition(pipeline); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	units := make([]scheduler.Unit, 0, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		units = append(units, scheduler.Unit{ID: stage.ID, DependsOn: stage.DependsOn})
	}

	if err := scheduler.Validate(units); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	now := time.Now().UTC()

	if pipeline.ID == "" {
		pipeline.ID = uuid.New().String()
	}

	pipeline.Efficiency = 100
	pipeline.Throughput = 0
	pipeline.CreatedAt = now
	pipeline.UpdatedAt = now

	if err := p.persistence.Pipelines().Save(ctx, pipeline); err != nil {
		return nil, fmt.Errorf("failed to save pipeline: %w", err)
	}

	return pipeline, nil
}

// List returns all pipeline definitions.
func (p *Pipelines) List(ctx context.Context) ([]*models.Pipeline, error) {
	return p.persistence.Pipelines().List(ctx)
}

// FetchByID returns one pipeline definition.
func (p *Pipelines) FetchByID(ctx context.Context, id string) (*models.Pipeline, error) {
	return p.persistence.Pipelines().GetByID(ctx, id)
}

// Delete removes a pipeline definition.
func (p *Pipelines) Delete(ctx context.Context, id string) error {
	return p.persistence.Pipelines().Delete(ctx, id)
}

// HealthCheck checks the health of the persistence layer.
func (p *Pipelines) HealthCheck(ctx context.Context) (string, bool) {
	if p.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := p.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Schedules manages cron schedules bound to pipelines.
type Schedules struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewSchedules creates a schedule service.
func NewSchedules(store persistence.Persistence) *Schedules {
	return &Schedules{
		persistence: store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create validates and registers a schedule. The referenced pipeline must
// exist; the cron expression stays opaque here.
func (s *Schedules) Create(ctx context.Context, schedule *models.Schedule) (*models.Schedule, error) {
	if err := s.validate.Struct(schedule); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if _, err := s.persistence.Pipelines().GetByID(ctx, schedule.PipelineID); err != nil {
		return nil, fmt.Errorf("schedule references pipeline %s: %w", schedule.PipelineID, err)
	}

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}

	schedule.CreatedAt = time.Now().UTC()

	if err := s.persistence.Schedules().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	return schedule, nil
}

// List returns all schedules.
func (s *Schedules) List(ctx context.Context) ([]*models.Schedule, error) {
	return s.persistence.Schedules().List(ctx)
}

// Delete removes a schedule.
func (s *Schedules) Delete(ctx context.Context, id string) error {
	return s.persistence.Schedules().Delete(ctx, id)
}
