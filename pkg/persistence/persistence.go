// Package persistence provides the data storage abstraction for pipelines,
// workflow templates, executions, automation rules and schedules.
package persistence

import (
	"context"

	"github.com/lumenpress/automation/pkg/models"
)

// Persistence aggregates the record stores backing the execution core. Every
// Save is an atomic upsert-by-id; no multi-record transactions are required.
type Persistence interface {
	Pipelines() PipelineRepository
	Executions() ExecutionRepository
	Templates() TemplateRepository
	Rules() RuleRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type PipelineRepository interface {
	List(ctx context.Context) ([]*models.Pipeline, error)
	GetByID(ctx context.Context, id string) (*models.Pipeline, error)
	Save(ctx context.Context, pipeline *models.Pipeline) error
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	List(ctx context.Context) ([]*models.Execution, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*models.Execution, error)
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	Save(ctx context.Context, execution *models.Execution) error
}

type TemplateRepository interface {
	List(ctx context.Context) ([]*models.WorkflowTemplate, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	Delete(ctx context.Context, id string) error
}

type RuleRepository interface {
	List(ctx context.Context) ([]*models.AutomationRule, error)
	GetByID(ctx context.Context, id string) (*models.AutomationRule, error)
	Save(ctx context.Context, rule *models.AutomationRule) error
	Delete(ctx context.Context, id string) error
}

type ScheduleRepository interface {
	List(ctx context.Context) ([]*models.Schedule, error)
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
}
