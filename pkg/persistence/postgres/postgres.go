// Package postgres provides a PostgreSQL persistence implementation. Records
// are stored as JSONB documents keyed by id, matching the atomic
// upsert-by-id contract of the persistence layer.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects to PostgreSQL and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := newMigrationManager(logger, database, migrations())
	if err := migrationManager.run(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger}, nil
}

func (p *Persistence) Pipelines() persistence.PipelineRepository {
	return pipelineRepo{newTable[models.Pipeline](p.db, "automation_pipelines", "pipeline", persistence.ErrPipelineNotFound)}
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return executionRepo{newTable[models.Execution](p.db, "automation_executions", "execution", persistence.ErrExecutionNotFound)}
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return templateRepo{newTable[models.WorkflowTemplate](p.db, "automation_templates", "workflow template", persistence.ErrTemplateNotFound)}
}

func (p *Persistence) Rules() persistence.RuleRepository {
	return ruleRepo{newTable[models.AutomationRule](p.db, "automation_rules", "automation rule", persistence.ErrRuleNotFound)}
}

func (p *Persistence) Schedules() persistence.ScheduleRepository {
	return scheduleRepo{newTable[models.Schedule](p.db, "automation_schedules", "schedule", persistence.ErrScheduleNotFound)}
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
