package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

const currentSchemaVersion = 1

func migrations() map[int]string {
	recordTable := func(name string) string {
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				data JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);`, name)
	}

	return map[int]string{
		1: recordTable("automation_pipelines") +
			recordTable("automation_executions") +
			recordTable("automation_templates") +
			recordTable("automation_rules") +
			recordTable("automation_schedules") + `
			CREATE INDEX IF NOT EXISTS automation_executions_definition_idx
				ON automation_executions ((data->>'definition_id'));`,
	}
}

// migrationManager handles database schema creation and updates.
type migrationManager struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations map[int]string
}

func newMigrationManager(logger *slog.Logger, db *sql.DB, migrations map[int]string) *migrationManager {
	return &migrationManager{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

func (m *migrationManager) run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting database migrations")

	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS automation_schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion sql.NullInt64

	err = m.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM automation_schema_migrations`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	m.logger.InfoContext(ctx, "Current schema version", "version", currentVersion.Int64)

	versions := make([]int, 0, len(m.migrations))
	for version := range m.migrations {
		versions = append(versions, version)
	}

	sort.Ints(versions)

	for _, version := range versions {
		if int64(version) <= currentVersion.Int64 {
			continue
		}

		if _, err := m.db.ExecContext(ctx, m.migrations[version]); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		_, err := m.db.ExecContext(ctx,
			`INSERT INTO automation_schema_migrations (version) VALUES ($1)`, version)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
	}

	m.logger.InfoContext(ctx, "Database migrations completed", "version", currentSchemaVersion)

	return nil
}
