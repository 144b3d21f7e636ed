package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

// table is a JSONB document table keyed by id.
type table[T any] struct {
	db       *sql.DB
	name     string
	kind     string
	notFound error
}

func newTable[T any](db *sql.DB, name, kind string, notFound error) *table[T] {
	return &table[T]{db: db, name: name, kind: kind, notFound: notFound}
}

func (t *table[T]) list(ctx context.Context) ([]*T, error) {
	query := fmt.Sprintf(`SELECT data FROM %s ORDER BY id`, t.name)

	return t.query(ctx, query)
}

func (t *table[T]) query(ctx context.Context, query string, args ...any) ([]*T, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", t.kind, "", err)
	}
	defer rows.Close()

	var out []*T

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, persistence.NewStoreError("List", t.kind, "", err)
		}

		record := new(T)
		if err := json.Unmarshal(payload, record); err != nil {
			return nil, persistence.NewStoreError("List", t.kind, "", err)
		}

		out = append(out, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", t.kind, "", err)
	}

	if out == nil {
		out = []*T{}
	}

	return out, nil
}

func (t *table[T]) get(ctx context.Context, id string) (*T, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, t.name)

	var payload []byte

	err := t.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", t.kind, id, t.notFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", t.kind, id, err)
	}

	record := new(T)
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, persistence.NewStoreError("GetByID", t.kind, id, err)
	}

	return record, nil
}

func (t *table[T]) save(ctx context.Context, id string, record *T) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return persistence.NewStoreError("Save", t.kind, id, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, t.name)

	if _, err := t.db.ExecContext(ctx, query, id, payload); err != nil {
		return persistence.NewStoreError("Save", t.kind, id, err)
	}

	return nil
}

func (t *table[T]) delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.name)

	result, err := t.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewStoreError("Delete", t.kind, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", t.kind, id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", t.kind, id, t.notFound)
	}

	return nil
}

type pipelineRepo struct{ t *table[models.Pipeline] }

func (r pipelineRepo) List(ctx context.Context) ([]*models.Pipeline, error) { return r.t.list(ctx) }
func (r pipelineRepo) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	return r.t.get(ctx, id)
}
func (r pipelineRepo) Save(ctx context.Context, pipeline *models.Pipeline) error {
	return r.t.save(ctx, pipeline.ID, pipeline)
}
func (r pipelineRepo) Delete(ctx context.Context, id string) error { return r.t.delete(ctx, id) }

type executionRepo struct{ t *table[models.Execution] }

func (r executionRepo) List(ctx context.Context) ([]*models.Execution, error) {
	return r.t.list(ctx)
}
func (r executionRepo) ListByDefinition(ctx context.Context, definitionID string) ([]*models.Execution, error) {
	query := fmt.Sprintf(
		`SELECT data FROM %s WHERE data->>'definition_id' = $1 ORDER BY id`, r.t.name)

	return r.t.query(ctx, query, definitionID)
}
func (r executionRepo) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	return r.t.get(ctx, id)
}
func (r executionRepo) Save(ctx context.Context, execution *models.Execution) error {
	return r.t.save(ctx, execution.ID, execution)
}

type templateRepo struct{ t *table[models.WorkflowTemplate] }

func (r templateRepo) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return r.t.list(ctx)
}
func (r templateRepo) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return r.t.get(ctx, id)
}
func (r templateRepo) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	return r.t.save(ctx, template.ID, template)
}
func (r templateRepo) Delete(ctx context.Context, id string) error { return r.t.delete(ctx, id) }

type ruleRepo struct{ t *table[models.AutomationRule] }

func (r ruleRepo) List(ctx context.Context) ([]*models.AutomationRule, error) {
	return r.t.list(ctx)
}
func (r ruleRepo) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	return r.t.get(ctx, id)
}
func (r ruleRepo) Save(ctx context.Context, rule *models.AutomationRule) error {
	return r.t.save(ctx, rule.ID, rule)
}
func (r ruleRepo) Delete(ctx context.Context, id string) error { return r.t.delete(ctx, id) }

type scheduleRepo struct{ t *table[models.Schedule] }

func (r scheduleRepo) List(ctx context.Context) ([]*models.Schedule, error) {
	return r.t.list(ctx)
}
func (r scheduleRepo) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	return r.t.get(ctx, id)
}
func (r scheduleRepo) Save(ctx context.Context, schedule *models.Schedule) error {
	return r.t.save(ctx, schedule.ID, schedule)
}
func (r scheduleRepo) Delete(ctx context.Context, id string) error { return r.t.delete(ctx, id) }
