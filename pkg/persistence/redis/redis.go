// Package redis provides a Redis persistence implementation. Records are JSON
// values under "automation:<kind>:<id>" keys; SET is the atomic upsert.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

const keyPrefix = "automation"

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client goredis.UniversalClient
}

// NewPersistence connects to Redis using the given URL
// (redis://[user:pass@]host:port/db).
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{client: client}, nil
}

func (p *Persistence) Pipelines() persistence.PipelineRepository {
	return pipelineRepo{newKeyspace[models.Pipeline](p.client, "pipelines", "pipeline", persistence.ErrPipelineNotFound)}
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return executionRepo{newKeyspace[models.Execution](p.client, "executions", "execution", persistence.ErrExecutionNotFound)}
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return templateRepo{newKeyspace[models.WorkflowTemplate](p.client, "templates", "workflow template", persistence.ErrTemplateNotFound)}
}

func (p *Persistence) Rules() persistence.RuleRepository {
	return ruleRepo{newKeyspace[models.AutomationRule](p.client, "rules", "automation rule", persistence.ErrRuleNotFound)}
}

func (p *Persistence) Schedules() persistence.ScheduleRepository {
	return scheduleRepo{newKeyspace[models.Schedule](p.client, "schedules", "schedule", persistence.ErrScheduleNotFound)}
}

// HealthCheck pings the Redis server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the client connection pool.
func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

type keyspace[T any] struct {
	client   goredis.UniversalClient
	space    string
	kind     string
	notFound error
}

func newKeyspace[T any](client goredis.UniversalClient, space, kind string, notFound error) *keyspace[T] {
	return &keyspace[T]{client: client, space: space, kind: kind, notFound: notFound}
}

func (k *keyspace[T]) key(id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, k.space, id)
}

func (k *keyspace[T]) list(ctx context.Context) ([]*T, error) {
	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, k.space)

	var keys []string

	iter := k.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, persistence.NewStoreError("List", k.kind, "", err)
	}

	sort.Strings(keys)

	out := make([]*T, 0, len(keys))

	for _, key := range keys {
		payload, err := k.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue // deleted between scan and get
		}

		if err != nil {
			return nil, persistence.NewStoreError("List", k.kind, key, err)
		}

		record := new(T)
		if err := json.Unmarshal(payload, record); err != nil {
			return nil, persistence.NewStoreError("List", k.kind, key, err)
		}

		out = append(out, record)
	}

	return out, nil
}

func (k *keyspace[T]) get(ctx context.Context, id string) (*T, error) {
	payload, err := k.client.Get(ctx, k.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewStoreError("GetByID", k.kind, id, k.notFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", k.kind, id, err)
	}

	record := new(T)
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, persistence.NewStoreError("GetByID", k.kind, id, err)
	}

	return record, nil
}

func (k *keyspace[T]) save(ctx context.Context, id string, record *T) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return persistence.NewStoreError("Save", k.kind, id, err)
	}

	if err := k.client.Set(ctx, k.key(id), payload, 0).Err(); err != nil {
		return persistence.NewStoreError("Save", k.kind, id, err)
	}

	return nil
}

func (k *keyspace[T]) delete(ctx context.Context, id string) error {
	removed, err := k.client.Del(ctx, k.key(id)).Result()
	if err != nil {
		return persistence.NewStoreError("Delete", k.kind, id, err)
	}

	if removed == 0 {
		return persistence.NewStoreError("Delete", k.kind, id, k.notFound)
	}

	return nil
}

type pipelineRepo struct{ k *keyspace[models.Pipeline] }

func (r pipelineRepo) List(ctx context.Context) ([]*models.Pipeline, error) { return r.k.list(ctx) }
func (r pipelineRepo) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	return r.k.get(ctx, id)
}
func (r pipelineRepo) Save(ctx context.Context, pipeline *models.Pipeline) error {
	return r.k.save(ctx, pipeline.ID, pipeline)
}
func (r pipelineRepo) Delete(ctx context.Context, id string) error { return r.k.delete(ctx, id) }

type executionRepo struct{ k *keyspace[models.Execution] }

func (r executionRepo) List(ctx context.Context) ([]*models.Execution, error) {
	return r.k.list(ctx)
}
func (r executionRepo) ListByDefinition(ctx context.Context, definitionID string) ([]*models.Execution, error) {
	all, err := r.k.list(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Execution, 0, len(all))

	for _, execution := range all {
		if execution.DefinitionID == definitionID {
			out = append(out, execution)
		}
	}

	return out, nil
}
func (r executionRepo) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	return r.k.get(ctx, id)
}
func (r executionRepo) Save(ctx context.Context, execution *models.Execution) error {
	return r.k.save(ctx, execution.ID, execution)
}

type templateRepo struct{ k *keyspace[models.WorkflowTemplate] }

func (r templateRepo) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return r.k.list(ctx)
}
func (r templateRepo) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return r.k.get(ctx, id)
}
func (r templateRepo) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	return r.k.save(ctx, template.ID, template)
}
func (r templateRepo) Delete(ctx context.Context, id string) error { return r.k.delete(ctx, id) }

type ruleRepo struct{ k *keyspace[models.AutomationRule] }

func (r ruleRepo) List(ctx context.Context) ([]*models.AutomationRule, error) {
	return r.k.list(ctx)
}
func (r ruleRepo) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	return r.k.get(ctx, id)
}
func (r ruleRepo) Save(ctx context.Context, rule *models.AutomationRule) error {
	return r.k.save(ctx, rule.ID, rule)
}
func (r ruleRepo) Delete(ctx context.Context, id string) error { return r.k.delete(ctx, id) }

type scheduleRepo struct{ k *keyspace[models.Schedule] }

func (r scheduleRepo) List(ctx context.Context) ([]*models.Schedule, error) {
	return r.k.list(ctx)
}
func (r scheduleRepo) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	return r.k.get(ctx, id)
}
func (r scheduleRepo) Save(ctx context.Context, schedule *models.Schedule) error {
	return r.k.save(ctx, schedule.ID, schedule)
}
func (r scheduleRepo) Delete(ctx context.Context, id string) error { return r.k.delete(ctx, id) }
