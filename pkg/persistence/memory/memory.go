// Package memory provides an in-memory persistence implementation, primarily
// for tests and single-process deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
// Records are cloned on save and on read so callers never share memory with
// the store.
type Persistence struct {
	pipelines  *store[models.Pipeline]
	executions *store[models.Execution]
	templates  *store[models.WorkflowTemplate]
	rules      *store[models.AutomationRule]
	schedules  *store[models.Schedule]
}

// NewPersistence creates an empty in-memory persistence layer.
func NewPersistence() *Persistence {
	return &Persistence{
		pipelines:  newStore[models.Pipeline]("pipeline", persistence.ErrPipelineNotFound),
		executions: newStore[models.Execution]("execution", persistence.ErrExecutionNotFound),
		templates:  newStore[models.WorkflowTemplate]("workflow template", persistence.ErrTemplateNotFound),
		rules:      newStore[models.AutomationRule]("automation rule", persistence.ErrRuleNotFound),
		schedules:  newStore[models.Schedule]("schedule", persistence.ErrScheduleNotFound),
	}
}

func (p *Persistence) Pipelines() persistence.PipelineRepository   { return pipelineRepo{p.pipelines} }
func (p *Persistence) Executions() persistence.ExecutionRepository { return executionRepo{p.executions} }
func (p *Persistence) Templates() persistence.TemplateRepository   { return templateRepo{p.templates} }
func (p *Persistence) Rules() persistence.RuleRepository           { return ruleRepo{p.rules} }
func (p *Persistence) Schedules() persistence.ScheduleRepository   { return scheduleRepo{p.schedules} }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

// store is a mutex-guarded map of JSON-cloned records.
type store[T any] struct {
	mu       sync.RWMutex
	records  map[string]*T
	kind     string
	notFound error
}

func newStore[T any](kind string, notFound error) *store[T] {
	return &store[T]{
		records:  make(map[string]*T),
		kind:     kind,
		notFound: notFound,
	}
}

func (s *store[T]) list() ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	out := make([]*T, 0, len(ids))

	for _, id := range ids {
		record, err := clone(s.records[id])
		if err != nil {
			return nil, persistence.NewStoreError("List", s.kind, id, err)
		}

		out = append(out, record)
	}

	return out, nil
}

func (s *store[T]) get(id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", s.kind, id, s.notFound)
	}

	cloned, err := clone(record)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", s.kind, id, err)
	}

	return cloned, nil
}

func (s *store[T]) save(id string, record *T) error {
	cloned, err := clone(record)
	if err != nil {
		return persistence.NewStoreError("Save", s.kind, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = cloned

	return nil
}

func (s *store[T]) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return persistence.NewStoreError("Delete", s.kind, id, s.notFound)
	}

	delete(s.records, id)

	return nil
}

func clone[T any](record *T) (*T, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to clone record: %w", err)
	}

	out := new(T)
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, fmt.Errorf("failed to clone record: %w", err)
	}

	return out, nil
}

type pipelineRepo struct{ s *store[models.Pipeline] }

func (r pipelineRepo) List(_ context.Context) ([]*models.Pipeline, error) { return r.s.list() }
func (r pipelineRepo) GetByID(_ context.Context, id string) (*models.Pipeline, error) {
	return r.s.get(id)
}
func (r pipelineRepo) Save(_ context.Context, pipeline *models.Pipeline) error {
	return r.s.save(pipeline.ID, pipeline)
}
func (r pipelineRepo) Delete(_ context.Context, id string) error { return r.s.delete(id) }

type executionRepo struct{ s *store[models.Execution] }

func (r executionRepo) List(_ context.Context) ([]*models.Execution, error) { return r.s.list() }
func (r executionRepo) ListByDefinition(_ context.Context, definitionID string) ([]*models.Execution, error) {
	all, err := r.s.list()
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
func (r executionRepo) GetByID(_ context.Context, id string) (*models.Execution, error) {
	return r.s.get(id)
}
func (r executionRepo) Save(_ context.Context, execution *models.Execution) error {
	return r.s.save(execution.ID, execution)
}

type templateRepo struct{ s *store[models.WorkflowTemplate] }

func (r templateRepo) List(_ context.Context) ([]*models.WorkflowTemplate, error) {
	return r.s.list()
}
func (r templateRepo) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	return r.s.get(id)
}
func (r templateRepo) Save(_ context.Context, template *models.WorkflowTemplate) error {
	return r.s.save(template.ID, template)
}
func (r templateRepo) Delete(_ context.Context, id string) error { return r.s.delete(id) }

type ruleRepo struct{ s *store[models.AutomationRule] }

func (r ruleRepo) List(_ context.Context) ([]*models.AutomationRule, error) { return r.s.list() }
func (r ruleRepo) GetByID(_ context.Context, id string) (*models.AutomationRule, error) {
	return r.s.get(id)
}
func (r ruleRepo) Save(_ context.Context, rule *models.AutomationRule) error {
	return r.s.save(rule.ID, rule)
}
func (r ruleRepo) Delete(_ context.Context, id string) error { return r.s.delete(id) }

type scheduleRepo struct{ s *store[models.Schedule] }

func (r scheduleRepo) List(_ context.Context) ([]*models.Schedule, error) { return r.s.list() }
func (r scheduleRepo) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	return r.s.get(id)
}
func (r scheduleRepo) Save(_ context.Context, schedule *models.Schedule) error {
	return r.s.save(schedule.ID, schedule)
}
func (r scheduleRepo) Delete(_ context.Context, id string) error { return r.s.delete(id) }
