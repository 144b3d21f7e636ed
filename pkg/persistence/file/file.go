// Package file provides a file-based persistence implementation. Each record
// is stored as a JSON document under <root>/<kind>/<id>.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root       string
	pipelines  *store[models.Pipeline]
	executions *store[models.Execution]
	templates  *store[models.WorkflowTemplate]
	rules      *store[models.AutomationRule]
	schedules  *store[models.Schedule]
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A "file://" prefix is stripped so database URLs work directly.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:       cleanRoot,
		pipelines:  newStore[models.Pipeline](cleanRoot, "pipelines", persistence.ErrPipelineNotFound),
		executions: newStore[models.Execution](cleanRoot, "executions", persistence.ErrExecutionNotFound),
		templates:  newStore[models.WorkflowTemplate](cleanRoot, "templates", persistence.ErrTemplateNotFound),
		rules:      newStore[models.AutomationRule](cleanRoot, "rules", persistence.ErrRuleNotFound),
		schedules:  newStore[models.Schedule](cleanRoot, "schedules", persistence.ErrScheduleNotFound),
	}
}

func (p *Persistence) Pipelines() persistence.PipelineRepository   { return pipelineRepo{p.pipelines} }
func (p *Persistence) Executions() persistence.ExecutionRepository { return executionRepo{p.executions} }
func (p *Persistence) Templates() persistence.TemplateRepository   { return templateRepo{p.templates} }
func (p *Persistence) Rules() persistence.RuleRepository           { return ruleRepo{p.rules} }
func (p *Persistence) Schedules() persistence.ScheduleRepository   { return scheduleRepo{p.schedules} }

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence there is
// nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type store[T any] struct {
	mu       sync.RWMutex
	dir      string
	kind     string
	notFound error
}

func newStore[T any](root, kind string, notFound error) *store[T] {
	return &store[T]{
		dir:      filepath.Join(root, kind),
		kind:     kind,
		notFound: notFound,
	}
}

func (s *store[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *store[T]) list() ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []*T{}, nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("List", s.kind, "", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	out := make([]*T, 0, len(names))

	for _, name := range names {
		record, err := readRecord[T](filepath.Join(s.dir, name))
		if err != nil {
			return nil, persistence.NewStoreError("List", s.kind, name, err)
		}

		out = append(out, record)
	}

	return out, nil
}

func (s *store[T]) get(id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := readRecord[T](s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewStoreError("GetByID", s.kind, id, s.notFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", s.kind, id, err)
	}

	return record, nil
}

func (s *store[T]) save(id string, record *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return persistence.NewStoreError("Save", s.kind, id, err)
	}

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return persistence.NewStoreError("Save", s.kind, id, err)
	}

	// Write-then-rename keeps the upsert atomic for concurrent readers.
	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return persistence.NewStoreError("Save", s.kind, id, err)
	}

	if err := os.Rename(tmp, s.path(id)); err != nil {
		return persistence.NewStoreError("Save", s.kind, id, err)
	}

	return nil
}

func (s *store[T]) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewStoreError("Delete", s.kind, id, s.notFound)
	}

	if err != nil {
		return persistence.NewStoreError("Delete", s.kind, id, err)
	}

	return nil
}

func readRecord[T any](path string) (*T, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	record := new(T)
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return record, nil
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
