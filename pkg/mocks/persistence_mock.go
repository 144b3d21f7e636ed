// Package mocks provides testify mocks for the persistence and event bus
// interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

// MockPersistence is a mock implementation of persistence.Persistence that
// hands out mock repositories.
type MockPersistence struct {
	mock.Mock

	PipelineRepo  *MockPipelineRepository
	ExecutionRepo *MockExecutionRepository
	TemplateRepo  *MockTemplateRepository
	RuleRepo      *MockRuleRepository
	ScheduleRepo  *MockScheduleRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		PipelineRepo:  &MockPipelineRepository{},
		ExecutionRepo: &MockExecutionRepository{},
		TemplateRepo:  &MockTemplateRepository{},
		RuleRepo:      &MockRuleRepository{},
		ScheduleRepo:  &MockScheduleRepository{},
	}
}

func (m *MockPersistence) Pipelines() persistence.PipelineRepository   { return m.PipelineRepo }
func (m *MockPersistence) Executions() persistence.ExecutionRepository { return m.ExecutionRepo }
func (m *MockPersistence) Templates() persistence.TemplateRepository   { return m.TemplateRepo }
func (m *MockPersistence) Rules() persistence.RuleRepository           { return m.RuleRepo }
func (m *MockPersistence) Schedules() persistence.ScheduleRepository   { return m.ScheduleRepo }

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockPipelineRepository is a mock implementation of
// persistence.PipelineRepository.
type MockPipelineRepository struct {
	mock.Mock
}

func (m *MockPipelineRepository) List(ctx context.Context) ([]*models.Pipeline, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Pipeline), args.Error(1)
}

func (m *MockPipelineRepository) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Pipeline), args.Error(1)
}

func (m *MockPipelineRepository) Save(ctx context.Context, pipeline *models.Pipeline) error {
	args := m.Called(ctx, pipeline)

	return args.Error(0)
}

func (m *MockPipelineRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of
// persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) List(ctx context.Context) ([]*models.Execution, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*models.Execution, error) {
	args := m.Called(ctx, definitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

// MockTemplateRepository is a mock implementation of
// persistence.TemplateRepository.
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	args := m.Called(ctx, template)

	return args.Error(0)
}

func (m *MockTemplateRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockRuleRepository is a mock implementation of persistence.RuleRepository.
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) List(ctx context.Context) ([]*models.AutomationRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AutomationRule), args.Error(1)
}

func (m *MockRuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AutomationRule), args.Error(1)
}

func (m *MockRuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	args := m.Called(ctx, rule)

	return args.Error(0)
}

func (m *MockRuleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockScheduleRepository is a mock implementation of
// persistence.ScheduleRepository.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}
