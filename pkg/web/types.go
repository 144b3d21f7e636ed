// Package web provides HTTP request and response types for the automation API.
package web

import "github.com/lumenpress/automation/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreatePipelineRequest represents the request body for registering a pipeline.
type CreatePipelineRequest struct {
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Complexity  string          `json:"complexity,omitempty"`
	Enabled     bool            `json:"enabled"`
	Stages      []*models.Stage `json:"stages"      validate:"required,min=1,dive"`
}

// CreateTemplateRequest represents the request body for registering a
// workflow template.
type CreateTemplateRequest struct {
	Name              string                 `json:"name"  validate:"required,min=3"`
	Description       string                 `json:"description"`
	Category          string                 `json:"category"`
	Complexity        string                 `json:"complexity,omitempty"`
	EstimatedDuration string                 `json:"estimated_duration,omitempty"`
	Enabled           bool                   `json:"enabled"`
	Steps             []*models.WorkflowStep `json:"steps" validate:"required,min=1,dive"`
}

// CreateRuleRequest represents the request body for registering an
// automation rule.
type CreateRuleRequest struct {
	Name        string             `json:"name" validate:"required,min=3"`
	Description string             `json:"description"`
	Trigger     models.RuleTrigger `json:"trigger"`
	Conditions  []models.Condition `json:"conditions,omitempty"`
	Actions     []models.Action    `json:"actions" validate:"required,min=1,dive"`
	Enabled     bool               `json:"enabled"`
}

// CreateScheduleRequest represents the request body for registering a
// pipeline schedule.
type CreateScheduleRequest struct {
	PipelineID  string         `json:"pipeline_id" validate:"required"`
	CronExpr    string         `json:"cron_expr"   validate:"required"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Enabled     bool           `json:"enabled"`
}

// ExecutePipelineRequest represents the request body for starting a pipeline
// execution.
type ExecutePipelineRequest struct {
	TriggerType string         `json:"trigger_type,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ExecuteWorkflowRequest represents the request body for starting a workflow
// execution.
type ExecuteWorkflowRequest struct {
	Config map[string]any `json:"config,omitempty"`
}

// ExecuteWorkflowResponse carries the id of the asynchronously started run.
type ExecuteWorkflowResponse struct {
	ExecutionID string `json:"execution_id"`
}

// ExecuteRuleRequest represents the request body for evaluating a rule.
type ExecuteRuleRequest struct {
	Fields map[string]any `json:"fields,omitempty"`
}

// ExecuteRuleResponse reports whether the rule fired successfully.
type ExecuteRuleResponse struct {
	Success bool `json:"success"`
}
