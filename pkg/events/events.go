// Package events defines event types for execution lifecycle notifications.
package events

import "time"

type EventType string

const Topic = "automation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	PipelineExecutionStartedEvent  EventType = "pipeline.execution.started"
	PipelineExecutionFinishedEvent EventType = "pipeline.execution.finished"
	WorkflowExecutionStartedEvent  EventType = "workflow.execution.started"
	WorkflowExecutionFinishedEvent EventType = "workflow.execution.finished"
	RuleExecutedEvent              EventType = "rule.executed"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e BaseEvent) GetType() EventType {
	return e.Type
}

type PipelineExecutionStarted struct {
	BaseEvent

	PipelineID  string         `json:"pipeline_id"`
	ExecutionID string         `json:"execution_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e PipelineExecutionStarted) GetType() EventType {
	return PipelineExecutionStartedEvent
}

type PipelineExecutionFinished struct {
	BaseEvent

	PipelineID  string        `json:"pipeline_id"`
	ExecutionID string        `json:"execution_id"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (e PipelineExecutionFinished) GetType() EventType {
	return PipelineExecutionFinishedEvent
}

type WorkflowExecutionStarted struct {
	BaseEvent

	TemplateID  string `json:"template_id"`
	ExecutionID string `json:"execution_id"`
}

func (e WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionFinished struct {
	BaseEvent

	TemplateID  string        `json:"template_id"`
	ExecutionID string        `json:"execution_id"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (e WorkflowExecutionFinished) GetType() EventType {
	return WorkflowExecutionFinishedEvent
}

type RuleExecuted struct {
	BaseEvent

	RuleID  string `json:"rule_id"`
	Fired   bool   `json:"fired"`
	Success bool   `json:"success"`
}

func (e RuleExecuted) GetType() EventType {
	return RuleExecutedEvent
}
