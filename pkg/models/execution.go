package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the overall lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionKind distinguishes what definition an execution ran.
type ExecutionKind string

const (
	ExecutionKindPipeline ExecutionKind = "pipeline"
	ExecutionKindWorkflow ExecutionKind = "workflow"
)

// Execution is the persisted record of one pipeline or workflow run. It is
// saved after every stage transition, so a stored record always reflects the
// latest observed state of a live run.
type Execution struct {
	ID            string                    `json:"id"`
	Kind          ExecutionKind             `json:"kind"`
	DefinitionID  string                    `json:"definition_id"`
	Status        ExecutionStatus           `json:"status"`
	TriggerData   map[string]any            `json:"trigger_data,omitempty"`
	StageProgress map[string]*StageProgress `json:"stage_progress"`
	Results       map[string]any            `json:"results"`
	Log           []string                  `json:"log,omitempty"`
	StartedAt     time.Time                 `json:"started_at"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty"`
	ErrorMessage  string                    `json:"error_message,omitempty"`
}

// NewExecution creates a running execution record with every stage pre-seeded
// as pending, so a record polled before the first transition already lists
// the full graph.
func NewExecution(kind ExecutionKind, definitionID string, stageIDs []string, triggerData map[string]any) *Execution {
	progress := make(map[string]*StageProgress, len(stageIDs))
	for _, id := range stageIDs {
		progress[id] = &StageProgress{Status: StageStatusPending}
	}

	return &Execution{
		ID:            "exec-" + uuid.New().String(),
		Kind:          kind,
		DefinitionID:  definitionID,
		Status:        ExecutionStatusRunning,
		TriggerData:   triggerData,
		StageProgress: progress,
		Results:       make(map[string]any),
		StartedAt:     time.Now().UTC(),
	}
}

// Finish marks the execution terminal.
func (e *Execution) Finish(status ExecutionStatus, errorMessage string) {
	now := time.Now().UTC()
	e.Status = status
	e.CompletedAt = &now
	e.ErrorMessage = errorMessage
}

// StagesExecuted counts stages that completed successfully.
func (e *Execution) StagesExecuted() int {
	count := 0

	for _, progress := range e.StageProgress {
		if progress.Status == StageStatusCompleted {
			count++
		}
	}

	return count
}
