package models

import "time"

// StageStatus is the lifecycle state of a single stage within an execution.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// Stage is one unit of work inside a pipeline definition. Handler names the
// registered stage function; DependsOn may only reference stage ids of the
// same pipeline.
type Stage struct {
	ID        string         `json:"id"      validate:"required"`
	Name      string         `json:"name"    validate:"required"`
	Handler   string         `json:"handler" validate:"required"`
	Config    map[string]any `json:"config,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
}

// StageProgress is the persisted per-stage state of an execution. It is
// written on every transition so observers can poll a run in flight.
type StageProgress struct {
	Status      StageStatus `json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	DurationMS  int64       `json:"duration_ms,omitempty"`
	Result      any         `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}
