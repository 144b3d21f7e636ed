package models

import "time"

// StepType identifies the kind of handler a workflow step is bound to. The
// set is closed; templates referencing any other value are rejected on create.
type StepType string

const (
	StepTypeGeneration   StepType = "generation"
	StepTypeQualityCheck StepType = "quality_check"
	StepTypeOptimization StepType = "optimization"
	StepTypeApproval     StepType = "approval"
	StepTypePublishing   StepType = "publishing"
)

// Valid reports whether the step type is one of the known kinds.
func (t StepType) Valid() bool {
	switch t {
	case StepTypeGeneration, StepTypeQualityCheck, StepTypeOptimization, StepTypeApproval, StepTypePublishing:
		return true
	default:
		return false
	}
}

// WorkflowStep is one named unit of work inside a workflow template. A step
// may declare its own timeout; exceeding it is treated as a step failure.
type WorkflowStep struct {
	ID             string         `json:"id"   validate:"required"`
	Name           string         `json:"name" validate:"required"`
	Type           StepType       `json:"type" validate:"required"`
	Config         map[string]any `json:"config,omitempty"`
	DependsOn      []string       `json:"depends_on,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" validate:"min=0"`
}

// Timeout returns the step timeout as a duration, zero when unset.
func (s *WorkflowStep) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// WorkflowTemplate is a reusable named workflow definition. Templates are
// immutable for the duration of any run referencing them.
type WorkflowTemplate struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"  validate:"required,min=3"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	Complexity        string          `json:"complexity,omitempty"`
	EstimatedDuration string          `json:"estimated_duration,omitempty"`
	Enabled           bool            `json:"enabled"`
	Steps             []*WorkflowStep `json:"steps" validate:"required,min=1,dive"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
