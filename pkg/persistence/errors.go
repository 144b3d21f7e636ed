// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrPipelineNotFound indicates a pipeline was not found by the given id.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrExecutionNotFound indicates an execution was not found by the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrTemplateNotFound indicates a workflow template was not found by the given id.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrRuleNotFound indicates an automation rule was not found by the given id.
	ErrRuleNotFound = errors.New("automation rule not found")

	// ErrScheduleNotFound indicates a schedule was not found by the given id.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// StoreError wraps persistence failures with operation context.
type StoreError struct {
	Op       string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	Kind     string // Record kind (e.g., "pipeline", "execution")
	RecordID string // Record id if applicable
	Err      error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.RecordID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for store errors.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, kind, recordID string, err error) *StoreError {
	return &StoreError{
		Op:       op,
		Kind:     kind,
		RecordID: recordID,
		Err:      err,
	}
}

// IsNotFound checks whether an error indicates a missing record of any kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPipelineNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrScheduleNotFound)
}
