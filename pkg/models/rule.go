package models

import "time"

// TriggerType identifies how a rule execution was initiated.
type TriggerType string

const (
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeEvent    TriggerType = "event"
	TriggerTypeManual   TriggerType = "manual"
)

// RuleTrigger describes what causes a rule to be evaluated. The configuration
// is opaque to the engine; the hosting trigger surface interprets it.
type RuleTrigger struct {
	Type   TriggerType    `json:"type" validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// ActionType identifies the kind of side effect an action performs. The set
// is closed; dispatching an unrecognized type is a logged no-op.
type ActionType string

const (
	ActionGenerateContent    ActionType = "generate_content"
	ActionSendNotification   ActionType = "send_notification"
	ActionSchedulePost       ActionType = "schedule_post"
	ActionAnalyzePerformance ActionType = "analyze_performance"
)

// Action is one ordered side effect dispatched after a rule's conditions pass.
type Action struct {
	Type   ActionType     `json:"type" validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// AutomationRule couples a trigger with conditions and an ordered action list.
// RunCount, SuccessRate and LastRun are mutated only by the rule engine.
type AutomationRule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name" validate:"required,min=3"`
	Description string      `json:"description"`
	Trigger     RuleTrigger `json:"trigger"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Actions     []Action    `json:"actions" validate:"required,min=1,dive"`
	Enabled     bool        `json:"enabled"`
	LastRun     *time.Time  `json:"last_run,omitempty"`
	RunCount    int64       `json:"run_count"`
	SuccessRate float64     `json:"success_rate"`
}

// RecordRun folds one execution attempt into the rule's rolling statistics.
// A successful attempt contributes 100, a failed one 0, averaged over all
// counted attempts.
func (r *AutomationRule) RecordRun(success bool) {
	outcome := 0.0
	if success {
		outcome = 100.0
	}

	r.SuccessRate = (r.SuccessRate*float64(r.RunCount) + outcome) / float64(r.RunCount+1)
	r.RunCount++

	now := time.Now().UTC()
	r.LastRun = &now
}
