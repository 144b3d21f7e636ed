package models

import "time"

// Efficiency adjustments applied per finished run. The score is clamped to
// [0, 100]; a failure costs five times what a success earns.
const (
	EfficiencyReward  = 1.0
	EfficiencyPenalty = 5.0
)

// Pipeline is a persisted content pipeline definition: a named set of stages
// forming a dependency graph, plus rolling run metrics. Efficiency and
// Throughput are mutated only by the pipeline executor.
type Pipeline struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,min=3"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Complexity  string    `json:"complexity,omitempty"`
	Enabled     bool      `json:"enabled"`
	Stages      []*Stage  `json:"stages" validate:"required,min=1,dive"`
	Efficiency  float64   `json:"efficiency"`
	Throughput  int64     `json:"throughput"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecordRun folds one finished run into the pipeline's metrics. Throughput
// counts every run regardless of outcome.
func (p *Pipeline) RecordRun(success bool) {
	if success {
		p.Efficiency += EfficiencyReward
	} else {
		p.Efficiency -= EfficiencyPenalty
	}

	if p.Efficiency > 100 {
		p.Efficiency = 100
	}

	if p.Efficiency < 0 {
		p.Efficiency = 0
	}

	p.Throughput++
}

// Schedule binds a cron expression to a pipeline. The expression is parsed by
// the schedule trigger, not here.
type Schedule struct {
	ID          string         `json:"id"`
	PipelineID  string         `json:"pipeline_id" validate:"required"`
	CronExpr    string         `json:"cron_expr"   validate:"required"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Enabled     bool           `json:"enabled"`
	CreatedAt   time.Time      `json:"created_at"`
}
