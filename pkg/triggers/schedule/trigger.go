// Package schedule fires pipeline executions from persisted cron schedules.
// Cron parsing lives entirely here; the execution core treats the expression
// as an opaque descriptor.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/lumenpress/automation/pkg/persistence"
)

// ExecuteFunc starts one pipeline execution. Provided by the hosting daemon,
// typically pipeline.Executor.Execute adapted to drop the result.
type ExecuteFunc func(ctx context.Context, pipelineID string, triggerData map[string]any) error

// Trigger owns the cron runner for all enabled schedules.
type Trigger struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	execute     ExecuteFunc

	mu   sync.Mutex
	cron *cron.Cron
}

func NewTrigger(logger *slog.Logger, store persistence.Persistence, execute ExecuteFunc) *Trigger {
	return &Trigger{
		logger:      logger,
		persistence: store,
		execute:     execute,
	}
}

// Start loads enabled schedules and begins firing them. Invalid cron
// expressions are logged and skipped; one bad schedule must not block the
// rest.
func (t *Trigger) Start(ctx context.Context) error {
	schedules, err := t.persistence.Schedules().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cron = cron.New()

	registered := 0

	for _, schedule := range schedules {
		if !schedule.Enabled {
			continue
		}

		logger := t.logger.With("schedule_id", schedule.ID, "pipeline_id", schedule.PipelineID)

		triggerData := make(map[string]any, len(schedule.TriggerData)+2)
		for key, value := range schedule.TriggerData {
			triggerData[key] = value
		}

		triggerData["trigger_type"] = "schedule"
		triggerData["schedule_id"] = schedule.ID

		pipelineID := schedule.PipelineID

		_, err := t.cron.AddFunc(schedule.CronExpr, func() {
			if err := t.execute(ctx, pipelineID, triggerData); err != nil {
				logger.Error("Scheduled pipeline execution failed", "error", err)
			}
		})
		if err != nil {
			logger.Error("Skipping schedule with invalid cron expression",
				"cron_expr", schedule.CronExpr, "error", err)

			continue
		}

		registered++
	}

	t.cron.Start()
	t.logger.Info("Schedule trigger started", "schedules", registered)

	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron != nil {
		<-t.cron.Stop().Done()
	}
}
