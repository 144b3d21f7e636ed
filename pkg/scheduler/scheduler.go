// Package scheduler drives the concurrent execution of a dependency graph of
// named units. Units whose dependencies are all satisfied form a ready batch
// and run concurrently; units with a dependency edge are strictly ordered.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of a unit or of the run as a whole.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Unit is one node of the execution graph. DependsOn may only reference ids
// of units in the same graph.
type Unit struct {
	ID        string
	DependsOn []string
}

// Progress records one unit's observed state transitions.
type Progress struct {
	Status      Status
	StartedAt   *time.Time
	CompletedAt *time.Time
	Duration    time.Duration
	Result      any
	Err         error
}

// ExecFunc executes a single unit. The completed map is a read-only snapshot
// of the outputs of every unit that finished before this one started; callers
// must not mutate it.
type ExecFunc func(ctx context.Context, unit Unit, completed map[string]any) (any, error)

// TransitionFunc observes a unit's status change. It is invoked after the
// transition is recorded, possibly from concurrently running units.
type TransitionFunc func(unitID string, progress Progress)

// Options tune a single run.
type Options struct {
	// FailFast stops launching not-yet-started units as soon as any unit
	// fails, including ready siblings in the current batch. The default
	// policy only blocks future batches and lets an in-flight batch drain.
	FailFast bool

	// OnTransition, when set, is called for every unit status change.
	OnTransition TransitionFunc
}

// Report is the outcome of a run.
type Report struct {
	Status   Status
	Progress map[string]*Progress
	Results  map[string]any
	Err      error
}

// Graph validation failures. These abort a run before any unit executes.
var (
	ErrDuplicateUnit     = errors.New("duplicate unit id")
	ErrUnknownDependency = errors.New("dependency references unknown unit")
	ErrDependencyCycle   = errors.New("dependency cycle detected")
)

// GraphError reports an invalid execution graph as a fatal configuration
// error, never as a per-unit failure.
type GraphError struct {
	UnitID string
	Err    error
}

func (e *GraphError) Error() string {
	if e.UnitID != "" {
		return fmt.Sprintf("invalid execution graph at unit %s: %v", e.UnitID, e.Err)
	}

	return fmt.Sprintf("invalid execution graph: %v", e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// Validate checks that every dependency references a known unit and that the
// graph is acyclic. Runs perform the same check before executing anything.
func Validate(units []Unit) error {
	known := make(map[string]bool, len(units))

	for _, unit := range units {
		if known[unit.ID] {
			return &GraphError{UnitID: unit.ID, Err: ErrDuplicateUnit}
		}

		known[unit.ID] = true
	}

	for _, unit := range units {
		for _, dep := range unit.DependsOn {
			if !known[dep] {
				return &GraphError{UnitID: unit.ID, Err: fmt.Errorf("%w: %s", ErrUnknownDependency, dep)}
			}
		}
	}

	// Kahn-style peel: repeatedly remove units whose dependencies are all
	// removed. Leftovers mean a cycle.
	removed := make(map[string]bool, len(units))

	for len(removed) < len(units) {
		progressed := false

		for _, unit := range units {
			if removed[unit.ID] {
				continue
			}

			if allIn(unit.DependsOn, removed) {
				removed[unit.ID] = true
				progressed = true
			}
		}

		if !progressed {
			return &GraphError{Err: ErrDependencyCycle}
		}
	}

	return nil
}

// Run validates the graph and executes it to completion or first failure.
// Returns a nil report and a *GraphError when the graph is invalid; in that
// case no unit was executed. A unit failure never produces a non-nil error
// here: it is reported through the unit's Progress and the report's terminal
// status.
func Run(ctx context.Context, units []Unit, exec ExecFunc, opts Options) (*Report, error) {
	if err := Validate(units); err != nil {
		return nil, err
	}

	var mu sync.Mutex

	var failed atomic.Bool

	report := &Report{
		Status:   StatusRunning,
		Progress: make(map[string]*Progress, len(units)),
		Results:  make(map[string]any, len(units)),
	}

	for _, unit := range units {
		report.Progress[unit.ID] = &Progress{Status: StatusPending}
	}

	completed := make(map[string]bool, len(units))

	for len(completed) < len(units) && !failed.Load() {
		batch := readyBatch(units, completed, report.Progress)
		if len(batch) == 0 {
			// Unreachable after Validate; guards against a stuck loop.
			return nil, &GraphError{Err: ErrDependencyCycle}
		}

		var wg sync.WaitGroup

		for _, unit := range batch {
			if opts.FailFast && failed.Load() {
				// Cooperative stop: never launch another unit once a
				// failure is observed. Already-launched units drain.
				continue
			}

			mu.Lock()
			now := time.Now().UTC()
			progress := report.Progress[unit.ID]
			progress.Status = StatusRunning
			progress.StartedAt = &now
			snapshot := snapshotResults(report.Results)
			transition := *progress
			mu.Unlock()

			notify(opts.OnTransition, unit.ID, transition)

			wg.Add(1)

			go func(unit Unit) {
				defer wg.Done()

				result, err := exec(ctx, unit, snapshot)

				mu.Lock()
				done := time.Now().UTC()
				progress := report.Progress[unit.ID]
				progress.CompletedAt = &done
				progress.Duration = done.Sub(*progress.StartedAt)

				if err != nil {
					progress.Status = StatusFailed
					progress.Err = err

					failed.Store(true)

					if report.Err == nil {
						report.Err = fmt.Errorf("unit %s failed: %w", unit.ID, err)
					}
				} else {
					progress.Status = StatusCompleted
					progress.Result = result
					report.Results[unit.ID] = result
				}

				transition := *progress
				mu.Unlock()

				notify(opts.OnTransition, unit.ID, transition)
			}(unit)
		}

		wg.Wait()

		mu.Lock()
		for _, unit := range batch {
			if report.Progress[unit.ID].Status == StatusCompleted {
				completed[unit.ID] = true
			}
		}
		mu.Unlock()
	}

	if failed.Load() {
		report.Status = StatusFailed
	} else {
		report.Status = StatusCompleted
	}

	return report, nil
}

// readyBatch returns units that have not started and whose dependencies have
// all completed.
func readyBatch(units []Unit, completed map[string]bool, progress map[string]*Progress) []Unit {
	var ready []Unit

	for _, unit := range units {
		if progress[unit.ID].Status != StatusPending {
			continue
		}

		if allIn(unit.DependsOn, completed) {
			ready = append(ready, unit)
		}
	}

	return ready
}

func allIn(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if !set[id] {
			return false
		}
	}

	return true
}

func snapshotResults(results map[string]any) map[string]any {
	snapshot := make(map[string]any, len(results))
	for id, result := range results {
		snapshot[id] = result
	}

	return snapshot
}

func notify(fn TransitionFunc, unitID string, progress Progress) {
	if fn != nil {
		fn(unitID, progress)
	}
}
