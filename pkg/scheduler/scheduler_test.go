package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopExec(_ context.Context, _ Unit, _ map[string]any) (any, error) {
	return nil, nil
}

func TestValidate_UnknownDependency(t *testing.T) {
	units := []Unit{
		{ID: "a", DependsOn: []string{"ghost"}},
	}

	err := Validate(units)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDependency)

	var graphErr *GraphError

	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, "a", graphErr.UnitID)
}

func TestValidate_DuplicateID(t *testing.T) {
	units := []Unit{
		{ID: "a"},
		{ID: "a"},
	}

	err := Validate(units)
	assert.ErrorIs(t, err, ErrDuplicateUnit)
}

func TestRun_CycleRejectedBeforeAnyExecution(t *testing.T) {
	units := []Unit{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}

	invocations := 0

	report, err := Run(t.Context(), units, func(_ context.Context, _ Unit, _ map[string]any) (any, error) {
		invocations++

		return nil, nil
	}, Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Nil(t, report)
	assert.Zero(t, invocations, "no handler may run for an invalid graph")
}

func TestRun_TopologicalOrdering(t *testing.T) {
	units := []Unit{
		{ID: "idea"},
		{ID: "draft", DependsOn: []string{"idea"}},
		{ID: "seo", DependsOn: []string{"draft"}},
		{ID: "publish", DependsOn: []string{"seo"}},
	}

	report, err := Run(t.Context(), units, func(_ context.Context, unit Unit, _ map[string]any) (any, error) {
		return unit.ID, nil
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, report.Status)

	for _, unit := range units {
		for _, dep := range unit.DependsOn {
			depDone := report.Progress[dep].CompletedAt
			started := report.Progress[unit.ID].StartedAt
			require.NotNil(t, depDone)
			require.NotNil(t, started)
			assert.False(t, started.Before(*depDone),
				"unit %s started before dependency %s completed", unit.ID, dep)
		}
	}
}

// Random DAGs: dependencies only point at lower-numbered units, so every
// generated graph is valid. The ordering invariant must hold regardless of
// shape.
func TestRun_TopologicalOrdering_RandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := range 20 {
		size := 3 + rng.Intn(10)
		units := make([]Unit, 0, size)

		for i := range size {
			unit := Unit{ID: fmt.Sprintf("u%d", i)}

			for j := range i {
				if rng.Intn(3) == 0 {
					unit.DependsOn = append(unit.DependsOn, fmt.Sprintf("u%d", j))
				}
			}

			units = append(units, unit)
		}

		report, err := Run(t.Context(), units, noopExec, Options{})
		require.NoError(t, err, "round %d", round)
		require.Equal(t, StatusCompleted, report.Status)

		for _, unit := range units {
			for _, dep := range unit.DependsOn {
				assert.False(t, report.Progress[unit.ID].StartedAt.Before(*report.Progress[dep].CompletedAt),
					"round %d: %s started before %s completed", round, unit.ID, dep)
			}
		}
	}
}

func TestRun_IndependentUnitsRunConcurrently(t *testing.T) {
	units := []Unit{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	start := time.Now()

	report, err := Run(t.Context(), units, func(_ context.Context, _ Unit, _ map[string]any) (any, error) {
		time.Sleep(100 * time.Millisecond)

		return nil, nil
	}, Options{})

	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Less(t, elapsed, 200*time.Millisecond,
		"three independent 100ms units must run in parallel, took %s", elapsed)
}

func TestRun_ContextSnapshotContainsUpstreamResults(t *testing.T) {
	units := []Unit{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}

	var seenByB map[string]any

	report, err := Run(t.Context(), units, func(_ context.Context, unit Unit, completed map[string]any) (any, error) {
		if unit.ID == "b" {
			seenByB = completed
		}

		return "out-" + unit.ID, nil
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, map[string]any{"a": "out-a"}, seenByB)
	assert.Equal(t, "out-b", report.Results["b"])
}

func TestRun_FailureBlocksFutureBatchesButDrainsSiblings(t *testing.T) {
	release := make(chan struct{})
	units := []Unit{
		{ID: "bad"},
		{ID: "slow"},
		{ID: "downstream", DependsOn: []string{"slow"}},
	}

	report, err := Run(t.Context(), units, func(_ context.Context, unit Unit, _ map[string]any) (any, error) {
		switch unit.ID {
		case "bad":
			close(release)

			return nil, errors.New("boom")
		case "slow":
			<-release
			time.Sleep(20 * time.Millisecond)

			return "slow-done", nil
		default:
			return nil, nil
		}
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	require.Error(t, report.Err)
	assert.Contains(t, report.Err.Error(), "bad")

	// The already-started sibling finishes and its result is recorded.
	assert.Equal(t, StatusCompleted, report.Progress["slow"].Status)
	assert.Equal(t, "slow-done", report.Results["slow"])

	// The dependent unit is never reached and stays pending, not failed.
	assert.Equal(t, StatusPending, report.Progress["downstream"].Status)
	assert.Nil(t, report.Progress["downstream"].StartedAt)
}

func TestRun_FailFastSkipsLaterBatches(t *testing.T) {
	units := []Unit{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a"}},
	}

	report, err := Run(t.Context(), units, func(_ context.Context, unit Unit, _ map[string]any) (any, error) {
		if unit.ID == "a" {
			return nil, errors.New("first failure")
		}

		return nil, nil
	}, Options{FailFast: true})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, StatusFailed, report.Progress["a"].Status)
	assert.Equal(t, StatusPending, report.Progress["b"].Status)
	assert.Equal(t, StatusPending, report.Progress["c"].Status)
}

func TestRun_TransitionsEmittedPerUnit(t *testing.T) {
	units := []Unit{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}

	var mu sync.Mutex

	transitions := make(map[string][]Status)

	_, err := Run(t.Context(), units, noopExec, Options{
		OnTransition: func(unitID string, progress Progress) {
			mu.Lock()
			defer mu.Unlock()

			transitions[unitID] = append(transitions[unitID], progress.Status)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []Status{StatusRunning, StatusCompleted}, transitions["a"])
	assert.Equal(t, []Status{StatusRunning, StatusCompleted}, transitions["b"])
}

func TestRun_FirstErrorWins(t *testing.T) {
	units := []Unit{
		{ID: "early"},
		{ID: "late"},
	}

	gate := make(chan struct{})

	report, err := Run(t.Context(), units, func(_ context.Context, unit Unit, _ map[string]any) (any, error) {
		if unit.ID == "early" {
			defer close(gate)

			return nil, errors.New("early error")
		}

		<-gate
		time.Sleep(10 * time.Millisecond)

		return nil, errors.New("late error")
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Contains(t, report.Err.Error(), "early error")
}
