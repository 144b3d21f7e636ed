package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
)

// Engine owns the collection of automation rules and their execution. A
// rule's statistics are updated only here; concurrent executions of the same
// rule serialize their statistic updates through a per-rule lock.
type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	dispatcher  *Dispatcher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(logger *slog.Logger, store persistence.Persistence, dispatcher *Dispatcher) *Engine {
	return &Engine{
		logger:      logger,
		persistence: store,
		dispatcher:  dispatcher,
		locks:       make(map[string]*sync.Mutex),
	}
}

// CreateRule registers a new automation rule, assigning its id and initial
// statistics.
func (e *Engine) CreateRule(ctx context.Context, rule *models.AutomationRule) (*models.AutomationRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	rule.RunCount = 0
	rule.SuccessRate = 100
	rule.LastRun = nil

	if err := e.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

// Rules lists all registered rules.
func (e *Engine) Rules(ctx context.Context) ([]*models.AutomationRule, error) {
	return e.persistence.Rules().List(ctx)
}

// Rule fetches one rule by id.
func (e *Engine) Rule(ctx context.Context, id string) (*models.AutomationRule, error) {
	return e.persistence.Rules().GetByID(ctx, id)
}

// DeleteRule removes a rule. Rules are never deleted implicitly.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	return e.persistence.Rules().Delete(ctx, id)
}

// ExecuteRule evaluates the rule's conditions against the given fields and,
// when all pass, dispatches its actions in declared order. Returns true only
// when every action succeeded. An unknown or disabled rule and a failed
// condition all return false without touching statistics; once conditions
// pass the attempt is always counted.
func (e *Engine) ExecuteRule(ctx context.Context, ruleID string, fields map[string]any) (bool, error) {
	logger := e.logger.With("rule_id", ruleID)

	lock := e.ruleLock(ruleID)
	lock.Lock()
	defer lock.Unlock()

	rule, err := e.persistence.Rules().GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, persistence.ErrRuleNotFound) {
			logger.Debug("Rule not found, skipping")

			return false, nil
		}

		return false, fmt.Errorf("failed to fetch rule %s: %w", ruleID, err)
	}

	if !rule.Enabled {
		logger.Debug("Rule disabled, skipping")

		return false, nil
	}

	// Conditions are a short-circuit AND; a miss skips the rule without
	// counting an attempt.
	for i, condition := range rule.Conditions {
		if !condition.Evaluate(fields) {
			logger.Debug("Condition evaluated to false, skipping rule",
				"condition_index", i, "field", condition.Field, "operator", condition.Operator)

			return false, nil
		}
	}

	success := true

	for i, action := range rule.Actions {
		if err := e.dispatcher.Dispatch(ctx, action); err != nil {
			logger.Warn("Action failed, aborting remaining actions",
				"action_index", i, "action_type", action.Type, "error", err)

			success = false

			break
		}
	}

	rule.RecordRun(success)

	if err := e.persistence.Rules().Save(ctx, rule); err != nil {
		logger.Error("Failed to persist rule statistics", "error", err)
	}

	return success, nil
}

func (e *Engine) ruleLock(ruleID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[ruleID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[ruleID] = lock
	}

	return lock
}
