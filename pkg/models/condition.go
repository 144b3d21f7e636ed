package models

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operator is one of the closed set of comparison operators a condition may
// use. Anything else evaluates to false rather than raising.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorInRange     Operator = "in_range"
)

// Condition compares a named field against a configured value. Conditions are
// stateless and re-evaluated fresh on every rule execution.
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value"`
}

// Evaluate resolves the condition against the given fields. Unknown fields,
// unknown operators and non-comparable values all evaluate to false, so a
// malformed condition degrades to "never fires" instead of crashing the
// engine.
func (c Condition) Evaluate(fields map[string]any) bool {
	actual, ok := fields[c.Field]
	if !ok {
		return false
	}

	switch c.Operator {
	case OperatorEquals:
		return equals(actual, c.Value)
	case OperatorContains:
		return contains(actual, c.Value)
	case OperatorGreaterThan:
		left, right, ok := numericPair(actual, c.Value)

		return ok && left > right
	case OperatorLessThan:
		left, right, ok := numericPair(actual, c.Value)

		return ok && left < right
	case OperatorInRange:
		return inRange(actual, c.Value)
	default:
		return false
	}
}

func equals(actual, expected any) bool {
	if left, right, ok := numericPair(actual, expected); ok {
		return left == right
	}

	return reflect.DeepEqual(actual, expected)
}

func contains(actual, expected any) bool {
	haystack, ok := stringify(actual)
	if !ok {
		return false
	}

	needle, ok := stringify(expected)
	if !ok {
		return false
	}

	return strings.Contains(haystack, needle)
}

// inRange expects a {"min": n, "max": n} bound object and checks inclusively.
func inRange(actual, bounds any) bool {
	value, ok := toFloat(actual)
	if !ok {
		return false
	}

	boundsMap, ok := bounds.(map[string]any)
	if !ok {
		return false
	}

	minValue, okMin := toFloat(boundsMap["min"])
	maxValue, okMax := toFloat(boundsMap["max"])

	if !okMin || !okMax {
		return false
	}

	return value >= minValue && value <= maxValue
}

func numericPair(a, b any) (float64, float64, bool) {
	left, okLeft := toFloat(a)
	right, okRight := toFloat(b)

	return left, right, okLeft && okRight
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}

func stringify(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", v), true
	default:
		return "", false
	}
}
