package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCondition_Evaluate(t *testing.T) {
	fields := map[string]any{
		"category":    "recipes",
		"word_count":  1200,
		"seo_score":   74.5,
		"published":   true,
		"title":       "Ten quick weeknight dinners",
		"description": "",
	}

	tests := []struct {
		name      string
		condition Condition
		expected  bool
	}{
		{
			name:      "equals string match",
			condition: Condition{Field: "category", Operator: OperatorEquals, Value: "recipes"},
			expected:  true,
		},
		{
			name:      "equals string mismatch",
			condition: Condition{Field: "category", Operator: OperatorEquals, Value: "posts"},
			expected:  false,
		},
		{
			name:      "equals numeric across types",
			condition: Condition{Field: "word_count", Operator: OperatorEquals, Value: 1200.0},
			expected:  true,
		},
		{
			name:      "equals bool",
			condition: Condition{Field: "published", Operator: OperatorEquals, Value: true},
			expected:  true,
		},
		{
			name:      "contains substring",
			condition: Condition{Field: "title", Operator: OperatorContains, Value: "weeknight"},
			expected:  true,
		},
		{
			name:      "contains coerces numbers to strings",
			condition: Condition{Field: "word_count", Operator: OperatorContains, Value: 200},
			expected:  true,
		},
		{
			name:      "contains missing substring",
			condition: Condition{Field: "title", Operator: OperatorContains, Value: "breakfast"},
			expected:  false,
		},
		{
			name:      "greater_than true",
			condition: Condition{Field: "word_count", Operator: OperatorGreaterThan, Value: 1000},
			expected:  true,
		},
		{
			name:      "greater_than false on equal",
			condition: Condition{Field: "word_count", Operator: OperatorGreaterThan, Value: 1200},
			expected:  false,
		},
		{
			name:      "less_than true",
			condition: Condition{Field: "seo_score", Operator: OperatorLessThan, Value: 80},
			expected:  true,
		},
		{
			name:      "less_than non-numeric field fails closed",
			condition: Condition{Field: "category", Operator: OperatorLessThan, Value: 10},
			expected:  false,
		},
		{
			name: "in_range inclusive lower bound",
			condition: Condition{Field: "seo_score", Operator: OperatorInRange,
				Value: map[string]any{"min": 74.5, "max": 100}},
			expected: true,
		},
		{
			name: "in_range outside",
			condition: Condition{Field: "seo_score", Operator: OperatorInRange,
				Value: map[string]any{"min": 80, "max": 100}},
			expected: false,
		},
		{
			name: "in_range malformed bounds fails closed",
			condition: Condition{Field: "seo_score", Operator: OperatorInRange,
				Value: map[string]any{"low": 0}},
			expected: false,
		},
		{
			name:      "unknown field fails closed",
			condition: Condition{Field: "missing", Operator: OperatorEquals, Value: "anything"},
			expected:  false,
		},
		{
			name:      "unknown operator fails closed",
			condition: Condition{Field: "category", Operator: "matches_regex", Value: ".*"},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.condition.Evaluate(fields))
		})
	}
}

func TestCondition_EvaluateNeverMutatesFields(t *testing.T) {
	fields := map[string]any{"seo_score": 42}
	condition := Condition{Field: "seo_score", Operator: OperatorGreaterThan, Value: 10}

	assert.True(t, condition.Evaluate(fields))
	assert.True(t, condition.Evaluate(fields), "conditions are stateless and re-evaluated fresh")
	assert.Equal(t, map[string]any{"seo_score": 42}, fields)
}
