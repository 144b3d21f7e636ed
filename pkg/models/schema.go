package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSON schemas applied to definitions at registration time. Structural rules
// the validator tags cannot express (dependency references, bound objects)
// are checked separately by the graph validation pass.
const pipelineSchema = `{
	"type": "object",
	"required": ["name", "stages"],
	"properties": {
		"name": {"type": "string", "minLength": 3},
		"stages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "name", "handler"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"handler": {"type": "string", "minLength": 1},
					"config": {"type": "object"},
					"depends_on": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

const templateSchema = `{
	"type": "object",
	"required": ["name", "steps"],
	"properties": {
		"name": {"type": "string", "minLength": 3},
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "name", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"config": {"type": "object"},
					"depends_on": {"type": "array", "items": {"type": "string"}},
					"timeout_seconds": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`

// ValidatePipelineDefinition checks a pipeline against the definition schema.
func ValidatePipelineDefinition(pipeline *Pipeline) error {
	return validateAgainstSchema(pipelineSchema, pipeline)
}

// ValidateTemplateDefinition checks a workflow template against the
// definition schema.
func ValidateTemplateDefinition(template *WorkflowTemplate) error {
	return validateAgainstSchema(templateSchema, template)
}

func validateAgainstSchema(schema string, document any) error {
	payload, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to serialize definition: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to validate definition: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultError := range result.Errors() {
		details = append(details, resultError.String())
	}

	return fmt.Errorf("invalid definition: %s", strings.Join(details, "; "))
}
