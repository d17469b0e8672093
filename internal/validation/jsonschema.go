// Package validation checks workflow definitions before they reach the
// engine: JSON-Schema structural validation plus semantic checks the schema
// language cannot express. It also hosts the cached input-schema validator
// used by validation steps.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// definitionSchemaID anchors the embedded definition schema in the compiler.
const definitionSchemaID = "https://stepflow.io/schemas/workflow.json"

// definitionSchemaJSON is the JSON Schema for WorkflowDefinition documents.
// Embedded as a constant to avoid filesystem dependencies. step_type is a
// free string (minLength 1), not an enum: the executor registry is open and
// definitions may use step types registered by the host application.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepflow.io/schemas/workflow.json",
  "type": "object",
  "required": ["id", "steps"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "description": { "type": "string" },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "entry_points": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "exit_points": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "step_type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "step_type": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "config": { "type": "object" },
        "dependencies": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "condition": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// DefinitionValidator validates WorkflowDefinition documents against the
// embedded JSON Schema. Safe for concurrent use.
type DefinitionValidator struct {
	compiled *jsonschema.Schema
}

// NewDefinitionValidator compiles the embedded definition schema.
func NewDefinitionValidator() (*DefinitionValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal definition schema: %w", err)
	}
	if err := c.AddResource(definitionSchemaID, doc); err != nil {
		return nil, fmt.Errorf("add definition schema resource: %w", err)
	}
	compiled, err := c.Compile(definitionSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile definition schema: %w", err)
	}

	return &DefinitionValidator{compiled: compiled}, nil
}

// ValidateStructure checks a definition against the JSON Schema. The result
// is an INVALID_DEFINITION error listing the violations, or nil.
func (v *DefinitionValidator) ValidateStructure(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeInvalidDefinition, "workflow definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidDefinition,
			"failed to serialize workflow definition").WithCause(err)
	}

	if err := v.compiled.Validate(doc); err != nil {
		return toEngineError(err)
	}
	return nil
}

// InputValidator compiles and caches JSON Schemas supplied by validation
// steps at runtime. Safe for concurrent use.
type InputValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewInputValidator creates an InputValidator with an empty cache.
func NewInputValidator() *InputValidator {
	return &InputValidator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate checks input data against a JSON Schema given as raw bytes. A
// failed validation returns the violation messages with a nil error; a nil
// violations slice with a nil error means the input passed. A non-nil error
// means the schema itself could not be compiled or the input could not be
// serialized — an internal fault, not a validation outcome.
func (v *InputValidator) Validate(input map[string]any, schemaBytes []byte) ([]string, error) {
	if len(schemaBytes) == 0 {
		return nil, nil
	}

	compiled, err := v.getOrCompile(schemaBytes)
	if err != nil {
		return nil, err
	}

	doc, err := toJSONValue(input)
	if err != nil {
		return nil, fmt.Errorf("serialize input: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return collectViolations(verr), nil
		}
		return []string{err.Error()}, nil
	}
	return nil, nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *InputValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions; a fresh
	// compiler per schema keeps resources isolated.
	url := fmt.Sprintf("stepflow://input-schema/%d", len(v.cache))
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON so numerics become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toEngineError converts a jsonschema.ValidationError into an
// INVALID_DEFINITION error carrying the individual violations.
func toEngineError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeInvalidDefinition, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeInvalidDefinition, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeInvalidDefinition, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeInvalidDefinition,
		"definition failed validation with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
