package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stepflow-io/stepflow/internal/expressions"
	"github.com/stepflow-io/stepflow/internal/validation"
	"github.com/stepflow-io/stepflow/pkg/schema"
)

// ValidationExecutor runs the validators declared in config.validators
// against the execution context. A validator that does not pass is reported
// data: the step completes with all_passed=false and per-validator outcomes.
// Only unexpected faults inside a validator (unknown kind, bad rule, panic)
// fail the step, with VALIDATOR_INTERNAL.
//
// Builtin validator kinds:
//   - required:   {"name": ..., "type": "required", "field": "age"}
//   - range:      {"name": ..., "type": "range", "field": "age", "min": 18, "max": 120}
//   - expression: {"name": ..., "type": "expression", "expression": "age >= 18"}
//   - schema:     {"name": ..., "type": "schema", "schema": {...JSON Schema...}}
type ValidationExecutor struct {
	expr  *expressions.ExprEngine
	input *validation.InputValidator
}

// NewValidationExecutor creates the executor.
func NewValidationExecutor(expr *expressions.ExprEngine, input *validation.InputValidator) *ValidationExecutor {
	return &ValidationExecutor{expr: expr, input: input}
}

func (e *ValidationExecutor) Type() schema.StepType {
	return schema.StepTypeValidation
}

// validatorOutcome is the recorded result of one validator.
type validatorOutcome struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

func (e *ValidationExecutor) Execute(ctx context.Context, step *schema.WorkflowStep, wfCtx *schema.WorkflowContext, prior map[string]schema.StepResult) (*schema.StepResult, error) {
	specs, ok := step.Config["validators"].([]any)
	if !ok || len(specs) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidDefinition,
			"validation step declares no validators").WithStep(step.ID)
	}

	env := wfCtx.Data()
	env["steps"] = priorOutputs(prior)

	allPassed := true
	outcomes := make(map[string]any, len(specs))

	for i, raw := range specs {
		spec, ok := raw.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidDefinition,
				"validator %d is not an object", i).WithStep(step.ID)
		}

		name, _ := spec["name"].(string)
		if name == "" {
			name = fmt.Sprintf("validator_%d", i)
		}
		kind, _ := spec["type"].(string)

		outcome, err := e.runValidator(ctx, kind, spec, env)
		if err != nil {
			var engErr *schema.EngineError
			if asEngineError(err, &engErr) {
				return nil, engErr.WithStep(step.ID)
			}
			return nil, schema.NewErrorf(schema.ErrCodeValidatorInternal,
				"validator %q: %s", name, err.Error()).
				WithStep(step.ID).WithCause(err)
		}

		if !outcome.Passed {
			allPassed = false
		}
		outcomes[name] = map[string]any{
			"passed":  outcome.Passed,
			"message": outcome.Message,
		}
	}

	return &schema.StepResult{
		Status: schema.StepResultCompleted,
		Output: map[string]any{
			"all_passed": allPassed,
			"validators": outcomes,
		},
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// runValidator dispatches on validator kind. Panics inside a validator are
// recovered and surfaced as VALIDATOR_INTERNAL, never swallowed.
func (e *ValidationExecutor) runValidator(ctx context.Context, kind string, spec, env map[string]any) (outcome validatorOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeValidatorInternal,
				"validator panicked: %v", r)
		}
	}()

	switch kind {
	case "required":
		return e.runRequired(spec, env)
	case "range":
		return e.runRange(spec, env)
	case "expression":
		return e.runExpression(ctx, spec, env)
	case "schema":
		return e.runSchema(spec, env)
	default:
		return validatorOutcome{}, schema.NewErrorf(schema.ErrCodeValidatorInternal,
			"unknown validator type %q", kind)
	}
}

func (e *ValidationExecutor) runRequired(spec, env map[string]any) (validatorOutcome, error) {
	field, _ := spec["field"].(string)
	if field == "" {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"required validator missing field")
	}
	if v, ok := env[field]; !ok || v == nil {
		return validatorOutcome{Message: fmt.Sprintf("field %q is required", field)}, nil
	}
	return validatorOutcome{Passed: true}, nil
}

func (e *ValidationExecutor) runRange(spec, env map[string]any) (validatorOutcome, error) {
	field, _ := spec["field"].(string)
	if field == "" {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"range validator missing field")
	}

	v, ok := env[field]
	if !ok {
		return validatorOutcome{Message: fmt.Sprintf("field %q is absent", field)}, nil
	}
	n, ok := toFloat(v)
	if !ok {
		return validatorOutcome{Message: fmt.Sprintf("field %q is not numeric", field)}, nil
	}

	if min, ok := toFloat(spec["min"]); ok && n < min {
		return validatorOutcome{Message: fmt.Sprintf("field %q below minimum %v", field, spec["min"])}, nil
	}
	if max, ok := toFloat(spec["max"]); ok && n > max {
		return validatorOutcome{Message: fmt.Sprintf("field %q above maximum %v", field, spec["max"])}, nil
	}
	return validatorOutcome{Passed: true}, nil
}

func (e *ValidationExecutor) runExpression(ctx context.Context, spec, env map[string]any) (validatorOutcome, error) {
	rule, _ := spec["expression"].(string)
	if rule == "" {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"expression validator missing expression")
	}
	if e.expr == nil {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"no expression engine configured")
	}

	out, err := e.expr.Evaluate(ctx, rule, env)
	if err != nil {
		return validatorOutcome{}, schema.NewErrorf(schema.ErrCodeValidatorInternal,
			"expression %q: %s", rule, err.Error()).WithCause(err)
	}
	b, ok := out.(bool)
	if !ok {
		return validatorOutcome{}, schema.NewErrorf(schema.ErrCodeValidatorInternal,
			"expression %q evaluated to %T, want bool", rule, out)
	}
	if !b {
		return validatorOutcome{Message: fmt.Sprintf("rule %q not satisfied", rule)}, nil
	}
	return validatorOutcome{Passed: true}, nil
}

func (e *ValidationExecutor) runSchema(spec, env map[string]any) (validatorOutcome, error) {
	schemaDoc, ok := spec["schema"].(map[string]any)
	if !ok {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"schema validator missing schema")
	}
	if e.input == nil {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"no schema validator configured")
	}

	schemaBytes, err := json.Marshal(schemaDoc)
	if err != nil {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"schema validator: unserializable schema").WithCause(err)
	}

	violations, err := e.input.Validate(env, schemaBytes)
	if err != nil {
		return validatorOutcome{}, schema.NewError(schema.ErrCodeValidatorInternal,
			"schema validator fault").WithCause(err)
	}
	if len(violations) > 0 {
		return validatorOutcome{Message: violations[0]}, nil
	}
	return validatorOutcome{Passed: true}, nil
}

// toFloat coerces JSON-decoded numerics to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var _ Executor = (*ValidationExecutor)(nil)
