package executors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/internal/expressions"
	"github.com/stepflow-io/stepflow/internal/validation"
	"github.com/stepflow-io/stepflow/pkg/schema"
)

func newTestContext(t *testing.T, data map[string]any) *schema.WorkflowContext {
	t.Helper()
	return schema.NewWorkflowContext("user-1", "session-1", data)
}

func requireCode(t *testing.T, err error, code string) *schema.EngineError {
	t.Helper()
	require.Error(t, err)
	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, code, engErr.Code)
	return engErr
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDecisionExecutor()))

	t.Run("duplicate registration rejected", func(t *testing.T) {
		err := r.Register(NewDecisionExecutor())
		requireCode(t, err, schema.ErrCodeConflict)
	})

	t.Run("lookup", func(t *testing.T) {
		e, err := r.Get(schema.StepTypeDecision)
		require.NoError(t, err)
		assert.Equal(t, schema.StepTypeDecision, e.Type())
	})

	t.Run("unregistered type", func(t *testing.T) {
		_, err := r.Get("teleportation")
		requireCode(t, err, schema.ErrCodeInvalidDefinition)
	})
}

func TestDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	assert.Equal(t, []schema.StepType{
		schema.StepTypeDataCollection,
		schema.StepTypeDecision,
		schema.StepTypeUserInteraction,
		schema.StepTypeValidation,
	}, r.Types())
}

func TestDataCollectionExecutor(t *testing.T) {
	exec := NewDataCollectionExecutor(expressions.NewGoJQEngine())

	t.Run("copies required fields", func(t *testing.T) {
		step := &schema.WorkflowStep{
			ID:   "collect",
			Type: schema.StepTypeDataCollection,
			Config: map[string]any{
				"required_fields": []any{"email", "age"},
			},
		}
		wfCtx := newTestContext(t, map[string]any{"email": "a@b.io", "age": 30, "extra": true})

		res, err := exec.Execute(context.Background(), step, wfCtx, nil)
		require.NoError(t, err)
		assert.Equal(t, schema.StepResultCompleted, res.Status)
		assert.Equal(t, map[string]any{"email": "a@b.io", "age": 30}, res.Output["collected_data"])
	})

	t.Run("missing required field", func(t *testing.T) {
		step := &schema.WorkflowStep{
			ID:   "collect",
			Type: schema.StepTypeDataCollection,
			Config: map[string]any{
				"required_fields": []any{"email"},
			},
		}
		wfCtx := newTestContext(t, nil)

		_, err := exec.Execute(context.Background(), step, wfCtx, nil)
		engErr := requireCode(t, err, schema.ErrCodeMissingInput)
		assert.Equal(t, "collect", engErr.StepID)
	})

	t.Run("queries evaluated against context and prior outputs", func(t *testing.T) {
		step := &schema.WorkflowStep{
			ID:   "derive",
			Type: schema.StepTypeDataCollection,
			Config: map[string]any{
				"queries": map[string]any{
					"domain":   `.data.email | split("@") | .[1]`,
					"upstream": `.steps.collect.collected_data.age`,
				},
			},
		}
		wfCtx := newTestContext(t, map[string]any{"email": "a@b.io"})
		prior := map[string]schema.StepResult{
			"collect": {
				Status: schema.StepResultCompleted,
				Output: map[string]any{"collected_data": map[string]any{"age": 30}},
			},
		}

		res, err := exec.Execute(context.Background(), step, wfCtx, prior)
		require.NoError(t, err)
		collected := res.Output["collected_data"].(map[string]any)
		assert.Equal(t, "b.io", collected["domain"])
		assert.Equal(t, 30, collected["upstream"])
	})

	t.Run("query with no value is missing input", func(t *testing.T) {
		step := &schema.WorkflowStep{
			ID:   "derive",
			Type: schema.StepTypeDataCollection,
			Config: map[string]any{
				"queries": map[string]any{"ghost": `.data.missing // empty`},
			},
		}
		wfCtx := newTestContext(t, nil)

		_, err := exec.Execute(context.Background(), step, wfCtx, nil)
		requireCode(t, err, schema.ErrCodeMissingInput)
	})
}

func TestDecisionExecutor(t *testing.T) {
	exec := NewDecisionExecutor()
	step := &schema.WorkflowStep{
		ID:   "approve",
		Type: schema.StepTypeDecision,
		Config: map[string]any{
			"options": []any{"a", "b"},
			"default": "a",
		},
	}

	t.Run("choice from context", func(t *testing.T) {
		wfCtx := newTestContext(t, map[string]any{"user_choice": "b"})
		res, err := exec.Execute(context.Background(), step, wfCtx, nil)
		require.NoError(t, err)
		assert.Equal(t, "b", res.Decision)
		assert.Equal(t, "b", res.Output["decision"])
		assert.Equal(t, "context", res.Output["decision_source"])
	})

	t.Run("falls back to default", func(t *testing.T) {
		wfCtx := newTestContext(t, nil)
		res, err := exec.Execute(context.Background(), step, wfCtx, nil)
		require.NoError(t, err)
		assert.Equal(t, "a", res.Decision)
		assert.Equal(t, "default", res.Output["decision_source"])
	})

	t.Run("invalid choice", func(t *testing.T) {
		wfCtx := newTestContext(t, map[string]any{"user_choice": "c"})
		_, err := exec.Execute(context.Background(), step, wfCtx, nil)
		engErr := requireCode(t, err, schema.ErrCodeInvalidChoice)
		assert.Equal(t, "approve", engErr.StepID)
	})

	t.Run("non-string choice does not fall back to default", func(t *testing.T) {
		wfCtx := newTestContext(t, map[string]any{"user_choice": 5})
		_, err := exec.Execute(context.Background(), step, wfCtx, nil)
		engErr := requireCode(t, err, schema.ErrCodeInvalidChoice)
		assert.Equal(t, "approve", engErr.StepID)
	})

	t.Run("empty string choice does not fall back to default", func(t *testing.T) {
		wfCtx := newTestContext(t, map[string]any{"user_choice": ""})
		_, err := exec.Execute(context.Background(), step, wfCtx, nil)
		requireCode(t, err, schema.ErrCodeInvalidChoice)
	})

	t.Run("no choice and no default", func(t *testing.T) {
		bare := &schema.WorkflowStep{
			ID:     "approve",
			Type:   schema.StepTypeDecision,
			Config: map[string]any{"options": []any{"a", "b"}},
		}
		wfCtx := newTestContext(t, nil)
		_, err := exec.Execute(context.Background(), bare, wfCtx, nil)
		requireCode(t, err, schema.ErrCodeInvalidChoice)
	})

	t.Run("no options is a definition error", func(t *testing.T) {
		bad := &schema.WorkflowStep{ID: "approve", Type: schema.StepTypeDecision}
		wfCtx := newTestContext(t, nil)
		_, err := exec.Execute(context.Background(), bad, wfCtx, nil)
		requireCode(t, err, schema.ErrCodeInvalidDefinition)
	})
}

func TestValidationExecutor(t *testing.T) {
	exec := NewValidationExecutor(expressions.NewExprEngine(), validation.NewInputValidator())

	step := func(validators ...any) *schema.WorkflowStep {
		return &schema.WorkflowStep{
			ID:     "check",
			Type:   schema.StepTypeValidation,
			Config: map[string]any{"validators": validators},
		}
	}

	t.Run("all validators pass", func(t *testing.T) {
		s := step(
			map[string]any{"name": "has_age", "type": "required", "field": "age"},
			map[string]any{"name": "adult", "type": "range", "field": "age", "min": 18, "max": 120},
			map[string]any{"name": "rule", "type": "expression", "expression": "age >= 18"},
			map[string]any{"name": "shape", "type": "schema", "schema": map[string]any{
				"type":     "object",
				"required": []any{"age"},
			}},
		)
		wfCtx := newTestContext(t, map[string]any{"age": 30})

		res, err := exec.Execute(context.Background(), s, wfCtx, nil)
		require.NoError(t, err)
		assert.Equal(t, schema.StepResultCompleted, res.Status)
		assert.Equal(t, true, res.Output["all_passed"])
	})

	t.Run("failure is reported data, not an error", func(t *testing.T) {
		s := step(
			map[string]any{"name": "adult", "type": "range", "field": "age", "min": 18},
			map[string]any{"name": "has_email", "type": "required", "field": "email"},
		)
		wfCtx := newTestContext(t, map[string]any{"age": 12})

		res, err := exec.Execute(context.Background(), s, wfCtx, nil)
		require.NoError(t, err)
		assert.Equal(t, schema.StepResultCompleted, res.Status)
		assert.Equal(t, false, res.Output["all_passed"])

		outcomes := res.Output["validators"].(map[string]any)
		adult := outcomes["adult"].(map[string]any)
		assert.Equal(t, false, adult["passed"])
		assert.NotEmpty(t, adult["message"])
	})

	t.Run("unknown validator kind is internal", func(t *testing.T) {
		s := step(map[string]any{"name": "weird", "type": "quantum"})
		wfCtx := newTestContext(t, nil)
		_, err := exec.Execute(context.Background(), s, wfCtx, nil)
		engErr := requireCode(t, err, schema.ErrCodeValidatorInternal)
		assert.Equal(t, "check", engErr.StepID)
	})

	t.Run("bad expression is internal", func(t *testing.T) {
		s := step(map[string]any{"name": "broken", "type": "expression", "expression": "age >= &&"})
		wfCtx := newTestContext(t, map[string]any{"age": 30})
		_, err := exec.Execute(context.Background(), s, wfCtx, nil)
		requireCode(t, err, schema.ErrCodeValidatorInternal)
	})

	t.Run("prior step outputs visible to expressions", func(t *testing.T) {
		s := step(map[string]any{
			"name":       "upstream_decision",
			"type":       "expression",
			"expression": `steps.approve.decision == "a"`,
		})
		wfCtx := newTestContext(t, nil)
		prior := map[string]schema.StepResult{
			"approve": {Status: schema.StepResultCompleted, Output: map[string]any{"decision": "a"}},
		}
		res, err := exec.Execute(context.Background(), s, wfCtx, prior)
		require.NoError(t, err)
		assert.Equal(t, true, res.Output["all_passed"])
	})

	t.Run("no validators declared", func(t *testing.T) {
		s := &schema.WorkflowStep{ID: "check", Type: schema.StepTypeValidation}
		wfCtx := newTestContext(t, nil)
		_, err := exec.Execute(context.Background(), s, wfCtx, nil)
		requireCode(t, err, schema.ErrCodeInvalidDefinition)
	})
}

func TestUserInteractionExecutor(t *testing.T) {
	exec := NewUserInteractionExecutor()
	step := &schema.WorkflowStep{
		ID:     "confirm",
		Type:   schema.StepTypeUserInteraction,
		Config: map[string]any{"prompt": "Proceed?"},
	}

	t.Run("consumes pre-resolved input", func(t *testing.T) {
		wfCtx := newTestContext(t, map[string]any{"user_input": "yes"})
		res, err := exec.Execute(context.Background(), step, wfCtx, nil)
		require.NoError(t, err)
		assert.Equal(t, "yes", res.Output["user_input"])
		assert.Equal(t, "Proceed?", res.Output["prompt"])
	})

	t.Run("missing input", func(t *testing.T) {
		wfCtx := newTestContext(t, nil)
		_, err := exec.Execute(context.Background(), step, wfCtx, nil)
		engErr := requireCode(t, err, schema.ErrCodeMissingUserInput)
		assert.Equal(t, "confirm", engErr.StepID)
	})
}
