package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

func validDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID:   "onboarding",
		Name: "Onboarding",
		Steps: []schema.WorkflowStep{
			{ID: "collect", Type: schema.StepTypeDataCollection, Config: map[string]any{
				"required_fields": []any{"email"},
			}},
			{ID: "approve", Type: schema.StepTypeDecision, Dependencies: []string{"collect"}, Config: map[string]any{
				"options": []any{"yes", "no"},
			}},
		},
		EntryPoints: []string{"collect"},
		ExitPoints:  []string{"approve"},
	}
}

func TestDefinitionValidator_Valid(t *testing.T) {
	v, err := NewDefinitionValidator()
	require.NoError(t, err)

	require.NoError(t, v.ValidateDefinition(validDefinition()))
}

func TestDefinitionValidator_Structure(t *testing.T) {
	v, err := NewDefinitionValidator()
	require.NoError(t, err)

	t.Run("nil definition", func(t *testing.T) {
		err := v.ValidateDefinition(nil)
		require.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		def := validDefinition()
		def.ID = ""
		assertCode(t, v.ValidateDefinition(def), schema.ErrCodeInvalidDefinition)
	})

	t.Run("no steps", func(t *testing.T) {
		def := validDefinition()
		def.Steps = nil
		assertCode(t, v.ValidateDefinition(def), schema.ErrCodeInvalidDefinition)
	})

	t.Run("step without type", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Type = ""
		assertCode(t, v.ValidateDefinition(def), schema.ErrCodeInvalidDefinition)
	})

	t.Run("unknown step type allowed", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Type = "custom_enrichment"
		require.NoError(t, v.ValidateDefinition(def))
	})
}

func TestDefinitionValidator_Semantics(t *testing.T) {
	v, err := NewDefinitionValidator()
	require.NoError(t, err)

	t.Run("entry point names missing step", func(t *testing.T) {
		def := validDefinition()
		def.EntryPoints = []string{"ghost"}
		assertCode(t, v.ValidateDefinition(def), schema.ErrCodeInvalidDefinition)
	})

	t.Run("entry point with dependencies", func(t *testing.T) {
		def := validDefinition()
		def.EntryPoints = []string{"approve"}
		assertCode(t, v.ValidateDefinition(def), schema.ErrCodeInvalidDefinition)
	})

	t.Run("exit point names missing step", func(t *testing.T) {
		def := validDefinition()
		def.ExitPoints = []string{"ghost"}
		assertCode(t, v.ValidateDefinition(def), schema.ErrCodeInvalidDefinition)
	})
}

func TestInputValidator(t *testing.T) {
	v := NewInputValidator()

	schemaBytes := []byte(`{
		"type": "object",
		"required": ["age"],
		"properties": {"age": {"type": "integer", "minimum": 18}}
	}`)

	t.Run("passes", func(t *testing.T) {
		violations, err := v.Validate(map[string]any{"age": 30}, schemaBytes)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("violations reported not errored", func(t *testing.T) {
		violations, err := v.Validate(map[string]any{"age": 12}, schemaBytes)
		require.NoError(t, err)
		assert.NotEmpty(t, violations)
	})

	t.Run("bad schema is an internal fault", func(t *testing.T) {
		_, err := v.Validate(map[string]any{}, []byte(`{"type": 42}`))
		require.Error(t, err)
	})

	t.Run("empty schema skips validation", func(t *testing.T) {
		violations, err := v.Validate(map[string]any{"age": 1}, nil)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("compiled schemas are cached", func(t *testing.T) {
		_, err := v.Validate(map[string]any{"age": 40}, schemaBytes)
		require.NoError(t, err)
		v.mu.RLock()
		defer v.mu.RUnlock()
		assert.Len(t, v.cache, 1)
	})
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, code, engErr.Code)
}
