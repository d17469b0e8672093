package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

func step(id string, deps ...string) schema.WorkflowStep {
	return schema.WorkflowStep{ID: id, Type: schema.StepTypeDataCollection, Dependencies: deps}
}

func def(steps ...schema.WorkflowStep) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{ID: "wf", Steps: steps}
}

func TestBuildGraph(t *testing.T) {
	t.Run("linear chain", func(t *testing.T) {
		g, err := BuildGraph(def(step("a"), step("b", "a"), step("c", "b")))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, g.Sorted)
		assert.Equal(t, []string{"a"}, g.Roots)
	})

	t.Run("diamond keeps declaration order", func(t *testing.T) {
		g, err := BuildGraph(def(step("a"), step("c", "a"), step("b", "a"), step("d", "b", "c")))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "b", "d"}, g.Sorted)
	})

	t.Run("nil definition", func(t *testing.T) {
		_, err := BuildGraph(nil)
		require.Error(t, err)
	})

	t.Run("empty steps", func(t *testing.T) {
		_, err := BuildGraph(def())
		assertGraphCode(t, err, schema.ErrCodeInvalidDefinition)
	})

	t.Run("duplicate step id", func(t *testing.T) {
		_, err := BuildGraph(def(step("a"), step("a")))
		assertGraphCode(t, err, schema.ErrCodeInvalidDefinition)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := BuildGraph(def(step("a", "ghost")))
		assertGraphCode(t, err, schema.ErrCodeInvalidDefinition)
	})

	t.Run("self dependency", func(t *testing.T) {
		_, err := BuildGraph(def(step("a", "a")))
		assertGraphCode(t, err, schema.ErrCodeCycleDetected)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := BuildGraph(def(step("a", "b"), step("b", "a")))
		assertGraphCode(t, err, schema.ErrCodeCycleDetected)
	})
}

func TestNextReady(t *testing.T) {
	g, err := BuildGraph(def(step("a"), step("b", "a"), step("c", "a"), step("d", "b", "c")))
	require.NoError(t, err)

	completed := func(ids ...string) map[string]schema.StepResult {
		out := make(map[string]schema.StepResult, len(ids))
		for _, id := range ids {
			out[id] = schema.StepResult{Status: schema.StepResultCompleted}
		}
		return out
	}

	t.Run("roots first", func(t *testing.T) {
		id, ok := g.NextReady(nil)
		require.True(t, ok)
		assert.Equal(t, "a", id)
	})

	t.Run("declaration order among ready", func(t *testing.T) {
		id, ok := g.NextReady(completed("a"))
		require.True(t, ok)
		assert.Equal(t, "b", id)
	})

	t.Run("join waits for all dependencies", func(t *testing.T) {
		id, ok := g.NextReady(completed("a", "b"))
		require.True(t, ok)
		assert.Equal(t, "c", id)
	})

	t.Run("skipped dependency satisfies", func(t *testing.T) {
		results := completed("a", "b")
		results["c"] = schema.StepResult{Status: schema.StepResultSkipped}
		id, ok := g.NextReady(results)
		require.True(t, ok)
		assert.Equal(t, "d", id)
	})

	t.Run("failed dependency blocks", func(t *testing.T) {
		results := completed("a", "b")
		results["c"] = schema.StepResult{Status: schema.StepResultFailed}
		_, ok := g.NextReady(results)
		assert.False(t, ok)
	})

	t.Run("all recorded means none ready", func(t *testing.T) {
		_, ok := g.NextReady(completed("a", "b", "c", "d"))
		assert.False(t, ok)
	})
}

func assertGraphCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, code, engErr.Code)
}
