package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

func newLibSQLStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := "file:" + filepath.Join(t.TempDir(), "stepflow.db")
	s, err := NewLibSQLStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(executionID string) *schema.ExecutionRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &schema.ExecutionRecord{
		ExecutionID: executionID,
		WorkflowID:  "onboarding",
		Status:      schema.ExecutionStatusPending,
		StepResults: map[string]schema.StepResult{},
		Context:     schema.NewWorkflowContext("user-1", "session-1", map[string]any{"x": "1"}),
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// stores returns each ExecutionStore implementation under a name, so every
// contract test runs against both.
func stores(t *testing.T) map[string]ExecutionStore {
	return map[string]ExecutionStore{
		"memory": NewMemoryStore(),
		"libsql": newLibSQLStore(t),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("exec-1")
			require.NoError(t, s.Create(ctx, rec))

			got, err := s.Get(ctx, "exec-1")
			require.NoError(t, err)
			assert.Equal(t, "onboarding", got.WorkflowID)
			assert.Equal(t, schema.ExecutionStatusPending, got.Status)
			require.NotNil(t, got.Context)
			assert.Equal(t, "1", got.Context.GetString("x"))
		})
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, sampleRecord("exec-1")))

			err := s.Create(ctx, sampleRecord("exec-1"))
			require.Error(t, err)
			var engErr *schema.EngineError
			require.ErrorAs(t, err, &engErr)
			assert.Equal(t, schema.ErrCodeConflict, engErr.Code)
		})
	}
}

func TestStore_Update(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("exec-1")
			require.NoError(t, s.Create(ctx, rec))

			rec.Status = schema.ExecutionStatusRunning
			rec.CurrentStep = "collect"
			rec.Progress = 50
			rec.StepResults["collect"] = schema.StepResult{
				Status:     schema.StepResultCompleted,
				Output:     map[string]any{"collected_data": map[string]any{"x": "1"}},
				ExecutedAt: time.Now().UTC(),
			}
			require.NoError(t, s.Update(ctx, rec))

			got, err := s.Get(ctx, "exec-1")
			require.NoError(t, err)
			assert.Equal(t, schema.ExecutionStatusRunning, got.Status)
			assert.Equal(t, "collect", got.CurrentStep)
			assert.Equal(t, 50, got.Progress)
			require.Contains(t, got.StepResults, "collect")
			assert.Equal(t, schema.StepResultCompleted, got.StepResults["collect"].Status)
		})
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(context.Background(), sampleRecord("ghost"))
			require.Error(t, err)
			var engErr *schema.EngineError
			require.ErrorAs(t, err, &engErr)
			assert.Equal(t, schema.ErrCodeNotFound, engErr.Code)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "ghost")
			require.Error(t, err)
			var engErr *schema.EngineError
			require.ErrorAs(t, err, &engErr)
			assert.Equal(t, schema.ErrCodeNotFound, engErr.Code)
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			r1 := sampleRecord("exec-1")
			r1.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
			require.NoError(t, s.Create(ctx, r1))

			r2 := sampleRecord("exec-2")
			r2.Status = schema.ExecutionStatusCompleted
			r2.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
			require.NoError(t, s.Create(ctx, r2))

			r3 := sampleRecord("exec-3")
			r3.WorkflowID = "offboarding"
			require.NoError(t, s.Create(ctx, r3))

			t.Run("all newest first", func(t *testing.T) {
				got, err := s.List(ctx, ExecutionFilter{})
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, "exec-3", got[0].ExecutionID)
			})

			t.Run("by workflow", func(t *testing.T) {
				got, err := s.List(ctx, ExecutionFilter{WorkflowID: "onboarding"})
				require.NoError(t, err)
				assert.Len(t, got, 2)
			})

			t.Run("by status", func(t *testing.T) {
				got, err := s.List(ctx, ExecutionFilter{Status: schema.ExecutionStatusCompleted})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "exec-2", got[0].ExecutionID)
			})

			t.Run("since", func(t *testing.T) {
				got, err := s.List(ctx, ExecutionFilter{Since: time.Now().UTC().Add(-90 * time.Minute)})
				require.NoError(t, err)
				assert.Len(t, got, 2)
			})

			t.Run("limit and offset", func(t *testing.T) {
				got, err := s.List(ctx, ExecutionFilter{Limit: 1, Offset: 1})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "exec-2", got[0].ExecutionID)
			})
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, sampleRecord("exec-1")))

	got, err := s.Get(ctx, "exec-1")
	require.NoError(t, err)
	got.Status = schema.ExecutionStatusFailed
	got.StepResults["rogue"] = schema.StepResult{Status: schema.StepResultFailed}

	again, err := s.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusPending, again.Status)
	assert.NotContains(t, again.StepResults, "rogue")
}
