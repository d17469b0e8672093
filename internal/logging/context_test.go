package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", ExecutionID(ctx))
	assert.Equal(t, "", WorkflowID(ctx))
	assert.Equal(t, "", StepID(ctx))

	ctx = WithIDs(ctx, "exec-123", "wf-abc", "step-1")

	// Round-trip.
	assert.Equal(t, "exec-123", ExecutionID(ctx))
	assert.Equal(t, "wf-abc", WorkflowID(ctx))
	assert.Equal(t, "step-1", StepID(ctx))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "exec-1", "wf-1", "step-x")
	logger.InfoContext(ctx, "test message")

	output := buf.String()
	assert.Contains(t, output, "execution_id=exec-1")
	assert.Contains(t, output, "workflow_id=wf-1")
	assert.Contains(t, output, "step_id=step-x")
	assert.Contains(t, output, "test message")
}

func TestCorrelationHandlerPartialContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	// Only the execution ID is set — the others should not appear.
	ctx := WithExecutionID(context.Background(), "exec-only")
	logger.InfoContext(ctx, "partial context")

	output := buf.String()
	assert.Contains(t, output, "execution_id=exec-only")
	assert.NotContains(t, output, "workflow_id")
	assert.NotContains(t, output, "step_id")
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.InfoContext(context.Background(), "no context")

	output := buf.String()
	assert.NotContains(t, output, "execution_id")
	assert.NotContains(t, output, "workflow_id")
	assert.Contains(t, output, "no context")
}
