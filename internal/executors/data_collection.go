package executors

import (
	"context"
	"time"

	"github.com/stepflow-io/stepflow/internal/expressions"
	"github.com/stepflow-io/stepflow/pkg/schema"
)

// DataCollectionExecutor copies the fields named in config.required_fields
// from the execution context into output.collected_data, and evaluates any
// named jq queries in config.queries against the context and prior step
// outputs. A required field absent from the context fails the step with
// MISSING_INPUT.
type DataCollectionExecutor struct {
	jq *expressions.GoJQEngine
}

// NewDataCollectionExecutor creates the executor. jq may be nil if no
// workflow uses config.queries.
func NewDataCollectionExecutor(jq *expressions.GoJQEngine) *DataCollectionExecutor {
	return &DataCollectionExecutor{jq: jq}
}

func (e *DataCollectionExecutor) Type() schema.StepType {
	return schema.StepTypeDataCollection
}

func (e *DataCollectionExecutor) Execute(ctx context.Context, step *schema.WorkflowStep, wfCtx *schema.WorkflowContext, prior map[string]schema.StepResult) (*schema.StepResult, error) {
	collected := make(map[string]any)

	for _, field := range step.ConfigStrings("required_fields") {
		v, ok := wfCtx.Get(field)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeMissingInput,
				"required field %q not present in context", field).
				WithStep(step.ID).
				WithDetails(map[string]any{"field": field})
		}
		collected[field] = v
	}

	queries := step.ConfigStringMap("queries")
	if len(queries) > 0 {
		if e.jq == nil {
			return nil, schema.NewError(schema.ErrCodeExecution,
				"step declares queries but no jq engine is configured").
				WithStep(step.ID)
		}
		input := map[string]any{
			"data":  wfCtx.Data(),
			"steps": priorOutputs(prior),
		}
		for name, query := range queries {
			v, err := e.jq.Evaluate(ctx, query, input)
			if err != nil {
				var engErr *schema.EngineError
				if ok := asEngineError(err, &engErr); ok {
					return nil, engErr.WithStep(step.ID)
				}
				return nil, schema.NewErrorf(schema.ErrCodeExecution,
					"query %q failed: %s", name, err.Error()).
					WithStep(step.ID).WithCause(err)
			}
			if v == nil {
				return nil, schema.NewErrorf(schema.ErrCodeMissingInput,
					"query %q produced no value", name).
					WithStep(step.ID).
					WithDetails(map[string]any{"query": query})
			}
			collected[name] = v
		}
	}

	return &schema.StepResult{
		Status:     schema.StepResultCompleted,
		Output:     map[string]any{"collected_data": collected},
		ExecutedAt: time.Now().UTC(),
	}, nil
}

var _ Executor = (*DataCollectionExecutor)(nil)
