// Package executors contains the step executor contract, the open
// per-step-type registry, and the builtin executors shipped with the engine.
package executors

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// Executor runs one kind of workflow step. Implementations must be safe for
// concurrent use: the same executor instance serves every execution.
type Executor interface {
	// Type returns the step type this executor handles.
	Type() schema.StepType

	// Execute runs the step against the execution's context and the results
	// recorded so far. A returned error marks the step (and the execution)
	// failed; a nil error with a populated StepResult records the outcome.
	Execute(ctx context.Context, step *schema.WorkflowStep, wfCtx *schema.WorkflowContext, prior map[string]schema.StepResult) (*schema.StepResult, error)
}

// Registry maps step types to executors. The registry is open: callers may
// register executors for step types the engine has never heard of, and the
// engine dispatches purely on step_type.
type Registry struct {
	mu        sync.RWMutex
	executors map[schema.StepType]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[schema.StepType]Executor),
	}
}

// Register adds an executor. Registering a second executor for the same step
// type is rejected: replacement must be explicit, never accidental.
func (r *Registry) Register(e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := e.Type()
	if _, exists := r.executors[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"executor already registered for step type %q", t)
	}
	r.executors[t] = e
	return nil
}

// Get returns the executor for a step type, or an error if none is registered.
func (r *Registry) Get(t schema.StepType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[t]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidDefinition,
			"no executor registered for step type %q", t)
	}
	return e, nil
}

// Types returns the registered step types in sorted order.
func (r *Registry) Types() []schema.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.StepType, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// asEngineError unwraps an error into an *EngineError.
func asEngineError(err error, target **schema.EngineError) bool {
	return errors.As(err, target)
}

// priorOutputs flattens recorded step results into a step-id→output map for
// expression evaluation.
func priorOutputs(prior map[string]schema.StepResult) map[string]any {
	out := make(map[string]any, len(prior))
	for id, sr := range prior {
		out[id] = sr.Output
	}
	return out
}
