package executors

import (
	"github.com/stepflow-io/stepflow/internal/expressions"
	"github.com/stepflow-io/stepflow/internal/validation"
)

// NewDefaultRegistry builds a registry with the four builtin executors
// wired to shared expression and schema engines.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()

	builtins := []Executor{
		NewDataCollectionExecutor(expressions.NewGoJQEngine()),
		NewDecisionExecutor(),
		NewValidationExecutor(expressions.NewExprEngine(), validation.NewInputValidator()),
		NewUserInteractionExecutor(),
	}
	for _, e := range builtins {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}
