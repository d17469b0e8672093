package expressions

import "context"

// Engine evaluates expressions against workflow execution data.
// Three implementations: CEL (step guard conditions), Expr (validator
// logic), GoJQ (data extraction queries).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
