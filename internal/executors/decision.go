package executors

import (
	"context"
	"time"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// decisionChoiceKey is the context key a decision step reads its choice from.
const decisionChoiceKey = "user_choice"

// DecisionExecutor resolves a branch choice. The choice comes from
// context.data.user_choice, falling back to config.default; it must be one
// of config.options or the step fails with INVALID_CHOICE. The resolved
// choice is recorded both in output.decision and on StepResult.Decision so
// downstream applies_to_decision skip checks can find it.
type DecisionExecutor struct{}

// NewDecisionExecutor creates the executor.
func NewDecisionExecutor() *DecisionExecutor {
	return &DecisionExecutor{}
}

func (e *DecisionExecutor) Type() schema.StepType {
	return schema.StepTypeDecision
}

func (e *DecisionExecutor) Execute(ctx context.Context, step *schema.WorkflowStep, wfCtx *schema.WorkflowContext, prior map[string]schema.StepResult) (*schema.StepResult, error) {
	options := step.ConfigStrings("options")
	if len(options) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidDefinition,
			"decision step declares no options").WithStep(step.ID)
	}

	// A present user_choice is authoritative: a non-string or unknown
	// value fails rather than silently falling back to the default.
	var choice, source string
	if raw, ok := wfCtx.Get(decisionChoiceKey); ok {
		s, isString := raw.(string)
		if !isString {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidChoice,
				"choice must be a string, got %T", raw).
				WithStep(step.ID).
				WithDetails(map[string]any{"choice": raw, "options": options})
		}
		choice, source = s, "context"
	} else {
		choice, source = step.ConfigString("default"), "default"
		if choice == "" {
			return nil, schema.NewError(schema.ErrCodeInvalidChoice,
				"no choice provided and no default configured").
				WithStep(step.ID).
				WithDetails(map[string]any{"options": options})
		}
	}

	valid := false
	for _, opt := range options {
		if opt == choice {
			valid = true
			break
		}
	}
	if !valid {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidChoice,
			"choice %q is not one of the configured options", choice).
			WithStep(step.ID).
			WithDetails(map[string]any{"choice": choice, "options": options})
	}

	return &schema.StepResult{
		Status:   schema.StepResultCompleted,
		Decision: choice,
		Output: map[string]any{
			"decision":        choice,
			"decision_source": source,
		},
		ExecutedAt: time.Now().UTC(),
	}, nil
}

var _ Executor = (*DecisionExecutor)(nil)
