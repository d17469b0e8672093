package executors

import (
	"context"
	"time"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// userInputKey is the context key a user_interaction step reads from.
const userInputKey = "user_input"

// UserInteractionExecutor consumes pre-resolved user input. The interaction
// itself (prompting a human, collecting a form) happens outside the engine;
// by the time this step runs, the answer must already be in
// context.data.user_input or the step fails with MISSING_USER_INPUT.
type UserInteractionExecutor struct{}

// NewUserInteractionExecutor creates the executor.
func NewUserInteractionExecutor() *UserInteractionExecutor {
	return &UserInteractionExecutor{}
}

func (e *UserInteractionExecutor) Type() schema.StepType {
	return schema.StepTypeUserInteraction
}

func (e *UserInteractionExecutor) Execute(ctx context.Context, step *schema.WorkflowStep, wfCtx *schema.WorkflowContext, prior map[string]schema.StepResult) (*schema.StepResult, error) {
	input, ok := wfCtx.Get(userInputKey)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeMissingUserInput,
			"no user input present in context").
			WithStep(step.ID).
			WithDetails(map[string]any{"key": userInputKey})
	}

	output := map[string]any{"user_input": input}
	if prompt := step.ConfigString("prompt"); prompt != "" {
		output["prompt"] = prompt
	}

	return &schema.StepResult{
		Status:     schema.StepResultCompleted,
		Output:     output,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

var _ Executor = (*UserInteractionExecutor)(nil)
