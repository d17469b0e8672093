package schema

import "time"

// ExecutionStatus represents the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepResultStatus is the recorded outcome of a single step execution.
type StepResultStatus string

const (
	StepResultCompleted StepResultStatus = "completed"
	StepResultFailed    StepResultStatus = "failed"
	StepResultSkipped   StepResultStatus = "skipped"
)

// StepResult summarizes the outcome of a single step.
type StepResult struct {
	Status     StepResultStatus `json:"status"`
	Output     map[string]any   `json:"output,omitempty"`
	Decision   string           `json:"decision,omitempty"`
	ExecutedAt time.Time        `json:"executed_at"`
	Error      string           `json:"error,omitempty"`
}

// ExecutionRecord tracks one run of a workflow through the status state
// machine. Created when an execution starts, mutated only by the engine,
// immutable once the status is terminal.
type ExecutionRecord struct {
	ExecutionID  string                `json:"execution_id"`
	WorkflowID   string                `json:"workflow_id"`
	Status       ExecutionStatus       `json:"status"`
	CurrentStep  string                `json:"current_step,omitempty"`
	Progress     int                   `json:"progress"` // 0–100
	StepResults  map[string]StepResult `json:"step_results"`
	Context      *WorkflowContext      `json:"context,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TerminalStepCount returns the number of steps with a recorded terminal
// status (completed, failed, or skipped).
func (r *ExecutionRecord) TerminalStepCount() int {
	n := 0
	for _, sr := range r.StepResults {
		switch sr.Status {
		case StepResultCompleted, StepResultFailed, StepResultSkipped:
			n++
		}
	}
	return n
}

// ComputeProgress returns the percentage of steps with a terminal recorded
// status out of totalSteps, clamped to [0, 100].
func (r *ExecutionRecord) ComputeProgress(totalSteps int) int {
	if totalSteps <= 0 {
		return 0
	}
	p := r.TerminalStepCount() * 100 / totalSteps
	if p > 100 {
		p = 100
	}
	return p
}

// Clone returns a deep copy of the record. Stores return clones so callers
// cannot mutate persisted state.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	cp := *r
	cp.StepResults = make(map[string]StepResult, len(r.StepResults))
	for id, sr := range r.StepResults {
		srCopy := sr
		if sr.Output != nil {
			srCopy.Output = cloneMap(sr.Output)
		}
		cp.StepResults[id] = srCopy
	}
	if r.Context != nil {
		cp.Context = r.Context.Clone()
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
