package schema

// WorkflowDefinition is the static typed graph of steps that makes up one
// business process (e.g. "create a portfolio"). Definitions are immutable
// once registered in a catalog; executions never mutate them.
type WorkflowDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       []WorkflowStep `json:"steps"`
	EntryPoints []string       `json:"entry_points,omitempty"` // valid starting steps (no dependencies)
	ExitPoints  []string       `json:"exit_points,omitempty"`  // steps whose completion may terminate the workflow
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// WorkflowStep describes a single step in a workflow.
type WorkflowStep struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Type         StepType       `json:"step_type"`
	Description  string         `json:"description,omitempty"`
	Config       map[string]any `json:"config,omitempty"`       // interpreted by the step's executor
	Dependencies []string       `json:"dependencies,omitempty"` // step IDs that must complete first
	Condition    string         `json:"condition,omitempty"`    // CEL guard, evaluated before dispatch
}

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypeDataCollection  StepType = "data_collection"
	StepTypeDecision        StepType = "decision"
	StepTypeValidation      StepType = "validation"
	StepTypeUserInteraction StepType = "user_interaction"
)

// KnownStepTypes lists the step types shipped with the engine, in a stable
// order. The executor registry is open: additional types may be registered
// without engine changes.
var KnownStepTypes = []StepType{
	StepTypeDataCollection,
	StepTypeDecision,
	StepTypeValidation,
	StepTypeUserInteraction,
}

// GetStep returns the step with the given ID, or false if absent.
func (d *WorkflowDefinition) GetStep(id string) (*WorkflowStep, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// StepsByType returns all steps of the given type in declaration order.
func (d *WorkflowDefinition) StepsByType(t StepType) []WorkflowStep {
	var out []WorkflowStep
	for _, s := range d.Steps {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// StepIDs returns the IDs of all steps in declaration order.
func (d *WorkflowDefinition) StepIDs() []string {
	ids := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		ids[i] = s.ID
	}
	return ids
}

// --- Step config accessors ---
//
// Step config is an opaque key→value map owned by the step's executor.
// These helpers centralize the type coercion executors need.

// ConfigString returns a string-valued config key, or "" if absent.
func (s *WorkflowStep) ConfigString(key string) string {
	v, _ := s.Config[key].(string)
	return v
}

// ConfigStrings returns a []string-valued config key. Both []string and
// []any-of-strings are accepted, matching JSON-decoded configs.
func (s *WorkflowStep) ConfigStrings(key string) []string {
	switch v := s.Config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// ConfigStringMap returns a map[string]string-valued config key.
func (s *WorkflowStep) ConfigStringMap(key string) map[string]string {
	switch v := s.Config[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if str, ok := item.(string); ok {
				out[k] = str
			}
		}
		return out
	default:
		return nil
	}
}
