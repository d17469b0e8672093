package validation

import "github.com/stepflow-io/stepflow/pkg/schema"

// Validator checks workflow definitions for correctness before they are
// registered or executed. Uses JSON Schema Draft 2020-12 for structural
// validation.
type Validator interface {
	ValidateDefinition(def *schema.WorkflowDefinition) error
}

var _ Validator = (*DefinitionValidator)(nil)
