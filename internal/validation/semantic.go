package validation

import (
	"github.com/stepflow-io/stepflow/pkg/schema"
)

// ValidateSemantics runs the checks JSON Schema cannot express: entry and
// exit points must name existing steps, and entry points must have no
// dependencies. Dependency resolution and cycle detection happen in graph
// construction (engine.BuildGraph), which the catalog runs right after this.
func ValidateSemantics(def *schema.WorkflowDefinition) error {
	ids := make(map[string]*schema.WorkflowStep, len(def.Steps))
	for i := range def.Steps {
		ids[def.Steps[i].ID] = &def.Steps[i]
	}

	for _, ep := range def.EntryPoints {
		step, ok := ids[ep]
		if !ok {
			return schema.NewErrorf(schema.ErrCodeInvalidDefinition,
				"entry point %q does not name a step", ep)
		}
		if len(step.Dependencies) > 0 {
			return schema.NewErrorf(schema.ErrCodeInvalidDefinition,
				"entry point %q has dependencies", ep)
		}
	}

	for _, xp := range def.ExitPoints {
		if _, ok := ids[xp]; !ok {
			return schema.NewErrorf(schema.ErrCodeInvalidDefinition,
				"exit point %q does not name a step", xp)
		}
	}

	return nil
}

// ValidateDefinition combines structural (JSON Schema) and semantic checks.
// Any failure is fatal: no execution is ever created from a definition that
// does not pass.
func (v *DefinitionValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	if err := v.ValidateStructure(def); err != nil {
		return err
	}
	return ValidateSemantics(def)
}
