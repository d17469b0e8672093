package engine

import (
	"time"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// validTransitions is the legal-transition table for the execution status
// state machine. Terminal states admit no transitions.
var validTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionStatusPending:   {schema.ExecutionStatusRunning},
	schema.ExecutionStatusRunning:   {schema.ExecutionStatusPaused, schema.ExecutionStatusCompleted, schema.ExecutionStatusFailed, schema.ExecutionStatusCancelled},
	schema.ExecutionStatusPaused:    {schema.ExecutionStatusRunning, schema.ExecutionStatusCancelled},
	schema.ExecutionStatusCompleted: {},
	schema.ExecutionStatusFailed:    {},
	schema.ExecutionStatusCancelled: {},
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to schema.ExecutionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// checkTransition returns an ILLEGAL_TRANSITION error if from → to is not in
// the transition table. Control-plane callers reject before mutating state.
func checkTransition(executionID string, from, to schema.ExecutionStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeIllegalTransition,
		"illegal transition %s -> %s", from, to).
		WithDetails(map[string]any{
			"execution_id": executionID,
			"from":         string(from),
			"to":           string(to),
		})
}

// transition applies a validated status change to the record. Terminal
// states also stamp completed_at.
func transition(rec *schema.ExecutionRecord, to schema.ExecutionStatus) error {
	if err := checkTransition(rec.ExecutionID, rec.Status, to); err != nil {
		return err
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	if to.IsTerminal() {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}
	return nil
}
