package store

import (
	"time"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// ExecutionFilter narrows List results. Zero values mean "no constraint".
type ExecutionFilter struct {
	WorkflowID string
	Status     schema.ExecutionStatus
	Since      time.Time // records created at or after this instant
	Limit      int
	Offset     int
}
