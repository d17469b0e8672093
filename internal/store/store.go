// Package store persists execution records. The engine writes through an
// ExecutionStore after every step and status transition, so a process
// restart can always resume from the last persisted state.
package store

import (
	"context"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// ExecutionStore is the persistence contract for execution records.
// Implementations must return deep copies from Get and List: callers own
// what they receive and must not be able to mutate persisted state.
type ExecutionStore interface {
	// Create persists a new execution record. Fails with CONFLICT if the
	// execution ID already exists.
	Create(ctx context.Context, rec *schema.ExecutionRecord) error

	// Update overwrites an existing record. Fails with NOT_FOUND if absent.
	Update(ctx context.Context, rec *schema.ExecutionRecord) error

	// Get returns the record for an execution ID, or NOT_FOUND.
	Get(ctx context.Context, executionID string) (*schema.ExecutionRecord, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter ExecutionFilter) ([]*schema.ExecutionRecord, error)

	// Close releases underlying resources.
	Close() error
}
