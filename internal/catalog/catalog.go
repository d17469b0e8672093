// Package catalog stores workflow definitions and serves them to the
// engine. Every definition is fully validated on the way in, so anything a
// catalog hands out is safe to execute.
package catalog

import (
	"context"
	"sync"

	"github.com/stepflow-io/stepflow/internal/engine"
	"github.com/stepflow-io/stepflow/internal/validation"
	"github.com/stepflow-io/stepflow/pkg/schema"
)

// Catalog resolves workflow definitions by ID.
type Catalog interface {
	// GetDefinition returns the definition for a workflow ID, or NOT_FOUND.
	GetDefinition(ctx context.Context, workflowID string) (*schema.WorkflowDefinition, error)

	// List returns the registered workflow IDs in sorted order.
	List(ctx context.Context) ([]string, error)
}

// validate runs the full load-time check: structure, semantics, then graph
// construction (dependency resolution and cycle detection).
func validate(v *validation.DefinitionValidator, def *schema.WorkflowDefinition) error {
	if err := v.ValidateDefinition(def); err != nil {
		return err
	}
	if _, err := engine.BuildGraph(def); err != nil {
		return err
	}
	return nil
}

// MemoryCatalog is an in-memory Catalog populated via Register.
type MemoryCatalog struct {
	validator *validation.DefinitionValidator

	mu   sync.RWMutex
	defs map[string]*schema.WorkflowDefinition
}

// NewMemoryCatalog creates an empty MemoryCatalog.
func NewMemoryCatalog() (*MemoryCatalog, error) {
	v, err := validation.NewDefinitionValidator()
	if err != nil {
		return nil, err
	}
	return &MemoryCatalog{
		validator: v,
		defs:      make(map[string]*schema.WorkflowDefinition),
	}, nil
}

// Register validates a definition and adds it to the catalog. Registering
// an ID twice is a CONFLICT.
func (c *MemoryCatalog) Register(def *schema.WorkflowDefinition) error {
	if err := validate(c.validator, def); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %q already registered", def.ID)
	}
	c.defs[def.ID] = def
	return nil
}

func (c *MemoryCatalog) GetDefinition(ctx context.Context, workflowID string) (*schema.WorkflowDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", workflowID)
	}
	return def, nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sortStrings(ids)
	return ids, nil
}

var _ Catalog = (*MemoryCatalog)(nil)
var _ engine.Catalog = (*MemoryCatalog)(nil)
