package schema

import (
	"encoding/json"
	"sync"
	"time"

	"dario.cat/mergo"
)

// WorkflowContext is the mutable per-execution key/value state. The caller
// seeds it before execution and the engine enriches it with each step's
// output. One context belongs to exactly one execution; distinct executions
// own disjoint instances.
//
// All accessors are safe for concurrent use; merged writes to the same key
// follow last-writer-wins.
type WorkflowContext struct {
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	mu   sync.RWMutex
	data map[string]any
}

// NewWorkflowContext creates a context seeded with the given data.
// The seed map is copied, not retained.
func NewWorkflowContext(userID, sessionID string, seed map[string]any) *WorkflowContext {
	data := make(map[string]any, len(seed))
	for k, v := range seed {
		data[k] = v
	}
	return &WorkflowContext{
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		data:      data,
	}
}

// Get returns the value stored under key.
func (c *WorkflowContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// GetString returns the string value stored under key, or "" if absent or
// not a string.
func (c *WorkflowContext) GetString(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// Set stores a single value under key.
func (c *WorkflowContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]any)
	}
	c.data[key] = value
}

// Merge folds updates into the context data. Existing keys are overwritten
// (last-writer-wins); nested maps are merged recursively.
func (c *WorkflowContext) Merge(updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]any)
	}
	return mergo.Merge(&c.data, updates, mergo.WithOverride)
}

// Data returns a shallow copy of the context data.
func (c *WorkflowContext) Data() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Len returns the number of top-level keys.
func (c *WorkflowContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clone returns an independent copy of the context.
func (c *WorkflowContext) Clone() *WorkflowContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data := make(map[string]any, len(c.data))
	for k, v := range c.data {
		data[k] = v
	}
	return &WorkflowContext{
		UserID:    c.UserID,
		SessionID: c.SessionID,
		CreatedAt: c.CreatedAt,
		data:      data,
	}
}

// contextJSON is the wire form of WorkflowContext.
type contextJSON struct {
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data,omitempty"`
}

// MarshalJSON serializes the context including its data map.
func (c *WorkflowContext) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(contextJSON{
		UserID:    c.UserID,
		SessionID: c.SessionID,
		CreatedAt: c.CreatedAt,
		Data:      c.data,
	})
}

// UnmarshalJSON restores a context persisted by MarshalJSON.
func (c *WorkflowContext) UnmarshalJSON(b []byte) error {
	var wire contextJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UserID = wire.UserID
	c.SessionID = wire.SessionID
	c.CreatedAt = wire.CreatedAt
	c.data = wire.Data
	if c.data == nil {
		c.data = make(map[string]any)
	}
	return nil
}
