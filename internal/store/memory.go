package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// MemoryStore is an in-memory ExecutionStore for tests and embedded use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*schema.ExecutionRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*schema.ExecutionRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *schema.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ExecutionID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"execution %q already exists", rec.ExecutionID)
	}
	s.records[rec.ExecutionID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *schema.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ExecutionID]; !exists {
		return storeNotFound(rec.ExecutionID)
	}
	cp := rec.Clone()
	cp.UpdatedAt = time.Now().UTC()
	s.records[rec.ExecutionID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, executionID string) (*schema.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[executionID]
	if !ok {
		return nil, storeNotFound(executionID)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter ExecutionFilter) ([]*schema.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*schema.ExecutionRecord
	for _, rec := range s.records {
		if filter.WorkflowID != "" && rec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && rec.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ ExecutionStore = (*MemoryStore)(nil)
