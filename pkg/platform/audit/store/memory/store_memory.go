package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/sentinel"
)

// InMemoryStore is an append-only audit store. Records are copied on the way
// in and out so callers cannot mutate what was written.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	byID    map[string]int
	byOp    map[string][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID: make(map[string]int),
		byOp: make(map[string][]int),
	}
}

func (s *InMemoryStore) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rec.ID]; exists {
		return fmt.Errorf("append audit record %s: %w", rec.ID, sentinel.ErrConflict)
	}
	idx := len(s.records)
	s.records = append(s.records, clone(rec))
	s.byID[rec.ID] = idx
	if rec.OperationID != "" {
		s.byOp[rec.OperationID] = append(s.byOp[rec.OperationID], idx)
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec := clone(s.records[idx])
	return &rec, nil
}

func (s *InMemoryStore) ListByOperation(_ context.Context, operationID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, 0, len(s.byOp[operationID]))
	for _, idx := range s.byOp[operationID] {
		out = append(out, clone(s.records[idx]))
	}
	return out, nil
}

func (s *InMemoryStore) ListByType(_ context.Context, eventType audit.EventType) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for _, rec := range s.records {
		if rec.Type == eventType {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, clone(rec))
	}
	return out, nil
}

// Tamper overwrites a stored record in place. It exists so integrity
// verification can be exercised against a corrupted log.
func (s *InMemoryStore) Tamper(id string, mutate func(*audit.Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	mutate(&s.records[idx])
	return true
}

func clone(rec audit.Record) audit.Record {
	rec.Context.Permissions = slices.Clone(rec.Context.Permissions)
	if rec.Details != nil {
		details := make(map[string]string, len(rec.Details))
		for k, v := range rec.Details {
			details[k] = v
		}
		rec.Details = details
	}
	if rec.Resources != nil {
		res := *rec.Resources
		rec.Resources = &res
	}
	return rec
}
