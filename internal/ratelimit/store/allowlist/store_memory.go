// Package allowlist holds the rate limit bypass stores.
package allowlist

import (
	"context"
	"sort"
	"sync"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/requestcontext"
)

type entryKey struct {
	typ        models.AllowlistEntryType
	identifier string
}

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[entryKey]*models.AllowlistEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[entryKey]*models.AllowlistEntry)}
}

func (s *InMemoryStore) Add(_ context.Context, entry *models.AllowlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *entry
	s.entries[entryKey{entry.Type, entry.Identifier}] = &e
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, entryType models.AllowlistEntryType, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entryKey{entryType, identifier})
	return nil
}

// IsAllowlisted matches userID against user_id entries and ip against ip
// entries.
func (s *InMemoryStore) IsAllowlisted(ctx context.Context, userID, ip string) (bool, error) {
	now := requestcontext.Now(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range []entryKey{{models.AllowlistTypeUserID, userID}, {models.AllowlistTypeIP, ip}} {
		if k.identifier == "" {
			continue
		}
		if e, ok := s.entries[k]; ok && !e.IsExpired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]*models.AllowlistEntry, error) {
	now := requestcontext.Now(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AllowlistEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.IsExpired(now) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
