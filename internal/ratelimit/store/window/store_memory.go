// Package window holds the WindowStore implementations.
package window

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/platform/sentinel"
)

const numShards = 64

type shard struct {
	mu      sync.Mutex
	windows map[string]models.Window
}

// InMemoryStore keeps windows in process memory. Keys hash onto independent
// shards so unrelated subjects never contend on one lock.
type InMemoryStore struct {
	shards  [numShards]shard
	version atomic.Uint64
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i].windows = make(map[string]models.Window)
	}
	return s
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%numShards]
}

func (s *InMemoryStore) Increment(_ context.Context, key string, limit models.Limit, now time.Time) (models.Window, bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if ok {
		if err := w.Validate(); err != nil {
			return models.Window{}, false, err
		}
	}
	if !ok || w.Expired(now) {
		w = models.NewWindow(key, limit.Window, now)
	}
	if w.Count >= limit.MaxAttempts {
		return w, false, nil
	}
	w.Count++
	sh.windows[key] = w
	s.version.Add(1)
	return w, true, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*models.Window, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.windows[key]; ok {
		delete(sh.windows, key)
		s.version.Add(1)
	}
	return nil
}

// Put stores w as-is, bypassing the increment rules. Used to seed state and
// by tests that need a corrupt window.
func (s *InMemoryStore) Put(w models.Window) {
	sh := s.shardFor(w.Key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.windows[w.Key] = w
	s.version.Add(1)
}

// Marker changes whenever any window is written or removed.
func (s *InMemoryStore) Marker(_ context.Context) (string, error) {
	return "w" + strconv.FormatUint(s.version.Load(), 10), nil
}
