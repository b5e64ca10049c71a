package memory

import (
	"context"
	"hash/fnv"
	"maps"
	"strconv"
	"sync"
	"time"

	"bastion/internal/persistence"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sentinel"
)

// numShards spreads transactions across independent locks keyed by the
// shard key in ctx so unrelated subjects never wait on each other.
const numShards = 128

// Store is an in-memory key/value store whose writes are staged in a
// per-transaction journal and applied atomically on commit.
type Store struct {
	mu      sync.RWMutex
	data    map[string][]byte
	version uint64

	// each shard is a one-slot semaphore so waiting for it honors ctx
	shards  [numShards]chan struct{}
	timeout time.Duration
}

type Option func(*Store)

// WithTimeout bounds a transaction whose ctx carries no deadline: the wait
// for its shard and the work after it share the budget.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

func NewStore(opts ...Option) *Store {
	s := &Store{data: make(map[string][]byte)}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// journal holds the staged writes of one transaction. A nil value marks a
// delete.
type journal struct {
	mu     sync.Mutex
	store  *Store
	writes map[string][]byte
	closed bool
}

type journalKey struct{}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := s.timeout
	if timeout == 0 {
		timeout = persistence.DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := s.shards[shardIndex(persistence.ShardKey(ctx))]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: shard busy")
	}
	defer func() { <-shard }()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	j := &journal{store: s, writes: make(map[string][]byte)}
	err := fn(context.WithValue(ctx, journalKey{}, j))

	j.mu.Lock()
	j.closed = true
	writes := j.writes
	j.mu.Unlock()

	if err != nil {
		return err
	}
	s.apply(writes)
	return nil
}

func (s *Store) apply(writes map[string][]byte) {
	if len(writes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range writes {
		if v == nil {
			delete(s.data, k)
			continue
		}
		s.data[k] = v
	}
	s.version++
}

func (s *Store) journalFrom(ctx context.Context) *journal {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok && j.store == s {
		return j
	}
	return nil
}

// Put stages value under key in the transaction carried by ctx, or writes it
// directly when ctx carries none.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	v := append([]byte{}, value...)
	if j := s.journalFrom(ctx); j != nil {
		j.mu.Lock()
		defer j.mu.Unlock()
		if j.closed {
			return sentinel.ErrTxClosed
		}
		j.writes[key] = v
		return nil
	}
	s.apply(map[string][]byte{key: v})
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if j := s.journalFrom(ctx); j != nil {
		j.mu.Lock()
		defer j.mu.Unlock()
		if j.closed {
			return sentinel.ErrTxClosed
		}
		j.writes[key] = nil
		return nil
	}
	s.apply(map[string][]byte{key: nil})
	return nil
}

// Get reads key, observing the transaction's own staged writes first.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if j := s.journalFrom(ctx); j != nil {
		j.mu.Lock()
		v, staged := j.writes[key]
		j.mu.Unlock()
		if staged {
			if v == nil {
				return nil, sentinel.ErrNotFound
			}
			return append([]byte{}, v...), nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte{}, v...), nil
}

// Snapshot returns a copy of all committed data.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Marker returns the commit counter; it changes exactly when a commit
// applies at least one write.
func (s *Store) Marker(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return "v" + strconv.FormatUint(s.version, 10), nil
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numShards)
}
