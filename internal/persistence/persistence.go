// Package persistence defines the unit-of-work boundary guarded operations run
// in. Implementations differ in backing store, not in contract: everything fn
// writes through the ctx it receives becomes visible at once when RunInTx
// returns nil, and none of it does otherwise.
package persistence

import (
	"context"
	"time"
)

// DefaultTxTimeout bounds a transaction whose ctx carries no deadline.
const DefaultTxTimeout = 5 * time.Second

// Transactor opens a transaction, runs fn inside it, and commits only if fn
// returns nil.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MarkerSource reports an opaque reference to the current persisted state.
// Two equal markers mean nothing was committed in between.
type MarkerSource interface {
	Marker(ctx context.Context) (string, error)
}

type shardKey struct{}

// WithShardKey names the entity a transaction serializes on. In-memory
// transactors lock per shard; SQL transactors count commits per shard.
func WithShardKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, shardKey{}, key)
}

// ShardKey returns the key set by WithShardKey, or "".
func ShardKey(ctx context.Context) string {
	if k, ok := ctx.Value(shardKey{}).(string); ok {
		return k
	}
	return ""
}
