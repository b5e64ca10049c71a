package window_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/ratelimit/models"
	"bastion/internal/ratelimit/ports"
	"bastion/pkg/platform/sentinel"
)

var contractBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// runWindowStoreContract exercises the behavior every WindowStore shares.
// Keys are namespaced by prefix so backends can share one instance.
func runWindowStoreContract(t *testing.T, store ports.WindowStore, prefix string) {
	ctx := context.Background()
	limit := models.Limit{Name: "delete", MaxAttempts: 3, Window: time.Minute}

	t.Run("fills to the limit and stops counting", func(t *testing.T) {
		key := prefix + "fill"
		for i := 1; i <= 3; i++ {
			w, allowed, err := store.Increment(ctx, key, limit, contractBase.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			assert.True(t, allowed)
			assert.Equal(t, i, w.Count)
			assert.True(t, w.StartedAt.Equal(contractBase.Add(time.Second)), "window starts at first attempt")
		}
		w, allowed, err := store.Increment(ctx, key, limit, contractBase.Add(4*time.Second))
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 3, w.Count, "a rejection never increments")

		stored, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 3, stored.Count)
		assert.Equal(t, models.WindowVersion, stored.Version)
	})

	t.Run("expired window is replaced and counts from one", func(t *testing.T) {
		key := prefix + "expire"
		for range 3 {
			_, _, err := store.Increment(ctx, key, limit, contractBase)
			require.NoError(t, err)
		}
		later := contractBase.Add(61 * time.Second)
		w, allowed, err := store.Increment(ctx, key, limit, later)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 1, w.Count)
		assert.True(t, w.StartedAt.Equal(later))
		assert.True(t, w.ExpiresAt.Equal(later.Add(time.Minute)))
	})

	t.Run("reset removes the window", func(t *testing.T) {
		key := prefix + "reset"
		_, _, err := store.Increment(ctx, key, limit, contractBase)
		require.NoError(t, err)
		require.NoError(t, store.Reset(ctx, key))
		_, err = store.Get(ctx, key)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("missing window is not found", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"missing")
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("concurrent increments never exceed the limit", func(t *testing.T) {
		key := prefix + "concurrent"
		burst := models.Limit{Name: "burst", MaxAttempts: 25, Window: time.Minute}
		const goroutines = 200

		var wg sync.WaitGroup
		var allowed atomic.Int32
		errs := make(chan error, goroutines)
		for i := range goroutines {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, ok, err := store.Increment(ctx, key, burst, contractBase.Add(time.Duration(i)*time.Millisecond))
				if err != nil {
					errs <- fmt.Errorf("goroutine %d: %w", i, err)
					return
				}
				if ok {
					allowed.Add(1)
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.Equal(t, int32(burst.MaxAttempts), allowed.Load())
		w, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, burst.MaxAttempts, w.Count)
	})
}
