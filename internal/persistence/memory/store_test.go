package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/persistence"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = NewStore()
	s.ctx = context.Background()
}

func (s *StoreSuite) TestCommitMakesWritesVisible() {
	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Put(ctx, "article:1", []byte("draft")))

		got, err := s.store.Get(ctx, "article:1")
		s.Require().NoError(err)
		s.Equal("draft", string(got), "transaction reads its own writes")

		_, err = s.store.Get(s.ctx, "article:1")
		s.ErrorIs(err, sentinel.ErrNotFound, "outside readers see nothing before commit")
		return nil
	})
	s.Require().NoError(err)

	got, err := s.store.Get(s.ctx, "article:1")
	s.Require().NoError(err)
	s.Equal("draft", string(got))
}

func (s *StoreSuite) TestErrorRollsBack() {
	s.Require().NoError(s.store.Put(s.ctx, "article:1", []byte("published")))
	before, _ := s.store.Marker(s.ctx)

	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Delete(ctx, "article:1"))
		s.Require().NoError(s.store.Put(ctx, "article:2", []byte("x")))
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.Get(s.ctx, "article:1")
	s.Require().NoError(err)
	s.Equal("published", string(got))
	_, err = s.store.Get(s.ctx, "article:2")
	s.ErrorIs(err, sentinel.ErrNotFound)

	after, _ := s.store.Marker(s.ctx)
	s.Equal(before, after, "rollback leaves the marker untouched")
}

func (s *StoreSuite) TestWritesAfterCloseAreRejected() {
	var leaked context.Context
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		leaked = ctx
		return nil
	}))
	s.ErrorIs(s.store.Put(leaked, "late", []byte("x")), sentinel.ErrTxClosed)
}

func (s *StoreSuite) TestSameShardSerializes() {
	ctx := persistence.WithShardKey(s.ctx, "user-1")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.store.RunInTx(ctx, func(ctx context.Context) error {
				cur, err := s.store.Get(ctx, "counter")
				n := 0
				if err == nil {
					_, _ = fmt.Sscanf(string(cur), "%d", &n)
				}
				return s.store.Put(ctx, "counter", []byte(fmt.Sprintf("%d", n+1)))
			})
		}()
	}
	wg.Wait()

	got, err := s.store.Get(s.ctx, "counter")
	s.Require().NoError(err)
	s.Equal("50", string(got))
}

func (s *StoreSuite) TestShardWaitHonorsTimeout() {
	store := NewStore(WithTimeout(50 * time.Millisecond))
	ctx := persistence.WithShardKey(s.ctx, "user-1")

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.RunInTx(persistence.WithShardKey(context.Background(), "user-1"), func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	called := false
	start := time.Now()
	err := store.RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	waited := time.Since(start)
	close(release)

	s.True(dErrors.Is(err, dErrors.CodeTimeout))
	s.False(called)
	s.Less(waited, time.Second, "the waiter gave up instead of blocking on the holder")
	s.NoError(<-done)

	s.NoError(store.RunInTx(ctx, func(context.Context) error { return nil }), "shard is free again")
}

func (s *StoreSuite) TestOtherShardsDoNotWait() {
	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.store.RunInTx(persistence.WithShardKey(s.ctx, "user-1"), func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	other := "user-2"
	for shardIndex(other) == shardIndex("user-1") {
		other += "x"
	}
	ctx, cancel := context.WithTimeout(persistence.WithShardKey(s.ctx, other), time.Second)
	defer cancel()
	s.NoError(s.store.RunInTx(ctx, func(context.Context) error { return nil }))
}

func (s *StoreSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.store.RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}
