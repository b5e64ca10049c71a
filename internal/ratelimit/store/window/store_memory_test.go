package window_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/ratelimit/models"
	"bastion/internal/ratelimit/store/window"
	dErrors "bastion/pkg/domain-errors"
)

func TestInMemoryStoreContract(t *testing.T) {
	runWindowStoreContract(t, window.NewInMemoryStore(), "mem:")
}

type InMemoryStoreSuite struct {
	suite.Suite
	store *window.InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = window.NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestCorruptWindowSurfaces() {
	s.store.Put(models.Window{
		Version:   models.WindowVersion,
		Key:       "rl:x:y",
		Count:     1,
		StartedAt: contractBase,
		ExpiresAt: contractBase.Add(-time.Second),
	})

	_, err := s.store.Get(s.ctx, "rl:x:y")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, _, err = s.store.Increment(s.ctx, "rl:x:y", models.Limit{MaxAttempts: 3, Window: time.Minute}, contractBase)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *InMemoryStoreSuite) TestMarkerTracksWrites() {
	before, err := s.store.Marker(s.ctx)
	s.Require().NoError(err)

	limit := models.Limit{MaxAttempts: 1, Window: time.Minute}
	_, _, err = s.store.Increment(s.ctx, "k", limit, contractBase)
	s.Require().NoError(err)
	afterWrite, _ := s.store.Marker(s.ctx)
	s.NotEqual(before, afterWrite)

	_, allowed, err := s.store.Increment(s.ctx, "k", limit, contractBase)
	s.Require().NoError(err)
	s.False(allowed)
	afterReject, _ := s.store.Marker(s.ctx)
	s.Equal(afterWrite, afterReject, "a rejection writes nothing")
}
