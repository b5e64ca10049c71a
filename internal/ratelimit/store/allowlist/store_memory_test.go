package allowlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/requestcontext"
)

func TestInMemoryStore(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	store := NewInMemoryStore()

	expires := now.Add(time.Hour)
	ops, err := models.NewAllowlistEntry(models.AllowlistTypeUserID, "ops-bot", "on-call automation", now, &expires)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, ops))

	ok, err := store.IsAllowlisted(ctx, "ops-bot", "")
	require.NoError(t, err)
	assert.True(t, ok)

	later := requestcontext.WithTime(context.Background(), now.Add(2*time.Hour))
	ok, err = store.IsAllowlisted(later, "ops-bot", "")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries no longer bypass")

	list, err := store.List(later)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, store.Remove(ctx, models.AllowlistTypeUserID, "ops-bot"))
	ok, err = store.IsAllowlisted(ctx, "ops-bot", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.IsAllowlisted(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryStore_MatchesEachIdentityAgainstItsOwnType(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	store := NewInMemoryStore()

	ipEntry, err := models.NewAllowlistEntry(models.AllowlistTypeIP, "10.0.0.1", "health checker", now, nil)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, ipEntry))
	userEntry, err := models.NewAllowlistEntry(models.AllowlistTypeUserID, "ops-bot", "automation", now, nil)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, userEntry))

	tests := []struct {
		name   string
		userID string
		ip     string
		want   bool
	}{
		{name: "ip entry matches caller ip", ip: "10.0.0.1", want: true},
		{name: "ip entry does not match a user id with the same text", userID: "10.0.0.1", want: false},
		{name: "user entry matches user id", userID: "ops-bot", ip: "192.0.2.9", want: true},
		{name: "user entry does not match an ip with the same text", ip: "ops-bot", want: false},
		{name: "either identity is enough", userID: "u-1", ip: "10.0.0.1", want: true},
		{name: "unknown caller", userID: "u-1", ip: "192.0.2.9", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := store.IsAllowlisted(ctx, tt.userID, tt.ip)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
