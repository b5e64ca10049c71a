//go:build integration

package window_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"bastion/internal/ratelimit/store/window"
	"bastion/pkg/testutil/containers"
)

func TestRedisStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	runWindowStoreContract(t, window.NewRedisStore(rc.Client), "redis:")
}

func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pc := containers.NewPostgresContainer(t, window.Schema)

	pool, err := pgxpool.New(context.Background(), pc.DSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runWindowStoreContract(t, window.NewPostgres(pool), "pg:")
}
