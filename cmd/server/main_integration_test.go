//go:build integration

package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bastion/internal/platform/config"
	"bastion/internal/platform/db"
	"bastion/pkg/testutil/containers"
)

func TestBootSchemasApplyTwice(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	require.NoError(t, db.EnsureSchema(ctx, pg.DB, bootSchemas()...))
	require.NoError(t, db.EnsureSchema(ctx, pg.DB, bootSchemas()...), "second boot against the same database")
}

func TestOpenStoresRestartsAgainstExistingDatabase(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		DatabaseURL: pg.DSN,
		Guard:       config.Guard{DefaultTimeout: 5 * time.Second},
	}

	for boot := 1; boot <= 2; boot++ {
		st, err := openStores(ctx, cfg, log)
		require.NoError(t, err, "boot %d", boot)
		_, err = st.content.Marker(ctx)
		require.NoError(t, err, "boot %d", boot)
		st.close()
	}
}
