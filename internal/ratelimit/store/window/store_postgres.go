package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/platform/sentinel"
)

// Schema is the DDL the postgres store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limit_windows (
	key        TEXT PRIMARY KEY,
	version    INT NOT NULL,
	count      INT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// Querier is the subset of *pgxpool.Pool the store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists windows in PostgreSQL. Increment is a single
// conditional upsert: the row lock taken by ON CONFLICT serializes concurrent
// callers and the WHERE clause refuses to update a full, live window.
type PostgresStore struct {
	db Querier
}

func NewPostgres(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

const incrementSQL = `
INSERT INTO rate_limit_windows AS w (key, version, count, started_at, expires_at)
VALUES ($1, $2, 1, $3, $4)
ON CONFLICT (key) DO UPDATE SET
	version    = EXCLUDED.version,
	count      = CASE WHEN w.expires_at <= $3 THEN 1 ELSE w.count + 1 END,
	started_at = CASE WHEN w.expires_at <= $3 THEN EXCLUDED.started_at ELSE w.started_at END,
	expires_at = CASE WHEN w.expires_at <= $3 THEN EXCLUDED.expires_at ELSE w.expires_at END
WHERE w.expires_at <= $3 OR w.count < $5
RETURNING version, count, started_at, expires_at`

func (s *PostgresStore) Increment(ctx context.Context, key string, limit models.Limit, now time.Time) (models.Window, bool, error) {
	now = now.UTC().Truncate(time.Microsecond)
	w := models.Window{Key: key}
	err := s.db.QueryRow(ctx, incrementSQL, key, models.WindowVersion, now, now.Add(limit.Window), limit.MaxAttempts).
		Scan(&w.Version, &w.Count, &w.StartedAt, &w.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.Get(ctx, key)
		if getErr != nil {
			return models.Window{}, false, getErr
		}
		return *current, false, nil
	}
	if err != nil {
		return models.Window{}, false, fmt.Errorf("increment window %s: %w", key, err)
	}
	w.StartedAt = w.StartedAt.UTC()
	w.ExpiresAt = w.ExpiresAt.UTC()
	if err := w.Validate(); err != nil {
		return models.Window{}, false, err
	}
	return w, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*models.Window, error) {
	w := models.Window{Key: key}
	err := s.db.QueryRow(ctx,
		`SELECT version, count, started_at, expires_at FROM rate_limit_windows WHERE key = $1`, key).
		Scan(&w.Version, &w.Count, &w.StartedAt, &w.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get window %s: %w", key, err)
	}
	w.StartedAt = w.StartedAt.UTC()
	w.ExpiresAt = w.ExpiresAt.UTC()
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM rate_limit_windows WHERE key = $1`, key); err != nil {
		return fmt.Errorf("reset window %s: %w", key, err)
	}
	return nil
}

// Marker summarizes the table by row count and total attempts.
func (s *PostgresStore) Marker(ctx context.Context) (string, error) {
	var rows, attempts int64
	err := s.db.QueryRow(ctx, `SELECT count(*), coalesce(sum(count), 0) FROM rate_limit_windows`).Scan(&rows, &attempts)
	if err != nil {
		return "", fmt.Errorf("window marker: %w", err)
	}
	return fmt.Sprintf("rows=%d attempts=%d", rows, attempts), nil
}
