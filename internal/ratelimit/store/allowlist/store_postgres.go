package allowlist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/requestcontext"
)

// Schema is the DDL the postgres store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limit_allowlist (
	entry_type TEXT NOT NULL,
	identifier TEXT NOT NULL,
	reason     TEXT NOT NULL,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (entry_type, identifier)
)`

// PostgresStore persists allowlist entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed allowlist store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, entry *models.AllowlistEntry) error {
	if entry == nil {
		return fmt.Errorf("allowlist entry is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_allowlist (entry_type, identifier, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entry_type, identifier) DO UPDATE
		SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at
	`, string(entry.Type), entry.Identifier, entry.Reason, nullTime(entry.ExpiresAt), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("add allowlist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, entryType models.AllowlistEntryType, identifier string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_allowlist WHERE entry_type = $1 AND identifier = $2`,
		string(entryType), identifier)
	if err != nil {
		return fmt.Errorf("remove allowlist entry: %w", err)
	}
	return nil
}

// IsAllowlisted matches userID against user_id entries and ip against ip
// entries.
func (s *PostgresStore) IsAllowlisted(ctx context.Context, userID, ip string) (bool, error) {
	if userID == "" && ip == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rate_limit_allowlist
			WHERE ((entry_type = $1 AND identifier = $2 AND $2 <> '')
			    OR (entry_type = $3 AND identifier = $4 AND $4 <> ''))
			  AND (expires_at IS NULL OR expires_at > $5)
		)`,
		string(models.AllowlistTypeUserID), userID,
		string(models.AllowlistTypeIP), ip,
		requestcontext.Now(ctx),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check allowlist: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.AllowlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_type, identifier, reason, expires_at, created_at
		FROM rate_limit_allowlist
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY created_at`, requestcontext.Now(ctx))
	if err != nil {
		return nil, fmt.Errorf("list allowlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AllowlistEntry
	for rows.Next() {
		var (
			entry     models.AllowlistEntry
			entryType string
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&entryType, &entry.Identifier, &entry.Reason, &expiresAt, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan allowlist entry: %w", err)
		}
		entry.Type = models.AllowlistEntryType(entryType)
		if expiresAt.Valid {
			entry.ExpiresAt = &expiresAt.Time
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowlist entries: %w", err)
	}
	return entries, nil
}

// RemoveExpiredAt removes all entries that have expired as of the given time.
func (s *PostgresStore) RemoveExpiredAt(ctx context.Context, now time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_allowlist WHERE expires_at IS NOT NULL AND expires_at <= $1`, now); err != nil {
		return fmt.Errorf("cleanup allowlist entries: %w", err)
	}
	return nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
