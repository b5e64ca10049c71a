package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/sentinel"
)

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// Schema is the DDL the store expects. seq preserves insertion order. It is
// safe to apply on every boot.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	type           TEXT NOT NULL,
	severity       TEXT NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	operation_id   TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	user_id        TEXT NOT NULL DEFAULT '',
	ip             TEXT NOT NULL DEFAULT '',
	session_id     TEXT NOT NULL DEFAULT '',
	user_agent     TEXT NOT NULL DEFAULT '',
	client         TEXT NOT NULL DEFAULT '',
	permissions    TEXT[],
	request_id     TEXT NOT NULL DEFAULT '',
	system_mode    TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	details        JSONB,
	resources      JSONB,
	critical       BOOLEAN NOT NULL DEFAULT FALSE,
	key_id         TEXT NOT NULL,
	payload_hash   TEXT NOT NULL,
	tag            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_operation_idx ON audit_records (operation_id, seq);
CREATE INDEX IF NOT EXISTS audit_records_type_idx ON audit_records (type, seq)`

// Store implements audit.Store on a PostgreSQL audit_records table.
//
// Writes always go through the pool, never through a transaction carried in
// ctx: a failure record must survive the rollback of the operation it
// describes.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, type, severity, timestamp, operation_id, correlation_id,
	user_id, ip, session_id, user_agent, client, permissions, request_id, system_mode,
	reason, details, resources, critical, key_id, payload_hash, tag`

// Append inserts rec. Duplicate ids return sentinel.ErrConflict.
func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	var resources []byte
	if rec.Resources != nil {
		resources, err = json.Marshal(rec.Resources)
		if err != nil {
			return fmt.Errorf("marshal audit resources: %w", err)
		}
	}

	query := `
		INSERT INTO audit_records (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Type),
		string(rec.Severity),
		rec.Timestamp,
		rec.OperationID,
		rec.CorrelationID,
		rec.Context.UserID,
		rec.Context.IP,
		rec.Context.SessionID,
		rec.Context.UserAgent,
		rec.Context.Client,
		pq.Array(rec.Context.Permissions),
		rec.Context.RequestID,
		rec.Context.SystemMode,
		rec.Reason,
		details,
		nullableJSON(resources),
		rec.Critical,
		rec.KeyID,
		rec.PayloadHash,
		rec.Tag,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("insert audit record %s: %w", rec.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*audit.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM audit_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) ListByOperation(ctx context.Context, operationID string) ([]audit.Record, error) {
	return s.list(ctx, `WHERE operation_id = $1 ORDER BY seq`, operationID)
}

func (s *Store) ListByType(ctx context.Context, eventType audit.EventType) ([]audit.Record, error) {
	return s.list(ctx, `WHERE type = $1 ORDER BY seq`, string(eventType))
}

func (s *Store) ListAll(ctx context.Context) ([]audit.Record, error) {
	return s.list(ctx, `ORDER BY seq`)
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM audit_records `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*audit.Record, error) {
	var (
		rec       audit.Record
		typ, sev  string
		perms     pq.StringArray
		details   []byte
		resources []byte
	)
	err := row.Scan(
		&rec.ID,
		&typ,
		&sev,
		&rec.Timestamp,
		&rec.OperationID,
		&rec.CorrelationID,
		&rec.Context.UserID,
		&rec.Context.IP,
		&rec.Context.SessionID,
		&rec.Context.UserAgent,
		&rec.Context.Client,
		&perms,
		&rec.Context.RequestID,
		&rec.Context.SystemMode,
		&rec.Reason,
		&details,
		&resources,
		&rec.Critical,
		&rec.KeyID,
		&rec.PayloadHash,
		&rec.Tag,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan audit record: %w", err)
	}
	rec.Type = audit.EventType(typ)
	rec.Severity = audit.Severity(sev)
	rec.Context.Permissions = []string(perms)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, fmt.Errorf("decode audit details: %w", err)
		}
	}
	if len(resources) > 0 {
		rec.Resources = &audit.ResourceSnapshot{}
		if err := json.Unmarshal(resources, rec.Resources); err != nil {
			return nil, fmt.Errorf("decode audit resources: %w", err)
		}
	}
	audit.Normalize(&rec)
	return &rec, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
