package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bastion/internal/persistence"
	dErrors "bastion/pkg/domain-errors"
	txcontext "bastion/pkg/platform/tx"
)

// Schema holds the commit counters Marker reads. Every transaction
// RunInTx commits bumps the row for its shard key, so the marker moves with
// guarded writes and with nothing else in the database.
const Schema = `
CREATE TABLE IF NOT EXISTS guarded_commits (
	shard   TEXT PRIMARY KEY,
	commits BIGINT NOT NULL
)`

const defaultShard = "default"

// Transactor runs units of work in a *sql.Tx carried through ctx. Stores
// join it with txcontext.ExecerFrom.
type Transactor struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTransactor(db *sql.DB, timeout time.Duration) *Transactor {
	return &Transactor{db: db, timeout: timeout}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = persistence.DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	shard := persistence.ShardKey(ctx)
	if shard == "" {
		shard = defaultShard
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO guarded_commits (shard, commits) VALUES ($1, 1)
		ON CONFLICT (shard) DO UPDATE SET commits = guarded_commits.commits + 1`, shard); err != nil {
		return fmt.Errorf("count commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Marker summarizes the commit counters. Writes made outside RunInTx, such
// as audit records, leave it unchanged.
func (t *Transactor) Marker(ctx context.Context) (string, error) {
	var shards, commits int64
	err := t.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(sum(commits), 0)::bigint FROM guarded_commits`,
	).Scan(&shards, &commits)
	if err != nil {
		return "", fmt.Errorf("read commit counters: %w", err)
	}
	return fmt.Sprintf("shards=%d commits=%d", shards, commits), nil
}
