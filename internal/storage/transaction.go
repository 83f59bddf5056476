package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// RunInTransaction runs fn inside a BEGIN IMMEDIATE transaction, committing
// on a nil return and rolling back on any error or panic. Used by the
// orchestrator's atomic commit mode to wrap ingestion + FRN matching +
// deduplication in a single all-or-nothing unit.
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := BeginImmediate(ctx, db)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("run in transaction: %w (rollback also failed: %v)", err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("run in transaction: commit: %w", err)
	}

	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting store methods
// accept either a bare handle (incremental mode) or an in-flight
// transaction (atomic mode) without duplicating each method.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
