package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

// staleLockAge is how long a held lock may sit unresolved before it's
// considered abandoned by a crashed process and eligible for reclamation.
const staleLockAge = 10 * time.Minute

// ErrLockHeld is returned by Acquire when another process holds a live
// (non-stale) lock for the same processType.
var ErrLockHeld = errors.New("processing lock already held")

// LockStore guards exclusive reprocessing invocations against
// concurrent triggers — a Kafka event and the cron failsafe firing at
// nearly the same moment must not both proceed.
type LockStore struct {
	db *sql.DB
}

// NewLockStore constructs a LockStore over db.
func NewLockStore(db *sql.DB) *LockStore {
	return &LockStore{db: db}
}

// Acquire attempts to take the named processing lock, reclaiming it first
// if the existing holder's StartedAt is older than staleLockAge. Returns
// ErrLockHeld if a live lock is held by someone else.
func (s *LockStore) Acquire(ctx context.Context, processType string, now time.Time, metadata string) error {
	return RunInTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var (
			status    string
			startedAt time.Time
		)

		err := tx.QueryRowContext(ctx,
			`SELECT status, started_at FROM processing_locks WHERE process_type = ?`, processType).
			Scan(&status, &startedAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			return s.insertLock(ctx, tx, processType, now, metadata)
		case err != nil:
			return fmt.Errorf("storage: query lock %q: %w", processType, err)
		}

		if status == string(model.LockHeld) && now.Sub(startedAt) < staleLockAge {
			return fmt.Errorf("%w: process type %q", ErrLockHeld, processType)
		}

		return s.updateLock(ctx, tx, processType, now, metadata)
	})
}

func (s *LockStore) insertLock(ctx context.Context, tx *sql.Tx, processType string, now time.Time, metadata string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO processing_locks (process_type, status, started_at, metadata)
		 VALUES (?, ?, ?, ?)`, processType, string(model.LockHeld), now, metadata)
	if err != nil {
		return fmt.Errorf("storage: insert lock %q: %w", processType, err)
	}

	return nil
}

func (s *LockStore) updateLock(ctx context.Context, tx *sql.Tx, processType string, now time.Time, metadata string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE processing_locks SET status = ?, started_at = ?, metadata = ? WHERE process_type = ?`,
		string(model.LockHeld), now, metadata, processType)
	if err != nil {
		return fmt.Errorf("storage: reclaim lock %q: %w", processType, err)
	}

	return nil
}

// Release marks the lock freed. Called whether the guarded operation
// succeeded or failed — status reflects which.
func (s *LockStore) Release(ctx context.Context, processType string, status model.LockStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE processing_locks SET status = ? WHERE process_type = ?`, string(status), processType)
	if err != nil {
		return fmt.Errorf("storage: release lock %q: %w", processType, err)
	}

	return nil
}
