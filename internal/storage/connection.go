package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// Open opens the single SQLite database file described by cfg, applying
// its pragmas via the DSN (WAL mode, busy timeout, foreign keys). SQLite
// allows only one writer at a time regardless of connection count, so the
// pool is deliberately left at the driver's default rather than tuned like
// a server database's connection pool.
func Open(cfg *Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", cfg.Path(), err)
	}

	// A single physical file with WAL mode supports one writer and many
	// readers; unbounded *database/sql* connections would just queue
	// behind SQLite's own single-writer lock, so one is enough and avoids
	// "database is locked" churn under concurrent goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping %q: %w", cfg.Path(), err)
	}

	return db, nil
}

// Checkpoint runs a WAL checkpoint, folding the write-ahead log back into
// the main database file. Called at the end of a pipeline run
// so the database file on disk reflects the latest committed state even if
// the process exits before SQLite's automatic checkpoint threshold.
func Checkpoint(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("storage: wal checkpoint: %w", err)
	}

	return nil
}

// BeginImmediate starts a transaction that acquires SQLite's write lock
// immediately rather than on first write, relying on the connection's
// _txlock=immediate DSN parameter (set by Config.DSN). Named distinctly
// from db.BeginTx so every write-path call site documents, at the call
// site, that it depends on that DSN behavior.
func BeginImmediate(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin immediate transaction: %w", err)
	}

	return tx, nil
}
