package storage

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// openTestDB opens an in-memory SQLite database with just the tables the
// storage package's own tests touch. The full schema lives in the
// migrations/*.sql files the migrator applies; this is a minimal stand-in so package
// tests don't depend on the migration tool.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_txlock=immediate")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)

	t.Cleanup(func() { db.Close() })

	schema := []string{
		`CREATE TABLE processing_locks (
			process_type TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			metadata TEXT
		)`,
		`CREATE TABLE orchestrator_pipeline_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_running INTEGER NOT NULL DEFAULT 0,
			current_stage TEXT NOT NULL DEFAULT 'idle',
			batch_id TEXT,
			started_at TIMESTAMP
		)`,
		`CREATE TABLE pipeline_batch (
			batch_id TEXT PRIMARY KEY,
			pipeline_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			error_message TEXT
		)`,
		`CREATE TABLE pipeline_audit (
			batch_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (batch_id, stage)
		)`,
		`CREATE TABLE pipeline_audit_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			item_ref TEXT NOT NULL,
			details_json TEXT NOT NULL,
			severity TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}

	return db
}
