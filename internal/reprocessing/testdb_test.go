package reprocessing

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// openTestDB opens an in-memory SQLite database with the tables the
// reprocessing package's own tests touch: the raw/canonical/historical
// product tables the fallback copy-through path reads and writes, and the
// processing_locks table the controller's lock guard uses. The full schema
// lives in the migrations/*.sql files the migrator applies; this is a minimal stand-in
// so package tests don't depend on the migration tool, matching the
// pattern internal/storage and internal/orchestrator already establish.
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
		`CREATE TABLE available_products_raw (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL, source TEXT NOT NULL, method TEXT NOT NULL,
			bank_name TEXT NOT NULL, account_type TEXT NOT NULL, aer_rate REAL NOT NULL,
			gross_rate REAL, term_months INTEGER, notice_period_days INTEGER,
			min_deposit REAL, max_deposit REAL, fscs_protected INTEGER NOT NULL DEFAULT 0,
			scrape_date TIMESTAMP NOT NULL, frn TEXT, frn_confidence REAL,
			business_key TEXT, processed_at TIMESTAMP
		)`,
		`CREATE TABLE available_products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL, platform_category TEXT NOT NULL, source TEXT NOT NULL,
			bank_name TEXT NOT NULL, normalized_bank_name TEXT NOT NULL, account_type TEXT NOT NULL,
			aer_rate REAL NOT NULL, gross_rate REAL, term_months INTEGER, notice_period_days INTEGER,
			min_deposit REAL, max_deposit REAL, fscs_protected INTEGER NOT NULL DEFAULT 0,
			fscs_compliant INTEGER NOT NULL DEFAULT 1, scrape_date TIMESTAMP NOT NULL,
			frn TEXT, frn_confidence REAL, frn_status TEXT,
			business_key TEXT NOT NULL, quality_score REAL, duplicate_count INTEGER, selection_reason TEXT
		)`,
		`CREATE TABLE historical_products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL, platform_category TEXT NOT NULL, source TEXT NOT NULL,
			bank_name TEXT NOT NULL, normalized_bank_name TEXT NOT NULL, account_type TEXT NOT NULL,
			aer_rate REAL NOT NULL, gross_rate REAL, term_months INTEGER, notice_period_days INTEGER,
			min_deposit REAL, max_deposit REAL, fscs_protected INTEGER NOT NULL DEFAULT 0,
			fscs_compliant INTEGER NOT NULL DEFAULT 1, scrape_date TIMESTAMP NOT NULL,
			frn TEXT, frn_confidence REAL, frn_status TEXT,
			business_key TEXT NOT NULL, quality_score REAL, duplicate_count INTEGER, selection_reason TEXT,
			archived_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}

	return db
}

func testConfig() Config {
	return Config{
		ProcessingTimeout:         time.Second,
		LockStaleAfter:            10 * time.Minute,
		CircuitBreakerThreshold:   3,
		CircuitBreakerResetAfter:  50 * time.Millisecond,
		CircuitBreakerHalfOpenMax: 1,
		RetryMaxAttempts:          1,
		RetryInitialDelay:         time.Millisecond,
		RetryMaxDelay:             5 * time.Millisecond,
		RetryMultiplier:           2,
		FailsafeInterval:          time.Hour,
		KafkaEnabled:              false,
	}
}
