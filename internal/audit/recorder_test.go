package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ratevault/pipeline/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_txlock=immediate")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)

	t.Cleanup(func() { db.Close() })

	schema := []string{
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

func TestRecorder_FullLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r := NewRecorder(db, "batch-1", DetailStandard)

	if err := r.CreateBatch(ctx, "default", now); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	stages := []model.Stage{model.StageJSONIngestion, model.StageFRNMatching, model.StageDeduplication, model.StageDataQuality}
	if err := r.InitializeAllStages(ctx, stages); err != nil {
		t.Fatalf("InitializeAllStages() error = %v", err)
	}

	r.Record(model.StageJSONIngestion, "hsbc|easy_access|2026-01-01", map[string]any{"aer_rate": 4.5}, "info", now)
	r.RecordError(model.StageJSONIngestion, "broken-record", map[string]any{"reason": "missing aer_rate"}, now)

	if err := r.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var itemCount int
	if err := db.QueryRowContext(ctx, `SELECT item_count FROM pipeline_audit WHERE batch_id = ? AND stage = ?`,
		"batch-1", string(model.StageJSONIngestion)).Scan(&itemCount); err != nil {
		t.Fatalf("query item_count: %v", err)
	}

	if itemCount != 2 {
		t.Errorf("item_count = %d, want 2", itemCount)
	}

	var rowCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_audit_items WHERE batch_id = ?`, "batch-1").
		Scan(&rowCount); err != nil {
		t.Fatalf("query pipeline_audit_items count: %v", err)
	}

	if rowCount != 2 {
		t.Errorf("pipeline_audit_items rows = %d, want 2", rowCount)
	}

	if err := r.CompleteBatch(ctx, model.BatchCompleted, "", now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteBatch() error = %v", err)
	}

	var status string
	if err := db.QueryRowContext(ctx, `SELECT status FROM pipeline_batch WHERE batch_id = ?`, "batch-1").
		Scan(&status); err != nil {
		t.Fatalf("query batch status: %v", err)
	}

	if status != string(model.BatchCompleted) {
		t.Errorf("batch status = %q, want %q", status, model.BatchCompleted)
	}
}

func TestRecorder_MinimalDetailDropsItems(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r := NewRecorder(db, "batch-2", DetailMinimal)

	if err := r.CreateBatch(ctx, "default", now); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	if err := r.InitializeAllStages(ctx, []model.Stage{model.StageJSONIngestion}); err != nil {
		t.Fatalf("InitializeAllStages() error = %v", err)
	}

	r.Record(model.StageJSONIngestion, "item-1", map[string]any{"aer_rate": 4.5}, "info", now)
	r.Record(model.StageJSONIngestion, "item-2", map[string]any{"aer_rate": 5.0}, "info", now)

	if err := r.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var itemCount int
	if err := db.QueryRowContext(ctx, `SELECT item_count FROM pipeline_audit WHERE batch_id = ? AND stage = ?`,
		"batch-2", string(model.StageJSONIngestion)).Scan(&itemCount); err != nil {
		t.Fatalf("query item_count: %v", err)
	}

	if itemCount != 2 {
		t.Errorf("item_count = %d, want 2 even at minimal detail", itemCount)
	}

	var rowCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_audit_items WHERE batch_id = ?`, "batch-2").
		Scan(&rowCount); err != nil {
		t.Fatalf("query pipeline_audit_items count: %v", err)
	}

	if rowCount != 0 {
		t.Errorf("pipeline_audit_items rows = %d, want 0 at minimal detail", rowCount)
	}
}

func TestRecorder_RecordErrorAlwaysRetainedAtMinimal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r := NewRecorder(db, "batch-3", DetailMinimal)

	if err := r.CreateBatch(ctx, "default", now); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	if err := r.InitializeAllStages(ctx, []model.Stage{model.StageJSONIngestion}); err != nil {
		t.Fatalf("InitializeAllStages() error = %v", err)
	}

	r.RecordError(model.StageJSONIngestion, "corrupt-item", map[string]any{"reason": "negative aer_rate"}, now)

	if err := r.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var rowCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_audit_items WHERE batch_id = ? AND severity = 'error'`,
		"batch-3").Scan(&rowCount); err != nil {
		t.Fatalf("query error rows: %v", err)
	}

	if rowCount != 1 {
		t.Errorf("error rows = %d, want 1 — errors must survive minimal detail", rowCount)
	}
}
