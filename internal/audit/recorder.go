package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

// DetailLevel controls how much per-item audit detail is buffered and
// flushed. A verbose run over a large batch produces a lot of JSON; most
// deployments run at "standard" and reserve "verbose" for investigating a
// specific batch.
type DetailLevel string

const (
	DetailMinimal  DetailLevel = "minimal"
	DetailStandard DetailLevel = "standard"
	DetailVerbose  DetailLevel = "verbose"
)

// Item is one per-product or per-group audit entry, buffered in memory
// until Flush.
type Item struct {
	Stage     model.Stage
	ItemRef   string
	Details   map[string]any
	Severity  string
	CreatedAt time.Time
}

// Recorder owns the in-memory audit buffer for one batch and flushes it
// to pipeline_audit_items at run end.
type Recorder struct {
	db      *sql.DB
	detail  DetailLevel
	batchID string

	mu    sync.Mutex
	items []Item

	stageCounts map[model.Stage]int
}

// NewRecorder constructs a Recorder for batchID at the given detail level.
func NewRecorder(db *sql.DB, batchID string, detail DetailLevel) *Recorder {
	return &Recorder{
		db:          db,
		detail:      detail,
		batchID:     batchID,
		stageCounts: make(map[model.Stage]int),
	}
}

// CreateBatch inserts the pipeline_batch row eagerly, before any stage
// runs, so a crash before stage 1 still leaves a "running" row an operator
// can find.
func (r *Recorder) CreateBatch(ctx context.Context, pipelineID string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pipeline_batch (batch_id, pipeline_id, status, started_at)
		 VALUES (?, ?, ?, ?)`, r.batchID, pipelineID, string(model.BatchRunning), startedAt)
	if err != nil {
		return fmt.Errorf("audit: create batch %q: %w", r.batchID, err)
	}

	return nil
}

// InitializeAllStages pre-creates a zero-count pipeline_audit row for every
// declared stage so a stage the run never reaches (e.g. data quality when
// --stop-after dedup) is still visible as "not run" rather than silently
// absent.
func (r *Recorder) InitializeAllStages(ctx context.Context, stages []model.Stage) error {
	for _, stage := range stages {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO pipeline_audit (batch_id, stage, status, item_count)
			 VALUES (?, ?, 'pending', 0)`, r.batchID, string(stage))
		if err != nil {
			return fmt.Errorf("audit: initialize stage %q: %w", stage, err)
		}
	}

	return nil
}

// Record buffers one per-item audit entry. At DetailMinimal only the
// stage counter is incremented and the item is dropped; at Standard and
// Verbose the item itself is retained for Flush.
func (r *Recorder) Record(stage model.Stage, itemRef string, details map[string]any, severity string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stageCounts[stage]++

	if r.detail == DetailMinimal {
		return
	}

	r.items = append(r.items, Item{Stage: stage, ItemRef: itemRef, Details: details, Severity: severity, CreatedAt: at})
}

// RecordError buffers an error-severity audit entry and always retains the
// item regardless of detail level — corruption and rejection reasons are
// never dropped, even at DetailMinimal.
func (r *Recorder) RecordError(stage model.Stage, itemRef string, details map[string]any, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stageCounts[stage]++
	r.items = append(r.items, Item{Stage: stage, ItemRef: itemRef, Details: details, Severity: "error", CreatedAt: at})
}

// Flush writes every buffered item plus the per-stage summary rows to the
// database in one transaction. A storage failure here is returned to the
// caller, who decides whether it's fatal for the stage in question: the
// data-quality report store explicitly tolerates flush failure, while
// ingestion and FRN matching audit do not.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	items := r.items
	counts := r.stageCounts
	r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin flush: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, item := range items {
		detailsJSON, err := json.Marshal(item.Details)
		if err != nil {
			return fmt.Errorf("audit: marshal details for %q: %w", item.ItemRef, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO pipeline_audit_items (batch_id, stage, item_ref, details_json, severity, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`, r.batchID, string(item.Stage), item.ItemRef, string(detailsJSON), item.Severity, item.CreatedAt)
		if err != nil {
			return fmt.Errorf("audit: insert item %q: %w", item.ItemRef, err)
		}
	}

	for stage, count := range counts {
		_, err := tx.ExecContext(ctx,
			`UPDATE pipeline_audit SET status = 'completed', item_count = ? WHERE batch_id = ? AND stage = ?`,
			count, r.batchID, string(stage))
		if err != nil {
			return fmt.Errorf("audit: update stage summary %q: %w", stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: commit flush: %w", err)
	}

	return nil
}

// CompleteBatch marks pipeline_batch terminal (completed or failed).
func (r *Recorder) CompleteBatch(ctx context.Context, status model.BatchStatus, errMsg string, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pipeline_batch SET status = ?, completed_at = ?, error_message = ? WHERE batch_id = ?`,
		string(status), completedAt, nullableErrMsg(errMsg), r.batchID)
	if err != nil {
		return fmt.Errorf("audit: complete batch %q: %w", r.batchID, err)
	}

	return nil
}

func nullableErrMsg(s string) any {
	if s == "" {
		return nil
	}

	return s
}
