package quality

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Execer is satisfied structurally by both *sql.DB and *sql.Tx (and by
// internal/storage's own execer), so a Report can be persisted either
// standalone or as part of an enclosing pipeline transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReportStore persists data_quality_reports. A storage failure here must
// never abort the pipeline run — callers are expected to log
// the error and continue, not propagate it upward as a fatal condition.
type ReportStore struct{}

// NewReportStore constructs a ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// Save inserts one Report. Anomalies and the selection-reason histogram
// are stored as JSON blobs since their shape varies batch to batch.
func (s *ReportStore) Save(ctx context.Context, x Execer, r Report) error {
	anomaliesJSON, err := json.Marshal(r.Anomalies)
	if err != nil {
		return fmt.Errorf("quality: marshal anomalies: %w", err)
	}

	histogramJSON, err := json.Marshal(r.DedupEffectiveness.SelectionReasonHistogram)
	if err != nil {
		return fmt.Errorf("quality: marshal selection reason histogram: %w", err)
	}

	var priorScore sql.NullFloat64
	if r.Comparison.PriorScore != nil {
		priorScore = sql.NullFloat64{Float64: *r.Comparison.PriorScore, Valid: true}
	}

	_, err = x.ExecContext(ctx,
		`INSERT INTO data_quality_reports (
			batch_id, generated_at,
			total_ingested, total_passed, total_rejected, total_deduplicated,
			attrition_rate, throughput_per_sec,
			integrity_score,
			cross_platform_group_ratio, preferred_platform_retention_rate, selection_reason_histogram,
			anomalies,
			overall_score,
			prior_score, score_delta, trend
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BatchID, r.GeneratedAt,
		r.Flow.TotalIngested, r.Flow.TotalPassed, r.Flow.TotalRejected, r.Flow.TotalDeduplicated,
		r.Flow.AttritionRate, r.Flow.ThroughputPerSec,
		r.IntegrityScore,
		r.DedupEffectiveness.CrossPlatformGroupRatio, r.DedupEffectiveness.PreferredPlatformRetentionRate, string(histogramJSON),
		string(anomaliesJSON),
		r.OverallScore,
		priorScore, r.Comparison.Delta, string(r.Comparison.Trend),
	)
	if err != nil {
		return fmt.Errorf("quality: insert report for batch %q: %w", r.BatchID, err)
	}

	return nil
}

// LatestScore returns the overall_score of the most recently generated
// report, used to seed the rolling comparison for the next batch. Returns
// (nil, nil) when no prior report exists.
func (s *ReportStore) LatestScore(ctx context.Context, x Execer) (*float64, error) {
	var score float64

	err := x.QueryRowContext(ctx,
		`SELECT overall_score FROM data_quality_reports ORDER BY generated_at DESC LIMIT 1`,
	).Scan(&score)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quality: query latest report score: %w", err)
	}

	return &score, nil
}
