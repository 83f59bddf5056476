package quality

import "time"

// FlowStats describes attrition and throughput across the ingestion and
// dedup stages for one batch.
type FlowStats struct {
	TotalIngested    int
	TotalPassed      int
	TotalRejected    int
	TotalDeduplicated int
	AttritionRate    float64 // (ingested - final) / ingested
	ThroughputPerSec float64
}

// DedupEffectiveness summarizes how the deduplication stage behaved.
type DedupEffectiveness struct {
	CrossPlatformGroupRatio       float64
	PreferredPlatformRetentionRate float64
	SelectionReasonHistogram      map[string]int
}

// AnomalyKind enumerates the anomaly types the analyzer detects (spec
// §4.7).
type AnomalyKind string

const (
	AnomalyHighRateOutliers    AnomalyKind = "high_rate_outliers"
	AnomalyLowFRNMatchRate     AnomalyKind = "low_frn_match_rate"
	AnomalyLongProcessingTime  AnomalyKind = "long_processing_time"
)

// Anomaly is one detected condition worth surfacing to an operator.
type Anomaly struct {
	Kind    AnomalyKind
	Detail  string
	Measured float64
	Threshold float64
}

// Trend classifies the rolling comparison against the prior batch.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// Comparison is the rolling delta against the prior batch's overall
// score, with a configurable tolerance band for "stable" (±2 by
// default).
type Comparison struct {
	PriorScore   *float64
	Delta        float64
	Trend        Trend
}

// Report is the full C7 output for one batch, persisted to
// data_quality_reports.
type Report struct {
	BatchID    string
	GeneratedAt time.Time

	Flow                FlowStats
	IntegrityScore      float64
	DedupEffectiveness  DedupEffectiveness
	Anomalies           []Anomaly
	OverallScore        float64
	Comparison          Comparison
}
