// Package quality implements the data quality analyzer: pipeline
// flow stats, a weighted integrity score, deduplication effectiveness,
// anomaly detection, and a rolling comparison against the prior batch.
package quality

// IntegrityWeights are the configurable weights applied to the four
// integrity components, always sourced from config rather than baked in
// (the shipped seed sets 0.25 for each). Not normalized in code — a
// misconfigured deployment whose weights don't sum to 1.0 gets a score
// outside [0,100], which is a visible signal rather than a silently
// corrected one.
type IntegrityWeights struct {
	MissingFields      float64
	InvalidRanges      float64
	FRNMatchRate       float64
	SourceConsistency  float64
}

// Config carries every externally-configured parameter the analyzer
// needs.
type Config struct {
	Weights IntegrityWeights

	HighRateOutlierThreshold  float64 // fraction, e.g. 0.10 for "> 10%"
	LowFRNMatchRateThreshold  float64
	LongProcessingTimeSeconds float64

	ComparisonTolerance float64 // +/- tolerance for improving/degrading/stable, seeded as 1
}
