package quality

import (
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

// Stage is the C7 data quality analyzer entry point: one call per batch,
// run after deduplication (and, when enabled, after FRN matching
// finishes producing its final match rate).
type Stage struct {
	cfg                Config
	preferredPlatforms map[string]bool
	store              *ReportStore
}

// NewStage constructs a Stage. preferredPlatforms should match the set
// configured for internal/dedup so retention-rate accounting lines up
// with what the dedup stage actually preferred.
func NewStage(cfg Config, preferredPlatforms map[string]bool, store *ReportStore) *Stage {
	return &Stage{cfg: cfg, preferredPlatforms: preferredPlatforms, store: store}
}

// Analyze computes the full Report for one batch. priorScore is the
// prior batch's OverallScore (nil if none exists yet, e.g. from
// ReportStore.LatestScore). It only computes and returns the Report and
// does not persist it; the caller saves it with ReportStore.Save and logs
// a save failure rather than treating it as a pipeline failure.
func (s *Stage) Analyze(
	batchID string,
	now time.Time,
	totalIngested, totalRejected, totalDeduplicated int,
	enriched []model.EnrichedProduct,
	final []model.FinalProduct,
	processingDuration time.Duration,
	priorScore *float64,
) Report {
	processingSeconds := processingDuration.Seconds()

	components := computeIntegrityComponents(totalIngested, totalRejected, enriched)
	integrityScore := IntegrityScore(components, s.cfg.Weights)

	// No separate combination formula is specified beyond the integrity
	// score's own weights, so the overall score is the integrity score;
	// flow and dedup-effectiveness stats are reported alongside it
	// rather than folded into a second weighting scheme.
	overallScore := integrityScore

	report := Report{
		BatchID:            batchID,
		GeneratedAt:        now,
		Flow:               computeFlowStats(totalIngested, totalRejected, totalDeduplicated, final, processingSeconds),
		IntegrityScore:      integrityScore,
		DedupEffectiveness: computeDedupEffectiveness(final, s.preferredPlatforms),
		OverallScore:       overallScore,
		Comparison:         compareToPrior(overallScore, priorScore, s.cfg.ComparisonTolerance),
	}

	report.Anomalies = detectAnomalies(final, components.frnMatchRate, processingSeconds, s.cfg)

	return report
}
