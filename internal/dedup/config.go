// Package dedup implements the deduplication stage: business-key
// generation, FSCS-compliant grouping, platform separation, preferred-
// platform/rate-tolerance selection, and quality scoring.
package dedup

// PreferredPlatform is one entry of the configured preferred-platform
// list: a platform retained unless a non-preferred competitor beats it by
// more than its tolerance.
type PreferredPlatform struct {
	Priority    int
	ToleranceBp float64 // basis points
}

// Config carries every externally-configured parameter the dedup stage
// needs. All values are loaded from unified_config — none are hardcoded.
type Config struct {
	DirectPlatforms    map[string]bool
	PreferredPlatforms map[string]PreferredPlatform
	RateToleranceBp    float64

	RateScoreWeight         float64
	PlatformScoreWeight     float64
	CompletenessScoreWeight float64
	ReliabilityScoreWeight  float64
	FRNQualityBonus         float64
	QualityScoreMax         float64
	MaxRateForScoring       float64

	PlatformReliability        map[string]float64
	DefaultPlatformReliability float64
}

// rateToleranceDecimal converts the configured basis-points tolerance to a
// decimal fraction, e.g. 10bp -> 0.001.
func (c Config) rateToleranceDecimal() float64 {
	return c.RateToleranceBp / 10000
}
