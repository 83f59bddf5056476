package quality

import (
	"github.com/ratevault/pipeline/internal/model"
)

// computeFlowStats summarizes attrition and throughput for one batch.
func computeFlowStats(totalIngested, totalRejected, totalDeduplicated int, final []model.FinalProduct, processingSeconds float64) FlowStats {
	stats := FlowStats{
		TotalIngested:     totalIngested,
		TotalPassed:       totalIngested - totalRejected,
		TotalRejected:     totalRejected,
		TotalDeduplicated: totalDeduplicated,
	}

	if totalIngested > 0 {
		stats.AttritionRate = float64(totalIngested-len(final)) / float64(totalIngested)
	}

	if processingSeconds > 0 {
		stats.ThroughputPerSec = float64(totalIngested) / processingSeconds
	}

	return stats
}

// computeDedupEffectiveness derives cross-platform group ratio,
// preferred-platform retention, and the selection-reason histogram from
// the final winning products.
func computeDedupEffectiveness(final []model.FinalProduct, preferredPlatforms map[string]bool) DedupEffectiveness {
	eff := DedupEffectiveness{SelectionReasonHistogram: map[string]int{}}

	if len(final) == 0 {
		return eff
	}

	var crossPlatformGroups int
	var preferredEligible, preferredRetained int

	for _, p := range final {
		eff.SelectionReasonHistogram[string(p.SelectionReason)]++

		if p.DuplicateCount > 1 {
			crossPlatformGroups++
		}

		platform := p.Enriched.Parsed.NormalizedPlatform
		if preferredPlatforms[platform] {
			preferredEligible++
			if p.SelectionReason == model.ReasonPreferredPlatformRetained {
				preferredRetained++
			}
		}
	}

	eff.CrossPlatformGroupRatio = float64(crossPlatformGroups) / float64(len(final))

	if preferredEligible > 0 {
		eff.PreferredPlatformRetentionRate = float64(preferredRetained) / float64(preferredEligible)
	}

	return eff
}
