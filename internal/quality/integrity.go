package quality

import "github.com/ratevault/pipeline/internal/model"

// integrityComponents holds the four [0,1] sub-scores that, weighted,
// make up the integrity score.
type integrityComponents struct {
	missingFields     float64 // 1 - average missing-field rate (folds in "completeness")
	invalidRanges     float64 // 1 - validation-rejection rate
	frnMatchRate      float64
	sourceConsistency float64
}

// computeIntegrityComponents derives the four components from one batch's
// ingestion and FRN-matching outcome.
func computeIntegrityComponents(totalIngested, totalRejected int, enriched []model.EnrichedProduct) integrityComponents {
	var c integrityComponents

	if totalIngested > 0 {
		c.invalidRanges = 1 - float64(totalRejected)/float64(totalIngested)
	} else {
		c.invalidRanges = 1
	}

	if len(enriched) == 0 {
		return c
	}

	var (
		completenessSum float64
		matched         int
		consistent      int
	)

	for _, p := range enriched {
		completenessSum += completeness(p)

		if p.FRNStatus == model.FRNMatched {
			matched++
		}

		if p.Parsed.NormalizedPlatform != "" {
			consistent++
		}
	}

	c.missingFields = completenessSum / float64(len(enriched))
	c.frnMatchRate = float64(matched) / float64(len(enriched))
	c.sourceConsistency = float64(consistent) / float64(len(enriched))

	return c
}

// completeness mirrors internal/dedup's 8-field completeness measure,
// duplicated here in miniature rather than imported so the quality
// package doesn't take on a dependency for one small ratio — the two
// packages' notions of "configured 8 fields" are allowed to diverge if
// either's set changes independently.
func completeness(p model.EnrichedProduct) float64 {
	raw := p.Parsed.Raw

	fields := []bool{
		raw.BankName != "",
		raw.GrossRate != nil,
		raw.TermMonths != nil,
		raw.NoticePeriodDays != nil,
		raw.MinDeposit != nil,
		raw.MaxDeposit != nil,
		p.FRN != "",
		raw.FSCSProtected,
	}

	present := 0

	for _, f := range fields {
		if f {
			present++
		}
	}

	return float64(present) / float64(len(fields))
}

// IntegrityScore combines the four weighted components into a [0,100]
// score.
func IntegrityScore(c integrityComponents, w IntegrityWeights) float64 {
	score := w.MissingFields*c.missingFields +
		w.InvalidRanges*c.invalidRanges +
		w.FRNMatchRate*c.frnMatchRate +
		w.SourceConsistency*c.sourceConsistency

	return score * 100
}
