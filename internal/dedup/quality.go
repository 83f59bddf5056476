package dedup

import "github.com/ratevault/pipeline/internal/model"

// completenessFields is the closed set of 8 fields whose non-empty count
// forms the completeness component of the quality score. These are the
// optional/nullable product fields whose presence genuinely varies
// between scraper feeds.
func completenessFields(p model.EnrichedProduct) int {
	raw := p.Parsed.Raw

	present := 0
	if raw.BankName != "" {
		present++
	}

	if raw.GrossRate != nil {
		present++
	}

	if raw.TermMonths != nil {
		present++
	}

	if raw.NoticePeriodDays != nil {
		present++
	}

	if raw.MinDeposit != nil {
		present++
	}

	if raw.MaxDeposit != nil {
		present++
	}

	if p.FRN != "" {
		present++
	}

	if raw.FSCSProtected {
		present++
	}

	return present
}

// QualityScore computes the configurable-weight quality score used to pick
// a winner among rate-tolerance bucketed competitors:
//
//	rateScoreWeight * rateScore + platformScoreWeight * platformReliabilityScore
//	  + completenessScoreWeight * completeness + reliabilityScoreWeight * reliability
//	  + (frn present ? frnQualityBonus : 0)
//
// capped at cfg.QualityScoreMax.
func QualityScore(p model.EnrichedProduct, cfg Config) float64 {
	raw := p.Parsed.Raw

	rateScore := raw.AERRate / cfg.MaxRateForScoring
	if rateScore > cfg.QualityScoreMax {
		rateScore = cfg.QualityScoreMax
	}

	platformScore, ok := cfg.PlatformReliability[p.Parsed.NormalizedPlatform]
	if !ok {
		platformScore = cfg.DefaultPlatformReliability
	}

	completeness := float64(completenessFields(p)) / 8

	reliability := p.Parsed.SourceReliability
	if p.FRN != "" && p.FRNConfidence > 0 {
		reliability = p.FRNConfidence
	}

	score := cfg.RateScoreWeight*rateScore +
		cfg.PlatformScoreWeight*platformScore +
		cfg.CompletenessScoreWeight*completeness +
		cfg.ReliabilityScoreWeight*reliability

	if p.FRN != "" {
		score += cfg.FRNQualityBonus
	}

	if score > cfg.QualityScoreMax {
		score = cfg.QualityScoreMax
	}

	return score
}
