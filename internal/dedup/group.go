package dedup

import (
	"sort"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/model"
)

// Violation records an FSCS bank-separation violation detected while
// grouping: the same business key held more than one distinct normalized
// bank name. Always a warning, never fatal.
type Violation struct {
	BusinessKey        string
	NormalizedBankName string
	ProductCount       int
}

// GroupResult is the outcome of deduplicating one business-key group.
type GroupResult struct {
	BusinessKey string
	Winners     []model.FinalProduct
	Violations  []Violation
}

// Deduplicate runs the full deduplication algorithm over one business-key
// group: FSCS compliance split, direct-vs-aggregator separation,
// preferred-platform retention, rate-tolerance bucketing, and
// quality-score selection.
func Deduplicate(businessKey string, products []model.EnrichedProduct, cfg Config, bankCfg canonicalization.BankNameConfig) GroupResult {
	result := GroupResult{BusinessKey: businessKey}

	if len(products) == 1 {
		result.Winners = append(result.Winners, toFinal(products[0], businessKey, cfg, model.ReasonSingleProduct, nil))
		return result
	}

	byBank := splitByNormalizedBankName(products, bankCfg)

	fscsViolation := len(byBank) > 1

	for bankName, bankGroup := range byBank {
		if fscsViolation {
			result.Violations = append(result.Violations, Violation{
				BusinessKey:        businessKey,
				NormalizedBankName: bankName,
				ProductCount:       len(bankGroup),
			})
		}

		directGroup, aggregatorGroup := splitByPlatformCategory(bankGroup, cfg)

		crossPlatformSplit := len(directGroup) > 0 && len(aggregatorGroup) > 0

		for _, subgroup := range [][]model.EnrichedProduct{directGroup, aggregatorGroup} {
			if len(subgroup) == 0 {
				continue
			}

			defaultReason := model.ReasonNoDuplicatesFound
			if fscsViolation {
				defaultReason = model.ReasonFSCSBankSeparation
			} else if crossPlatformSplit {
				defaultReason = model.ReasonCrossPlatformSelection
			}

			result.Winners = append(result.Winners, selectWinner(subgroup, businessKey, cfg, defaultReason)...)
		}
	}

	return result
}

func splitByNormalizedBankName(products []model.EnrichedProduct, bankCfg canonicalization.BankNameConfig) map[string][]model.EnrichedProduct {
	out := make(map[string][]model.EnrichedProduct)

	for _, p := range products {
		name := canonicalization.NormalizeBankName(p.Parsed.Raw.BankName, bankCfg)
		out[name] = append(out[name], p)
	}

	return out
}

func splitByPlatformCategory(products []model.EnrichedProduct, cfg Config) (direct, aggregator []model.EnrichedProduct) {
	for _, p := range products {
		if cfg.DirectPlatforms[p.Parsed.NormalizedPlatform] || p.Parsed.PlatformCategory == model.PlatformDirect {
			direct = append(direct, p)
			continue
		}

		aggregator = append(aggregator, p)
	}

	return direct, aggregator
}

// selectWinner runs preferred-platform retention, rate-tolerance
// bucketing, and quality-score selection over one bank+platform-category
// subgroup. Returns exactly one winner (as a
// single-element slice, to keep the caller's append loop uniform) unless
// len(products) == 1, when no competition occurred at all.
func selectWinner(products []model.EnrichedProduct, businessKey string, cfg Config, defaultReason model.SelectionReason) []model.FinalProduct {
	if len(products) == 1 {
		return []model.FinalProduct{toFinal(products[0], businessKey, cfg, defaultReason, nil)}
	}

	competingIDs := competingIDsOf(products)

	if winner, ok := selectPreferred(products, cfg); ok {
		return []model.FinalProduct{toFinal(winner, businessKey, cfg, model.ReasonPreferredPlatformRetained, competingIDs)}
	}

	buckets := bucketByRateTolerance(products, cfg.rateToleranceDecimal())

	topBucket := buckets[0]

	reason := model.ReasonQualityScoreSelection
	if len(buckets) > 1 {
		reason = model.ReasonRateToleranceDeduplication
	}

	winner := pickByQualityScore(topBucket, cfg)

	return []model.FinalProduct{toFinal(winner, businessKey, cfg, reason, competingIDs)}
}

// selectPreferred retains a preferred product unless some non-preferred
// product beats it by more than its
// configured tolerance. Among multiple eligible preferred products, the
// one with the highest configured priority wins.
func selectPreferred(products []model.EnrichedProduct, cfg Config) (model.EnrichedProduct, bool) {
	var (
		best      model.EnrichedProduct
		bestFound bool
		bestPrio  = -1
	)

	for _, p := range products {
		pref, ok := cfg.PreferredPlatforms[p.Parsed.NormalizedPlatform]
		if !ok {
			continue
		}

		beaten := false

		for _, other := range products {
			if other.Parsed.NormalizedPlatform == p.Parsed.NormalizedPlatform {
				continue
			}

			// AER rates are percentages, so one basis point is 0.01.
			if other.Parsed.Raw.AERRate > p.Parsed.Raw.AERRate+pref.ToleranceBp/100 {
				beaten = true
				break
			}
		}

		if beaten {
			continue
		}

		if pref.Priority > bestPrio {
			best = p
			bestPrio = pref.Priority
			bestFound = true
		}
	}

	return best, bestFound
}

// bucketByRateTolerance clusters products by AER rate, anchored on the
// highest rate first, and returns buckets ordered from
// highest-rate cluster to lowest. toleranceDecimal is applied relative to
// each bucket's anchor rate.
func bucketByRateTolerance(products []model.EnrichedProduct, toleranceDecimal float64) [][]model.EnrichedProduct {
	sorted := make([]model.EnrichedProduct, len(products))
	copy(sorted, products)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Parsed.Raw.AERRate > sorted[j].Parsed.Raw.AERRate })

	var buckets [][]model.EnrichedProduct

	for _, p := range sorted {
		placed := false

		for i := range buckets {
			anchor := buckets[i][0].Parsed.Raw.AERRate
			if anchor-p.Parsed.Raw.AERRate <= anchor*toleranceDecimal {
				buckets[i] = append(buckets[i], p)
				placed = true

				break
			}
		}

		if !placed {
			buckets = append(buckets, []model.EnrichedProduct{p})
		}
	}

	return buckets
}

// pickByQualityScore selects the highest QualityScore product in bucket,
// breaking ties by higher AER rate.
func pickByQualityScore(bucket []model.EnrichedProduct, cfg Config) model.EnrichedProduct {
	best := bucket[0]
	bestScore := QualityScore(best, cfg)

	for _, p := range bucket[1:] {
		score := QualityScore(p, cfg)

		switch {
		case score > bestScore:
			best, bestScore = p, score
		case score == bestScore && p.Parsed.Raw.AERRate > best.Parsed.Raw.AERRate:
			best = p
		}
	}

	return best
}

func competingIDsOf(products []model.EnrichedProduct) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.Parsed.Raw.ID)
	}

	return ids
}

func toFinal(p model.EnrichedProduct, businessKey string, cfg Config, reason model.SelectionReason, competingIDs []int64) model.FinalProduct {
	return model.FinalProduct{
		Enriched:            p,
		BusinessKey:         businessKey,
		QualityScore:        QualityScore(p, cfg),
		DuplicateCount:      len(competingIDs),
		SelectionReason:     reason,
		CompetingProductIDs: competingIDs,
		FSCSCompliant:       reason != model.ReasonFSCSBankSeparation,
		PlatformCategory:    p.Parsed.PlatformCategory,
	}
}
