package frn

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/model"
)

// Config carries the resolution thresholds loaded from the "frn_matching"
// config category. None of these have baked-in defaults.
type Config struct {
	BankName canonicalization.BankNameConfig
	Variation canonicalization.VariationConfig

	// FuzzyThreshold is the minimum similarity (1 - distance/maxLen) to
	// accept a fuzzy match.
	FuzzyThreshold float64

	// MaxEditDistance bounds the absolute Levenshtein distance permitted,
	// independent of the similarity ratio.
	MaxEditDistance int

	// FuzzyMatchConfidence scales the similarity ratio into a confidence
	// score for fuzzy hits.
	FuzzyMatchConfidence float64

	// ConfidenceThresholdHigh/Low classify the winning match into
	// MATCHED / RESEARCH_QUEUE / NO_MATCH.
	ConfidenceThresholdHigh float64
	ConfidenceThresholdLow  float64

	// GenericTerms are search names too generic to be worth research
	// queueing on their own (e.g. "BANK", "SAVINGS").
	GenericTerms map[string]bool
}

// Result is the outcome of resolving one bank name against the cache.
type Result struct {
	NormalizedBankName string
	FRN                string
	Confidence         float64
	Status             model.FRNStatus
	Source             model.FRNSource
	MatchType          model.FRNMatchType
}

// Resolver applies the per-product resolution algorithm over a
// Cache: normalize, then try exact, fuzzy, and alias matching in order,
// classifying the winner by confidence.
type Resolver struct {
	cache *Cache
	cfg   Config
}

// NewResolver constructs a Resolver over cache using cfg's thresholds.
func NewResolver(cache *Cache, cfg Config) *Resolver {
	return &Resolver{cache: cache, cfg: cfg}
}

// Resolve runs the full exact -> fuzzy -> alias resolution chain against
// rawBankName and classifies the result.
func (r *Resolver) Resolve(rawBankName string) Result {
	normalized := canonicalization.NormalizeForFRNMatching(rawBankName, r.cfg.BankName, r.cfg.Variation)

	if entry, ok := r.exactMatch(normalized); ok {
		return r.classify(normalized, entry.FRN, entry.Confidence, model.FRNSourceExact, entry.MatchType)
	}

	if entry, confidence, ok := r.fuzzyMatch(normalized); ok {
		return r.classify(normalized, entry.FRN, confidence, model.FRNSourceFuzzy, entry.MatchType)
	}

	if entry, ok := r.aliasMatch(normalized); ok {
		return r.classify(normalized, entry.FRN, entry.Confidence, model.FRNSourceAlias, entry.MatchType)
	}

	return Result{
		NormalizedBankName: normalized,
		Status:             model.FRNNoMatch,
		Source:             model.FRNSourceNone,
	}
}

// exactMatch is case-insensitive equality against rank-1 cache entries.
func (r *Resolver) exactMatch(normalized string) (model.FRNLookupEntry, bool) {
	r.cache.mu.RLock()
	defer r.cache.mu.RUnlock()

	entry, ok := r.cache.bySearchName[searchKey(normalized)]

	return entry, ok
}

// fuzzyMatch computes Levenshtein distance between space-stripped
// normalized forms against every rank-1 entry, taking the highest
// similarity that clears both the threshold and the max-edit-distance
// bound. Early-exits on a near-perfect match.
func (r *Resolver) fuzzyMatch(normalized string) (model.FRNLookupEntry, float64, bool) {
	target := stripSpaces(normalized)

	r.cache.mu.RLock()
	defer r.cache.mu.RUnlock()

	var (
		best       model.FRNLookupEntry
		bestSim    float64
		foundMatch bool
	)

	for _, entry := range r.cache.bySearchName {
		candidate := stripSpaces(entry.SearchName)

		dist := levenshtein.ComputeDistance(target, candidate)
		if dist > r.cfg.MaxEditDistance {
			continue
		}

		maxLen := len(target)
		if len(candidate) > maxLen {
			maxLen = len(candidate)
		}

		if maxLen == 0 {
			continue
		}

		similarity := 1.0 - float64(dist)/float64(maxLen)
		if similarity < r.cfg.FuzzyThreshold {
			continue
		}

		if similarity > bestSim {
			best = entry
			bestSim = similarity
			foundMatch = true
		}

		if similarity >= 0.99 {
			break
		}
	}

	if !foundMatch {
		return model.FRNLookupEntry{}, 0, false
	}

	return best, bestSim * r.cfg.FuzzyMatchConfidence, true
}

// aliasMatch is a substring search over shared_brand / name_variation
// entries: the normalized name must contain, or be contained by, the
// entry's search name.
func (r *Resolver) aliasMatch(normalized string) (model.FRNLookupEntry, bool) {
	r.cache.mu.RLock()
	defer r.cache.mu.RUnlock()

	for _, entry := range r.cache.aliasEntries {
		search := searchKey(entry.SearchName)
		if search == "" {
			continue
		}

		if strings.Contains(normalized, search) || strings.Contains(search, normalized) {
			return entry, true
		}
	}

	return model.FRNLookupEntry{}, false
}

func (r *Resolver) classify(normalized, frnCode string, confidence float64, source model.FRNSource, matchType model.FRNMatchType) Result {
	status := model.FRNNoMatch

	switch {
	case confidence >= r.cfg.ConfidenceThresholdHigh:
		status = model.FRNMatched
	case confidence >= r.cfg.ConfidenceThresholdLow:
		status = model.FRNResearchQueue
	}

	return Result{
		NormalizedBankName: normalized,
		FRN:                frnCode,
		Confidence:         confidence,
		Status:             status,
		Source:             source,
		MatchType:          matchType,
	}
}

// ShouldQueue decides whether a non-MATCHED result should be written to the
// research queue: generic terms are never queued on their own, and queue
// capacity (enforced by the caller against a live count) gates everything
// else.
func (r *Resolver) ShouldQueue(res Result, alreadyQueued bool, queueAtCapacity bool) bool {
	if res.Status == model.FRNMatched {
		return false
	}

	if r.cfg.GenericTerms[searchKey(res.NormalizedBankName)] {
		return false
	}

	if alreadyQueued {
		return false
	}

	return !queueAtCapacity
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}
