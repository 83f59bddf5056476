package orchestrator

import (
	"context"
	"fmt"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/config"
	"github.com/ratevault/pipeline/internal/dedup"
	"github.com/ratevault/pipeline/internal/frn"
	"github.com/ratevault/pipeline/internal/ingestion"
	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/quality"
)

// Config categories, each scoped to the stage(s) that read it. Every
// engine run loads all five before touching a single product.
const (
	categoryIngestion     = "ingestion"
	categoryFRNMatching   = "frn_matching"
	categoryDeduplication = "deduplication"
	categoryDataQuality   = "data_quality"
	categoryCanonical     = "canonicalization"
)

// Bundle holds every typed Config the engine's stages need, assembled
// once at startup from unified_config with no defaults baked into code.
type Bundle struct {
	BankCfg     canonicalization.BankNameConfig
	PlatformCfg canonicalization.PlatformConfig
	VariationCfg canonicalization.VariationConfig

	Ranges            ingestion.RangeConfig
	RateThresholds    ingestion.RateThresholds
	RateFilterEnabled bool
	IngestionMetadata ingestion.Metadata
	CorruptionThreshold float64

	FRN frn.Config

	Dedup dedup.Config

	Quality quality.Config
}

// LoadBundle reads every category this run needs and fails loud
// (ErrConfigLoadFailed) if any required key is missing — there is no
// silent fallback anywhere in this path.
func LoadBundle(ctx context.Context, loader *config.Loader) (Bundle, error) {
	var b Bundle

	canon, err := loader.Load(ctx, categoryCanonical, []string{
		"corporate_suffixes", "variation_prefixes", "variation_suffixes", "variation_abbreviations",
		"self_reporting_aggregators", "direct_platforms",
	})
	if err != nil {
		return Bundle{}, err
	}

	if err := jsonInto(canon, "corporate_suffixes", &b.BankCfg.CorporateSuffixes); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(canon, "variation_prefixes", &b.VariationCfg.Prefixes); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(canon, "variation_suffixes", &b.VariationCfg.Suffixes); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(canon, "variation_abbreviations", &b.VariationCfg.Abbreviations); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(canon, "self_reporting_aggregators", &b.PlatformCfg.SelfReportingAggregators); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(canon, "direct_platforms", &b.PlatformCfg.DirectPlatforms); err != nil {
		return Bundle{}, err
	}

	ing, err := loader.Load(ctx, categoryIngestion, []string{
		"aer_rate_min", "aer_rate_max", "term_months_min", "term_months_max",
		"notice_period_min", "notice_period_max", "rate_filter_enabled",
		"rate_thresholds", "platform_priority", "source_reliability", "corruption_threshold",
	})
	if err != nil {
		return Bundle{}, err
	}

	if err := floatInto(ing, "aer_rate_min", &b.Ranges.AERRateMin); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(ing, "aer_rate_max", &b.Ranges.AERRateMax); err != nil {
		return Bundle{}, err
	}
	if err := intInto(ing, "term_months_min", &b.Ranges.TermMonthsMin); err != nil {
		return Bundle{}, err
	}
	if err := intInto(ing, "term_months_max", &b.Ranges.TermMonthsMax); err != nil {
		return Bundle{}, err
	}
	if err := intInto(ing, "notice_period_min", &b.Ranges.NoticePeriodMin); err != nil {
		return Bundle{}, err
	}
	if err := intInto(ing, "notice_period_max", &b.Ranges.NoticePeriodMax); err != nil {
		return Bundle{}, err
	}
	if err := boolInto(ing, "rate_filter_enabled", &b.RateFilterEnabled); err != nil {
		return Bundle{}, err
	}

	var rawThresholds map[string]float64
	if err := jsonInto(ing, "rate_thresholds", &rawThresholds); err != nil {
		return Bundle{}, err
	}
	b.RateThresholds = make(ingestion.RateThresholds, len(rawThresholds))
	for k, v := range rawThresholds {
		b.RateThresholds[model.AccountType(k)] = v
	}

	if err := jsonInto(ing, "platform_priority", &b.IngestionMetadata.PlatformPriority); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(ing, "source_reliability", &b.IngestionMetadata.SourceReliability); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(ing, "corruption_threshold", &b.CorruptionThreshold); err != nil {
		return Bundle{}, err
	}

	frnCat, err := loader.Load(ctx, categoryFRNMatching, []string{
		"fuzzy_threshold", "max_edit_distance", "fuzzy_match_confidence",
		"confidence_threshold_high", "confidence_threshold_low", "generic_terms",
	})
	if err != nil {
		return Bundle{}, err
	}

	b.FRN.BankName = b.BankCfg
	b.FRN.Variation = b.VariationCfg

	if err := floatInto(frnCat, "fuzzy_threshold", &b.FRN.FuzzyThreshold); err != nil {
		return Bundle{}, err
	}
	if err := intInto(frnCat, "max_edit_distance", &b.FRN.MaxEditDistance); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(frnCat, "fuzzy_match_confidence", &b.FRN.FuzzyMatchConfidence); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(frnCat, "confidence_threshold_high", &b.FRN.ConfidenceThresholdHigh); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(frnCat, "confidence_threshold_low", &b.FRN.ConfidenceThresholdLow); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(frnCat, "generic_terms", &b.FRN.GenericTerms); err != nil {
		return Bundle{}, err
	}

	dedupCat, err := loader.Load(ctx, categoryDeduplication, []string{
		"direct_platforms", "preferred_platforms", "rate_tolerance_bp",
		"rate_score_weight", "platform_score_weight", "completeness_score_weight", "reliability_score_weight",
		"frn_quality_bonus", "quality_score_max", "max_rate_for_scoring",
		"platform_reliability", "default_platform_reliability",
	})
	if err != nil {
		return Bundle{}, err
	}

	if err := jsonInto(dedupCat, "direct_platforms", &b.Dedup.DirectPlatforms); err != nil {
		return Bundle{}, err
	}

	var rawPreferred map[string]dedup.PreferredPlatform
	if err := jsonInto(dedupCat, "preferred_platforms", &rawPreferred); err != nil {
		return Bundle{}, err
	}
	b.Dedup.PreferredPlatforms = rawPreferred

	if err := floatInto(dedupCat, "rate_tolerance_bp", &b.Dedup.RateToleranceBp); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "rate_score_weight", &b.Dedup.RateScoreWeight); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "platform_score_weight", &b.Dedup.PlatformScoreWeight); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "completeness_score_weight", &b.Dedup.CompletenessScoreWeight); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "reliability_score_weight", &b.Dedup.ReliabilityScoreWeight); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "frn_quality_bonus", &b.Dedup.FRNQualityBonus); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "quality_score_max", &b.Dedup.QualityScoreMax); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "max_rate_for_scoring", &b.Dedup.MaxRateForScoring); err != nil {
		return Bundle{}, err
	}
	if err := jsonInto(dedupCat, "platform_reliability", &b.Dedup.PlatformReliability); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(dedupCat, "default_platform_reliability", &b.Dedup.DefaultPlatformReliability); err != nil {
		return Bundle{}, err
	}

	qualityCat, err := loader.Load(ctx, categoryDataQuality, []string{
		"weight_missing_fields", "weight_invalid_ranges", "weight_frn_match_rate", "weight_source_consistency",
		"high_rate_outlier_threshold", "low_frn_match_rate_threshold", "long_processing_time_seconds",
		"comparison_tolerance",
	})
	if err != nil {
		return Bundle{}, err
	}

	if err := floatInto(qualityCat, "weight_missing_fields", &b.Quality.Weights.MissingFields); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(qualityCat, "weight_invalid_ranges", &b.Quality.Weights.InvalidRanges); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(qualityCat, "weight_frn_match_rate", &b.Quality.Weights.FRNMatchRate); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(qualityCat, "weight_source_consistency", &b.Quality.Weights.SourceConsistency); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(qualityCat, "high_rate_outlier_threshold", &b.Quality.HighRateOutlierThreshold); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(qualityCat, "low_frn_match_rate_threshold", &b.Quality.LowFRNMatchRateThreshold); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(qualityCat, "long_processing_time_seconds", &b.Quality.LongProcessingTimeSeconds); err != nil {
		return Bundle{}, err
	}
	if err := floatInto(qualityCat, "comparison_tolerance", &b.Quality.ComparisonTolerance); err != nil {
		return Bundle{}, err
	}

	return b, nil
}

func floatInto(cat config.Category, key string, dst *float64) error {
	v, err := cat[key].Float()
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	*dst = v
	return nil
}

func intInto(cat config.Category, key string, dst *int) error {
	v, err := cat[key].Int()
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	*dst = v
	return nil
}

func boolInto(cat config.Category, key string, dst *bool) error {
	v, err := cat[key].Bool()
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	*dst = v
	return nil
}

func jsonInto(cat config.Category, key string, dst any) error {
	if err := cat[key].JSON(dst); err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	return nil
}
