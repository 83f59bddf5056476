package quality

import "github.com/ratevault/pipeline/internal/model"

// detectAnomalies checks three anomaly conditions against the batch's
// final products, FRN match rate, and wall-clock
// processing time. Order is stable: rate outliers, then FRN match rate,
// then processing time.
func detectAnomalies(final []model.FinalProduct, frnMatchRate float64, processingSeconds float64, cfg Config) []Anomaly {
	var anomalies []Anomaly

	if a, ok := highRateOutlierAnomaly(final, cfg.HighRateOutlierThreshold); ok {
		anomalies = append(anomalies, a)
	}

	if frnMatchRate < cfg.LowFRNMatchRateThreshold {
		anomalies = append(anomalies, Anomaly{
			Kind:      AnomalyLowFRNMatchRate,
			Detail:    "FRN match rate fell below the configured threshold",
			Measured:  frnMatchRate,
			Threshold: cfg.LowFRNMatchRateThreshold,
		})
	}

	if processingSeconds > cfg.LongProcessingTimeSeconds {
		anomalies = append(anomalies, Anomaly{
			Kind:      AnomalyLongProcessingTime,
			Detail:    "batch processing time exceeded the configured ceiling",
			Measured:  processingSeconds,
			Threshold: cfg.LongProcessingTimeSeconds,
		})
	}

	return anomalies
}

// highRateOutlierAnomaly flags a batch where more than threshold (e.g.
// 0.10 for "> 10%") of final products sit more than 50% above the mean
// AER rate — a crude but cheap proxy for scrape-error rates presenting
// as implausibly generous offers.
func highRateOutlierAnomaly(final []model.FinalProduct, threshold float64) (Anomaly, bool) {
	if len(final) == 0 {
		return Anomaly{}, false
	}

	var sum float64
	for _, p := range final {
		sum += p.Enriched.Parsed.Raw.AERRate
	}
	mean := sum / float64(len(final))

	var outliers int
	for _, p := range final {
		if p.Enriched.Parsed.Raw.AERRate > mean*1.5 {
			outliers++
		}
	}

	fraction := float64(outliers) / float64(len(final))
	if fraction <= threshold {
		return Anomaly{}, false
	}

	return Anomaly{
		Kind:      AnomalyHighRateOutliers,
		Detail:    "fraction of products priced well above the batch mean exceeded the configured threshold",
		Measured:  fraction,
		Threshold: threshold,
	}, true
}
