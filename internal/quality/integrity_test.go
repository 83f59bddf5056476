package quality

import (
	"testing"

	"github.com/ratevault/pipeline/internal/model"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func fullyCompleteProduct(frnStatus model.FRNStatus) model.EnrichedProduct {
	return model.EnrichedProduct{
		Parsed: model.ParsedProduct{
			Raw: model.RawProduct{
				BankName:         "HSBC",
				GrossRate:        floatPtr(4.5),
				TermMonths:       intPtr(12),
				NoticePeriodDays: intPtr(0),
				MinDeposit:       floatPtr(1),
				MaxDeposit:       floatPtr(100000),
				FSCSProtected:    true,
			},
			NormalizedPlatform: "direct",
		},
		FRN:       "123456",
		FRNStatus: frnStatus,
	}
}

func TestComputeIntegrityComponents_AllPresent(t *testing.T) {
	enriched := []model.EnrichedProduct{
		fullyCompleteProduct(model.FRNMatched),
		fullyCompleteProduct(model.FRNMatched),
	}

	c := computeIntegrityComponents(2, 0, enriched)

	if c.missingFields != 1 {
		t.Errorf("missingFields = %v, want 1", c.missingFields)
	}
	if c.invalidRanges != 1 {
		t.Errorf("invalidRanges = %v, want 1", c.invalidRanges)
	}
	if c.frnMatchRate != 1 {
		t.Errorf("frnMatchRate = %v, want 1", c.frnMatchRate)
	}
	if c.sourceConsistency != 1 {
		t.Errorf("sourceConsistency = %v, want 1", c.sourceConsistency)
	}
}

func TestComputeIntegrityComponents_PartialMissingFields(t *testing.T) {
	p := fullyCompleteProduct(model.FRNNoMatch)
	p.FRN = ""
	p.Parsed.Raw.MaxDeposit = nil

	c := computeIntegrityComponents(1, 0, []model.EnrichedProduct{p})

	if c.missingFields >= 1 {
		t.Errorf("missingFields = %v, want < 1 with two absent fields", c.missingFields)
	}
	if c.frnMatchRate != 0 {
		t.Errorf("frnMatchRate = %v, want 0", c.frnMatchRate)
	}
}

func TestComputeIntegrityComponents_InvalidRangesReflectsRejections(t *testing.T) {
	c := computeIntegrityComponents(10, 4, nil)

	if c.invalidRanges != 0.6 {
		t.Errorf("invalidRanges = %v, want 0.6", c.invalidRanges)
	}
}

func TestIntegrityScore_WeightedAndScaled(t *testing.T) {
	c := integrityComponents{missingFields: 1, invalidRanges: 1, frnMatchRate: 1, sourceConsistency: 1}
	w := IntegrityWeights{MissingFields: 0.3, InvalidRanges: 0.3, FRNMatchRate: 0.2, SourceConsistency: 0.2}

	score := IntegrityScore(c, w)

	if score != 100 {
		t.Errorf("IntegrityScore() = %v, want 100", score)
	}
}

func TestIntegrityScore_PartialComponentsScaleDown(t *testing.T) {
	c := integrityComponents{missingFields: 0.5, invalidRanges: 0.5, frnMatchRate: 0.5, sourceConsistency: 0.5}
	w := IntegrityWeights{MissingFields: 0.3, InvalidRanges: 0.3, FRNMatchRate: 0.2, SourceConsistency: 0.2}

	score := IntegrityScore(c, w)

	if score != 50 {
		t.Errorf("IntegrityScore() = %v, want 50", score)
	}
}
