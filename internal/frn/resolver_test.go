package frn

import (
	"testing"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/model"
)

func testBankCfg() canonicalization.BankNameConfig {
	return canonicalization.BankNameConfig{
		CorporateSuffixes: []string{"LIMITED", "LTD", "PLC", "BUILDING SOCIETY", "BANK", "BS", "UK"},
	}
}

func testVarCfg() canonicalization.VariationConfig {
	return canonicalization.VariationConfig{
		Prefixes:      []string{"THE"},
		Suffixes:      []string{"SAVINGS"},
		Abbreviations: map[string]string{"BUILDING SOCIETY": "BS"},
	}
}

func seedCache(t *testing.T) *Cache {
	t.Helper()

	bankCfg := testBankCfg()
	varCfg := testVarCfg()

	var entries []model.FRNLookupEntry

	canonical := canonicalization.NormalizeBankName("HSBC Bank Plc", bankCfg)
	for _, e := range canonicalization.VariationEntries("114004", canonical, varCfg) {
		e.PriorityRank = priorityDirectMatch
		e.Confidence = directMatchConfidence(e.MatchType)
		entries = append(entries, e)
	}

	canonical2 := canonicalization.NormalizeBankName("Marcus by Goldman Sachs", bankCfg)
	for _, e := range canonicalization.VariationEntries("124659", canonical2, varCfg) {
		e.MatchType = model.MatchSharedBrand
		e.PriorityRank = prioritySharedBrand
		e.Confidence = 0.75
		entries = append(entries, e)
	}

	bySearchName, aliasEntries := indexEntries(entries)

	return &Cache{bySearchName: bySearchName, aliasEntries: aliasEntries, size: len(bySearchName)}
}

func testConfig() Config {
	return Config{
		BankName:                testBankCfg(),
		Variation:                testVarCfg(),
		FuzzyThreshold:           0.85,
		MaxEditDistance:          3,
		FuzzyMatchConfidence:     0.9,
		ConfidenceThresholdHigh:  0.9,
		ConfidenceThresholdLow:   0.5,
		GenericTerms:             map[string]bool{"BANK": true, "SAVINGS": true},
	}
}

func TestResolver_ExactMatch(t *testing.T) {
	cache := seedCache(t)
	r := NewResolver(cache, testConfig())

	res := r.Resolve("HSBC UK")

	if res.Status != model.FRNMatched {
		t.Fatalf("expected MATCHED, got %s (confidence %f)", res.Status, res.Confidence)
	}

	if res.FRN != "114004" {
		t.Errorf("FRN = %q, want 114004", res.FRN)
	}

	if res.Source != model.FRNSourceExact {
		t.Errorf("Source = %q, want exact", res.Source)
	}
}

func TestResolver_FuzzyMatch(t *testing.T) {
	cache := seedCache(t)
	r := NewResolver(cache, testConfig())

	res := r.Resolve("HSBCC") // one-char edit from HSBC

	if res.Status == model.FRNNoMatch {
		t.Fatalf("expected a fuzzy hit, got NO_MATCH")
	}

	if res.FRN != "114004" {
		t.Errorf("FRN = %q, want 114004", res.FRN)
	}
}

func TestResolver_AliasMatch(t *testing.T) {
	cache := seedCache(t)
	r := NewResolver(cache, testConfig())

	res := r.Resolve("MARCUS")

	if res.FRN != "124659" {
		t.Errorf("FRN = %q, want 124659 via alias", res.FRN)
	}
}

func TestResolver_NoMatch(t *testing.T) {
	cache := seedCache(t)
	r := NewResolver(cache, testConfig())

	res := r.Resolve("COMPLETELY UNRELATED INSTITUTION NAME")

	if res.Status != model.FRNNoMatch {
		t.Errorf("expected NO_MATCH, got %s", res.Status)
	}
}

func TestResolver_ShouldQueue(t *testing.T) {
	r := NewResolver(NewCache(), testConfig())

	matched := Result{Status: model.FRNMatched, NormalizedBankName: "HSBC"}
	if r.ShouldQueue(matched, false, false) {
		t.Error("matched result should never be queued")
	}

	generic := Result{Status: model.FRNNoMatch, NormalizedBankName: "BANK"}
	if r.ShouldQueue(generic, false, false) {
		t.Error("generic term should not be queued")
	}

	novel := Result{Status: model.FRNNoMatch, NormalizedBankName: "OBSCURE INSTITUTION"}
	if !r.ShouldQueue(novel, false, false) {
		t.Error("novel unmatched name should be queued")
	}

	if r.ShouldQueue(novel, true, false) {
		t.Error("already-queued name should not be queued again")
	}

	if r.ShouldQueue(novel, false, true) {
		t.Error("queue at capacity should block new entries")
	}
}
