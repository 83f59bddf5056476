package dedup

import (
	"testing"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/model"
)

func testBankCfg() canonicalization.BankNameConfig {
	return canonicalization.BankNameConfig{CorporateSuffixes: []string{"PLC", "LIMITED", "LTD", "BANK"}}
}

func intPtr(i int) *int { return &i }

func TestBusinessKey_ExcludesPlatformFRNAndRate(t *testing.T) {
	base := model.EnrichedProduct{
		Parsed: model.ParsedProduct{
			Raw: model.RawProduct{BankName: "HSBC PLC", AccountType: model.AccountEasyAccess, AERRate: 4.5},
			NormalizedPlatform: "direct",
		},
		FRN: "114216",
	}

	variant := base
	variant.Parsed.Raw.AERRate = 5.0
	variant.Parsed.NormalizedPlatform = "raisin"
	variant.FRN = ""

	if BusinessKey(base, testBankCfg()) != BusinessKey(variant, testBankCfg()) {
		t.Fatal("BusinessKey() should be identical across platform/rate/FRN differences for the same bank+account type")
	}
}

func TestBusinessKey_DistinguishesAccountType(t *testing.T) {
	easyAccess := model.EnrichedProduct{Parsed: model.ParsedProduct{Raw: model.RawProduct{BankName: "HSBC", AccountType: model.AccountEasyAccess}}}
	fixedTerm := model.EnrichedProduct{Parsed: model.ParsedProduct{Raw: model.RawProduct{BankName: "HSBC", AccountType: model.AccountFixedTerm, TermMonths: intPtr(12)}}}

	if BusinessKey(easyAccess, testBankCfg()) == BusinessKey(fixedTerm, testBankCfg()) {
		t.Fatal("BusinessKey() should differ across account types")
	}
}

func TestBusinessKey_DistinguishesTermLength(t *testing.T) {
	twelve := model.EnrichedProduct{Parsed: model.ParsedProduct{Raw: model.RawProduct{BankName: "HSBC", AccountType: model.AccountFixedTerm, TermMonths: intPtr(12)}}}
	thirtySix := model.EnrichedProduct{Parsed: model.ParsedProduct{Raw: model.RawProduct{BankName: "HSBC", AccountType: model.AccountFixedTerm, TermMonths: intPtr(36)}}}

	if BusinessKey(twelve, testBankCfg()) == BusinessKey(thirtySix, testBankCfg()) {
		t.Fatal("BusinessKey() should differ across fixed-term lengths")
	}
}

func TestBusinessKey_StableAcrossBankNameVariants(t *testing.T) {
	a := model.EnrichedProduct{Parsed: model.ParsedProduct{Raw: model.RawProduct{BankName: "HSBC Bank plc", AccountType: model.AccountEasyAccess}}}
	b := model.EnrichedProduct{Parsed: model.ParsedProduct{Raw: model.RawProduct{BankName: "HSBC", AccountType: model.AccountEasyAccess}}}

	if BusinessKey(a, testBankCfg()) != BusinessKey(b, testBankCfg()) {
		t.Fatalf("BusinessKey() = %q vs %q, want equal after corporate-suffix stripping",
			BusinessKey(a, testBankCfg()), BusinessKey(b, testBankCfg()))
	}
}
