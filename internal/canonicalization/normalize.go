// Package canonicalization normalizes the three free-text fields that would
// otherwise fragment an institution across feeds: bank name, account type,
// and platform/source. Every normalizer here is idempotent —
// Normalize(Normalize(x)) == Normalize(x) — which is both a testable
// property and what makes it safe to call twice (once
// during ingestion, again during the FRN cache rebuild) without drift.
package canonicalization

import (
	"regexp"
	"strings"

	"github.com/ratevault/pipeline/internal/model"
)

// BankNameConfig carries the configurable parts of NormalizeBankName,
// loaded from the "canonicalization" config category at startup. None of
// these are hardcoded in code.
type BankNameConfig struct {
	// CorporateSuffixes are stripped iteratively (until a fixed point),
	// e.g. "LIMITED", "LTD", "PLC", "BANK", "BUILDING SOCIETY", "BS", "UK".
	CorporateSuffixes []string
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9 ]+`)

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

var acronymBoundary = regexp.MustCompile(`([A-Z])([A-Z][a-z])`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeBankName produces the FSCS-safe canonical form of a bank name
// used both as the FRN search key and as the first component of the
// business key.
//
// Steps, in order:
//  1. Split camelCase boundaries so "HSBCUk" and "HSBC Uk" normalize the
//     same way.
//  2. Uppercase.
//  3. Replace "&" with "AND" (so "M&S Bank" and "M AND S BANK" collide).
//  4. Strip everything that isn't a letter, digit, or space.
//  5. Iteratively strip configured corporate suffixes from the end of the
//     string until none apply (handles "HSBC BANK PLC" -> "HSBC BANK" ->
//     "HSBC").
//  6. Collapse whitespace and trim.
func NormalizeBankName(raw string, cfg BankNameConfig) string {
	name := camelBoundary.ReplaceAllString(raw, "$1 $2")
	name = acronymBoundary.ReplaceAllString(name, "$1 $2")
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "&", " AND ")
	name = nonAlphanumeric.ReplaceAllString(name, " ")
	name = whitespaceRun.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	name = stripSuffixesFixedPoint(name, cfg.CorporateSuffixes)

	name = whitespaceRun.ReplaceAllString(name, " ")

	return strings.TrimSpace(name)
}

// stripSuffixesFixedPoint removes any of suffixes from the end of name,
// repeating until no suffix applies. "PLC" then "BANK" might both need to
// come off ("X BANK PLC" -> "X BANK" -> "X"), hence the fixed-point loop
// rather than a single pass.
func stripSuffixesFixedPoint(name string, suffixes []string) string {
	for {
		trimmed := strings.TrimSpace(name)

		changed := false

		for _, suffix := range suffixes {
			suffix = strings.ToUpper(strings.TrimSpace(suffix))
			if suffix == "" {
				continue
			}

			if stripped, ok := trimSuffixWord(trimmed, suffix); ok {
				trimmed = stripped
				changed = true
			}
		}

		if !changed {
			return trimmed
		}

		name = trimmed
	}
}

// trimSuffixWord removes suffix from the end of s only on a word boundary
// (preceded by whitespace or start-of-string), so "BANK" doesn't eat the
// tail of "FAIRBANK".
func trimSuffixWord(s, suffix string) (string, bool) {
	if !strings.HasSuffix(s, suffix) {
		return s, false
	}

	before := s[:len(s)-len(suffix)]
	if before == "" {
		return "", true
	}

	if strings.HasSuffix(before, " ") {
		return strings.TrimSpace(before), true
	}

	return s, false
}

// NormalizeAccountType validates and lowercases an account type string into
// one of the three recognized model.AccountType values. Returns ok=false
// for anything else, letting the caller classify it as a validation
// failure rather than silently coercing it.
func NormalizeAccountType(raw string) (model.AccountType, bool) {
	at := model.AccountType(strings.ToLower(strings.TrimSpace(raw)))
	return at, at.IsValid()
}

// PlatformConfig carries the source-specific platform remapping rules,
// e.g. an aggregator whose own platform string equals its source name is
// really the bank's direct channel.
type PlatformConfig struct {
	// SelfReportingAggregators lists sources where a platform value equal
	// to the source itself should be remapped to "direct" — e.g. source
	// "moneyfacts" with platform "moneyfacts" becomes platform "direct".
	SelfReportingAggregators map[string]bool

	// DirectPlatforms is the configured set of platform names that are a
	// bank's own channel.
	DirectPlatforms map[string]bool
}

// NormalizeForFRNMatching applies the fuller normalization used at FRN
// resolution time: NormalizeBankName (uppercase, strip non-alphanumerics,
// iteratively strip configured suffixes to a fixed point), then strip a
// configured prefix, then expand configured abbreviations. This differs from
// NormalizeBankName (used for the business key) in the prefix-stripping and
// abbreviation-expansion steps; the latter exists so "NATIONWIDE BS"
// resolves against a cache built from "NATIONWIDE BUILDING SOCIETY".
func NormalizeForFRNMatching(raw string, bankCfg BankNameConfig, varCfg VariationConfig) string {
	name := NormalizeBankName(raw, bankCfg)
	name = stripPrefix(name, varCfg.Prefixes)
	name = expandAbbreviations(name, varCfg.Abbreviations)

	return strings.TrimSpace(whitespaceRun.ReplaceAllString(name, " "))
}

// NormalizePlatform applies the source-specific platform remap and
// classifies the result as direct or aggregator.
func NormalizePlatform(platform, source string, cfg PlatformConfig) (string, model.PlatformCategory) {
	p := strings.ToLower(strings.TrimSpace(platform))
	s := strings.ToLower(strings.TrimSpace(source))

	if cfg.SelfReportingAggregators[s] && p == s {
		p = "direct"
	}

	if p == "direct" || cfg.DirectPlatforms[p] {
		return p, model.PlatformDirect
	}

	return p, model.PlatformAggregator
}
