package canonicalization

import (
	"strings"

	"github.com/ratevault/pipeline/internal/model"
)

// VariationConfig configures GenerateVariations, loaded from the
// "canonicalization" config category. Prefixes/suffixes/abbreviations are never
// hardcoded.
type VariationConfig struct {
	// Prefixes are leading tokens that some feeds include and others drop,
	// e.g. "THE".
	Prefixes []string

	// Suffixes are trailing tokens some feeds include and others drop,
	// beyond the corporate suffixes already stripped by NormalizeBankName,
	// e.g. "SAVINGS", "GROUP".
	Suffixes []string

	// Abbreviations maps a canonical word to the abbreviation some feeds
	// use instead, e.g. "BUILDING SOCIETY" -> "BS", "AND" -> "&".
	Abbreviations map[string]string
}

// GenerateVariations produces, for every canonical institution name, the
// cross product of {with/without configured prefix} x {with/without
// configured suffix} x {with/without abbreviation expansion}. The
// canonical name itself is always included. Duplicate
// variations (the cross product often collapses when a name has no
// matching prefix/suffix/abbreviation) are deduplicated before return.
func GenerateVariations(canonicalName string, cfg VariationConfig) []string {
	base := strings.TrimSpace(canonicalName)
	if base == "" {
		return nil
	}

	seen := make(map[string]bool)
	out := make([]string, 0, 8)

	add := func(s string) {
		s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
		if s == "" || seen[s] {
			return
		}

		seen[s] = true

		out = append(out, s)
	}

	add(base)

	withoutPrefix := stripPrefix(base, cfg.Prefixes)
	add(withoutPrefix)

	withoutSuffix := stripOneSuffix(base, cfg.Suffixes)
	add(withoutSuffix)

	withoutBoth := stripOneSuffix(withoutPrefix, cfg.Suffixes)
	add(withoutBoth)

	for _, candidate := range []string{base, withoutPrefix, withoutSuffix, withoutBoth} {
		add(expandAbbreviations(candidate, cfg.Abbreviations))
		add(contractAbbreviations(candidate, cfg.Abbreviations))
	}

	return out
}

func stripPrefix(name string, prefixes []string) string {
	for _, prefix := range prefixes {
		prefix = strings.ToUpper(strings.TrimSpace(prefix))
		if prefix == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(name, prefix+" "); ok {
			return strings.TrimSpace(rest)
		}
	}

	return name
}

func stripOneSuffix(name string, suffixes []string) string {
	for _, suffix := range suffixes {
		if stripped, ok := trimSuffixWord(name, strings.ToUpper(strings.TrimSpace(suffix))); ok {
			return stripped
		}
	}

	return name
}

// expandAbbreviations replaces each abbreviation key's value with its
// canonical full form, e.g. "BS" -> "BUILDING SOCIETY".
func expandAbbreviations(name string, abbreviations map[string]string) string {
	words := strings.Fields(name)
	for i, w := range words {
		if full, ok := reverseLookup(abbreviations, w); ok {
			words[i] = full
		}
	}

	return strings.Join(words, " ")
}

// contractAbbreviations replaces each canonical full form with its
// configured abbreviation, e.g. "BUILDING SOCIETY" -> "BS".
func contractAbbreviations(name string, abbreviations map[string]string) string {
	result := name
	for full, abbrev := range abbreviations {
		result = strings.ReplaceAll(result, full, abbrev)
	}

	return result
}

func reverseLookup(abbreviations map[string]string, abbrev string) (string, bool) {
	for full, short := range abbreviations {
		if short == abbrev {
			return full, true
		}
	}

	return "", false
}

// VariationEntries expands canonicalName into the full set of
// model.FRNLookupEntry rows for one institution, tagging every generated
// variation (beyond the canonical name itself) as model.MatchNameVariation.
// The caller assigns FRN, PriorityRank, and Confidence; this only handles
// the name fan-out.
func VariationEntries(frn, canonicalName string, cfg VariationConfig) []model.FRNLookupEntry {
	variations := GenerateVariations(canonicalName, cfg)

	entries := make([]model.FRNLookupEntry, 0, len(variations))

	for _, v := range variations {
		matchType := model.MatchNameVariation
		if v == strings.TrimSpace(canonicalName) {
			matchType = model.MatchDirectMatch
		}

		entries = append(entries, model.FRNLookupEntry{
			FRN:           frn,
			CanonicalName: canonicalName,
			SearchName:    v,
			MatchType:     matchType,
		})
	}

	return entries
}
