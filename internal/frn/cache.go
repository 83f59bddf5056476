// Package frn resolves normalized bank names to regulator-issued Firm
// Reference Numbers via a process-local lookup cache, rebuilt wholesale
// from three source tables (manual overrides, BoE institutions, BoE shared
// brands). The cache is immutable after a Rebuild call — callers hold a
// *Cache across resolutions and swap it out by rebuilding, never mutating
// entries in place.
package frn

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/model"
)

// queryer is satisfied by both *sql.DB and *sql.Tx, so Rebuild can run
// either standalone or nested inside the orchestrator's atomic-mode
// transaction without requesting a second connection from a pool that,
// under SQLite's single-writer setup, may have exactly one to give.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// priority ranks: lower value outranks higher value within a tied
// searchName. Manual overrides outrank direct BoE matches, which
// outrank variations, which outrank shared brands.
const (
	priorityManualOverride = 1
	priorityDirectMatch    = 2
	priorityNameVariation  = 3
	prioritySharedBrand    = 4
)

// Cache is the rebuildable, read-mostly FRN lookup table. Zero value is an
// empty cache; call Rebuild before resolving.
type Cache struct {
	mu sync.RWMutex

	// bySearchName indexes every entry whose MatchRank == 1 by its
	// uppercased, trimmed SearchName, which is the only form both the
	// exact and fuzzy resolution steps consult.
	bySearchName map[string]model.FRNLookupEntry

	// aliasEntries holds every shared_brand/name_variation entry
	// (regardless of MatchRank) for the substring-search alias step.
	aliasEntries []model.FRNLookupEntry

	size int
}

// NewCache constructs an empty cache. Call Rebuild to populate it.
func NewCache() *Cache {
	return &Cache{bySearchName: make(map[string]model.FRNLookupEntry)}
}

// Size returns the number of rank-1 entries currently held.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.size
}

// Rebuild reloads the cache from the three source tables and replaces the
// in-memory index wholesale. Any error leaves the previous cache contents
// untouched — a failed rebuild must not leave the engine without a cache.
func (c *Cache) Rebuild(ctx context.Context, db queryer, bankCfg canonicalization.BankNameConfig, varCfg canonicalization.VariationConfig) error {
	entries, err := loadAllEntries(ctx, db, bankCfg, varCfg)
	if err != nil {
		return fmt.Errorf("frn: rebuild cache: %w", err)
	}

	bySearchName, aliasEntries := indexEntries(entries)

	c.mu.Lock()
	c.bySearchName = bySearchName
	c.aliasEntries = aliasEntries
	c.size = len(bySearchName)
	c.mu.Unlock()

	return nil
}

// loadAllEntries reads the three source tables and expands every
// canonical name into its full variation cross product.
func loadAllEntries(ctx context.Context, db queryer, bankCfg canonicalization.BankNameConfig, varCfg canonicalization.VariationConfig) ([]model.FRNLookupEntry, error) {
	var all []model.FRNLookupEntry

	overrides, err := loadManualOverrides(ctx, db, bankCfg, varCfg)
	if err != nil {
		return nil, err
	}

	all = append(all, overrides...)

	institutions, err := loadInstitutions(ctx, db, bankCfg, varCfg)
	if err != nil {
		return nil, err
	}

	all = append(all, institutions...)

	brands, err := loadSharedBrands(ctx, db, bankCfg, varCfg)
	if err != nil {
		return nil, err
	}

	all = append(all, brands...)

	return all, nil
}

func loadManualOverrides(ctx context.Context, db queryer, bankCfg canonicalization.BankNameConfig, varCfg canonicalization.VariationConfig) ([]model.FRNLookupEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT frn, bank_name FROM frn_manual_overrides WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query manual overrides: %w", err)
	}
	defer rows.Close()

	var out []model.FRNLookupEntry

	for rows.Next() {
		var frnCode, bankName string
		if err := rows.Scan(&frnCode, &bankName); err != nil {
			return nil, fmt.Errorf("scan manual override: %w", err)
		}

		canonical := canonicalization.NormalizeBankName(bankName, bankCfg)
		for _, e := range canonicalization.VariationEntries(frnCode, canonical, varCfg) {
			e.MatchType = model.MatchManualOverride
			e.PriorityRank = priorityManualOverride
			e.Confidence = 1.0
			out = append(out, e)
		}
	}

	return out, rows.Err()
}

func loadInstitutions(ctx context.Context, db queryer, bankCfg canonicalization.BankNameConfig, varCfg canonicalization.VariationConfig) ([]model.FRNLookupEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT frn, institution_name FROM boe_institutions`)
	if err != nil {
		return nil, fmt.Errorf("query institutions: %w", err)
	}
	defer rows.Close()

	var out []model.FRNLookupEntry

	for rows.Next() {
		var frnCode, instName string
		if err := rows.Scan(&frnCode, &instName); err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}

		canonical := canonicalization.NormalizeBankName(instName, bankCfg)
		for _, e := range canonicalization.VariationEntries(frnCode, canonical, varCfg) {
			if e.MatchType == model.MatchDirectMatch {
				e.PriorityRank = priorityDirectMatch
			} else {
				e.PriorityRank = priorityNameVariation
			}

			e.Confidence = directMatchConfidence(e.MatchType)
			out = append(out, e)
		}
	}

	return out, rows.Err()
}

func directMatchConfidence(mt model.FRNMatchType) float64 {
	if mt == model.MatchDirectMatch {
		return 1.0
	}

	return 0.9
}

func loadSharedBrands(ctx context.Context, db queryer, bankCfg canonicalization.BankNameConfig, varCfg canonicalization.VariationConfig) ([]model.FRNLookupEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT frn, brand_name FROM boe_shared_brands`)
	if err != nil {
		return nil, fmt.Errorf("query shared brands: %w", err)
	}
	defer rows.Close()

	var out []model.FRNLookupEntry

	for rows.Next() {
		var frnCode, brandName string
		if err := rows.Scan(&frnCode, &brandName); err != nil {
			return nil, fmt.Errorf("scan shared brand: %w", err)
		}

		canonical := canonicalization.NormalizeBankName(brandName, bankCfg)
		for _, e := range canonicalization.VariationEntries(frnCode, canonical, varCfg) {
			e.MatchType = model.MatchSharedBrand
			e.PriorityRank = prioritySharedBrand
			e.Confidence = 0.75
			out = append(out, e)
		}
	}

	return out, rows.Err()
}

// indexEntries groups entries by searchName, keeps only the top-priority
// entry per name as the MatchRank == 1 winner (used for exact/fuzzy
// lookup), and separately retains every shared_brand/name_variation entry
// for the alias substring step.
func indexEntries(entries []model.FRNLookupEntry) (map[string]model.FRNLookupEntry, []model.FRNLookupEntry) {
	grouped := make(map[string][]model.FRNLookupEntry)

	for _, e := range entries {
		key := searchKey(e.SearchName)
		grouped[key] = append(grouped[key], e)
	}

	bySearchName := make(map[string]model.FRNLookupEntry, len(grouped))

	for key, group := range grouped {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].PriorityRank < group[j].PriorityRank
		})

		winner := group[0]
		winner.MatchRank = 1
		bySearchName[key] = winner
	}

	var aliasEntries []model.FRNLookupEntry

	for _, e := range entries {
		if e.MatchType == model.MatchSharedBrand || e.MatchType == model.MatchNameVariation {
			aliasEntries = append(aliasEntries, e)
		}
	}

	return bySearchName, aliasEntries
}

// searchKey is the case-insensitive index key used for cache lookups.
func searchKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
