package storage

import (
	"context"
	"fmt"

	"github.com/ratevault/pipeline/internal/model"
)

// ProductStore persists available_products: the canonical, deduplicated
// table replaced wholesale at the end of every successful run.
type ProductStore struct{}

// NewProductStore constructs a ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{}
}

// ReplaceAll deletes every row of available_products and inserts final in
// their place. Always called within the engine's transaction (atomic or
// incremental) so a crash mid-replace never leaves the canonical table
// half-written.
func (s *ProductStore) ReplaceAll(ctx context.Context, x execer, final []model.FinalProduct) error {
	if _, err := x.ExecContext(ctx, `DELETE FROM available_products`); err != nil {
		return fmt.Errorf("storage: clear canonical products: %w", err)
	}

	for _, f := range final {
		if err := s.insert(ctx, x, f); err != nil {
			return err
		}
	}

	return nil
}

// InsertFallback writes one canonical row directly from a raw row,
// bypassing FRN matching and deduplication — the reprocessing
// controller's own fallback path. business_key is synthesized as
// "fallback_<raw row id>" so the
// row is visibly distinguishable from a normally-deduplicated business key,
// and fscs_compliant is left true since no cross-platform FSCS check ran.
func (s *ProductStore) InsertFallback(ctx context.Context, x execer, raw model.RawProduct, category model.PlatformCategory) error {
	businessKey := fmt.Sprintf("fallback_%d", raw.ID)

	_, err := x.ExecContext(ctx,
		`INSERT INTO available_products (
			platform, platform_category, source, bank_name, normalized_bank_name, account_type,
			aer_rate, gross_rate, term_months, notice_period_days, min_deposit, max_deposit,
			fscs_protected, fscs_compliant, scrape_date, frn, frn_confidence, frn_status,
			business_key, quality_score, duplicate_count, selection_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		raw.Platform, string(category), raw.Source, raw.BankName, raw.BankName,
		string(raw.AccountType), raw.AERRate, raw.GrossRate, raw.TermMonths, raw.NoticePeriodDays,
		raw.MinDeposit, raw.MaxDeposit, raw.FSCSProtected, true, raw.ScrapeDate,
		nullableString(raw.FRN), raw.FRNConfidence, string(model.FRNNoMatch),
		businessKey, nil, 1, string(model.ReasonFallbackCopyThrough))
	if err != nil {
		return fmt.Errorf("storage: insert fallback product for raw row %d: %w", raw.ID, err)
	}

	return nil
}

func (s *ProductStore) insert(ctx context.Context, x execer, f model.FinalProduct) error {
	raw := f.Enriched.Parsed.Raw

	_, err := x.ExecContext(ctx,
		`INSERT INTO available_products (
			platform, platform_category, source, bank_name, normalized_bank_name, account_type,
			aer_rate, gross_rate, term_months, notice_period_days, min_deposit, max_deposit,
			fscs_protected, fscs_compliant, scrape_date, frn, frn_confidence, frn_status,
			business_key, quality_score, duplicate_count, selection_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Enriched.Parsed.NormalizedPlatform, string(f.PlatformCategory), raw.Source, raw.BankName,
		f.Enriched.NormalizedBankName, string(raw.AccountType), raw.AERRate, raw.GrossRate,
		raw.TermMonths, raw.NoticePeriodDays, raw.MinDeposit, raw.MaxDeposit,
		raw.FSCSProtected, f.FSCSCompliant, raw.ScrapeDate, nullableString(f.Enriched.FRN),
		f.Enriched.FRNConfidence, string(f.Enriched.FRNStatus), f.BusinessKey, f.QualityScore,
		f.DuplicateCount, string(f.SelectionReason))
	if err != nil {
		return fmt.Errorf("storage: insert canonical product (%s/%s): %w", raw.Platform, raw.BankName, err)
	}

	return nil
}
