package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

// HistoricalStore persists historical_products: an append-only archive
// written whenever a product is superseded, so a rate timeline survives
// the canonical table's wholesale replacement.
type HistoricalStore struct{}

// NewHistoricalStore constructs a HistoricalStore.
func NewHistoricalStore() *HistoricalStore {
	return &HistoricalStore{}
}

// Archive copies the current contents of available_products into
// historical_products, stamped with archivedAt, before the canonical table
// is replaced. Used both by the normal end-of-run replace and by the
// reprocessing controller's fallback copy-through path.
func (s *HistoricalStore) Archive(ctx context.Context, x execer, archivedAt time.Time) error {
	_, err := x.ExecContext(ctx,
		`INSERT INTO historical_products (
			platform, platform_category, source, bank_name, normalized_bank_name, account_type,
			aer_rate, gross_rate, term_months, notice_period_days, min_deposit, max_deposit,
			fscs_protected, fscs_compliant, scrape_date, frn, frn_confidence, frn_status,
			business_key, quality_score, duplicate_count, selection_reason, archived_at
		)
		SELECT platform, platform_category, source, bank_name, normalized_bank_name, account_type,
		       aer_rate, gross_rate, term_months, notice_period_days, min_deposit, max_deposit,
		       fscs_protected, fscs_compliant, scrape_date, frn, frn_confidence, frn_status,
		       business_key, quality_score, duplicate_count, selection_reason, ?
		  FROM available_products`, archivedAt)
	if err != nil {
		return fmt.Errorf("storage: archive canonical products: %w", err)
	}

	return nil
}

// ForBusinessKey returns the archived history for one business key,
// ordered oldest first, used for rate-timeline queries.
func (s *HistoricalStore) ForBusinessKey(ctx context.Context, x execer, businessKey string) ([]model.FinalProduct, error) {
	rows, err := x.QueryContext(ctx,
		`SELECT platform, source, bank_name, account_type, aer_rate, scrape_date, archived_at
		   FROM historical_products
		  WHERE business_key = ?
		  ORDER BY archived_at ASC`, businessKey)
	if err != nil {
		return nil, fmt.Errorf("storage: query history for %q: %w", businessKey, err)
	}
	defer rows.Close()

	var out []model.FinalProduct

	for rows.Next() {
		var (
			f    model.FinalProduct
			acct string
			archivedAt time.Time
		)

		if err := rows.Scan(&f.Enriched.Parsed.NormalizedPlatform, &f.Enriched.Parsed.Raw.Source,
			&f.Enriched.Parsed.Raw.BankName, &acct, &f.Enriched.Parsed.Raw.AERRate,
			&f.Enriched.Parsed.Raw.ScrapeDate, &archivedAt); err != nil {
			return nil, fmt.Errorf("storage: scan history row: %w", err)
		}

		f.Enriched.Parsed.Raw.AccountType = model.AccountType(acct)
		f.BusinessKey = businessKey
		out = append(out, f)
	}

	return out, rows.Err()
}
