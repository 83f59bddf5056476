package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

// RawProductStore persists available_products_raw: the per-origin staging
// table ingestion writes to and FRN matching/deduplication patch in place
// with frn, business_key, and processed_at.
type RawProductStore struct{}

// NewRawProductStore constructs a RawProductStore. It carries no state —
// every method takes the execer (db or in-flight tx) explicitly so the
// same store works in both atomic and incremental commit modes.
func NewRawProductStore() *RawProductStore {
	return &RawProductStore{}
}

// ReplaceForOrigin deletes every existing row for (source, method) and
// writes the passed products in their place under that exact (source,
// method). Returns the auto-assigned row ID
// of each inserted product, in the same order as products, so the caller
// can carry it forward onto the in-memory ParsedProduct chain for later
// stages' write-backs (FRN matching, deduplication) without a second
// round-trip to re-read the table.
func (s *RawProductStore) ReplaceForOrigin(ctx context.Context, x execer, source, method string, products []model.RawProduct) ([]int64, error) {
	if _, err := x.ExecContext(ctx,
		`DELETE FROM available_products_raw WHERE source = ? AND method = ?`, source, method); err != nil {
		return nil, fmt.Errorf("storage: clear raw products for (%s, %s): %w", source, method, err)
	}

	ids := make([]int64, len(products))

	for i, p := range products {
		id, err := s.insert(ctx, x, p)
		if err != nil {
			return nil, err
		}

		ids[i] = id
	}

	return ids, nil
}

func (s *RawProductStore) insert(ctx context.Context, x execer, p model.RawProduct) (int64, error) {
	result, err := x.ExecContext(ctx,
		`INSERT INTO available_products_raw (
			platform, source, method, bank_name, account_type, aer_rate, gross_rate,
			term_months, notice_period_days, min_deposit, max_deposit, fscs_protected,
			scrape_date, frn, frn_confidence, business_key, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Platform, p.Source, p.Method, p.BankName, string(p.AccountType), p.AERRate, p.GrossRate,
		p.TermMonths, p.NoticePeriodDays, p.MinDeposit, p.MaxDeposit, p.FSCSProtected,
		p.ScrapeDate, nullableString(p.FRN), p.FRNConfidence, nullableString(p.BusinessKey), p.ProcessedAt)
	if err != nil {
		return 0, fmt.Errorf("storage: insert raw product (%s/%s): %w", p.Platform, p.BankName, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: read inserted ID for raw product (%s/%s): %w", p.Platform, p.BankName, err)
	}

	return id, nil
}

// AllForRebuild loads every row of available_products_raw, used by
// --rebuild-only to re-run FRN matching and deduplication without
// re-ingesting.
func (s *RawProductStore) AllForRebuild(ctx context.Context, x execer) ([]model.RawProduct, error) {
	rows, err := x.QueryContext(ctx,
		`SELECT id, platform, source, method, bank_name, account_type, aer_rate, gross_rate,
		        term_months, notice_period_days, min_deposit, max_deposit, fscs_protected,
		        scrape_date, frn, frn_confidence, business_key, processed_at
		   FROM available_products_raw
		  ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: load raw products for rebuild: %w", err)
	}
	defer rows.Close()

	var out []model.RawProduct

	for rows.Next() {
		var (
			p       model.RawProduct
			acct    string
			frnCode, businessKey *string
		)

		if err := rows.Scan(&p.ID, &p.Platform, &p.Source, &p.Method, &p.BankName, &acct, &p.AERRate,
			&p.GrossRate, &p.TermMonths, &p.NoticePeriodDays, &p.MinDeposit, &p.MaxDeposit, &p.FSCSProtected,
			&p.ScrapeDate, &frnCode, &p.FRNConfidence, &businessKey, &p.ProcessedAt); err != nil {
			return nil, fmt.Errorf("storage: scan raw product: %w", err)
		}

		p.AccountType = model.AccountType(acct)
		if frnCode != nil {
			p.FRN = *frnCode
		}

		if businessKey != nil {
			p.BusinessKey = *businessKey
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// WriteFRNResult patches {frn, normalized bank name is stored separately
// via enrichment, confidence} back onto a raw row after FRN matching.
func (s *RawProductStore) WriteFRNResult(ctx context.Context, x execer, id int64, frnCode string, confidence float64, processedAt time.Time) error {
	_, err := x.ExecContext(ctx,
		`UPDATE available_products_raw SET frn = ?, frn_confidence = ?, processed_at = ? WHERE id = ?`,
		nullableString(frnCode), confidence, processedAt, id)
	if err != nil {
		return fmt.Errorf("storage: write FRN result for raw product %d: %w", id, err)
	}

	return nil
}

// Unprocessed loads every raw row with a NULL processed_at, used by the
// reprocessing controller's fallback copy-through path to
// find rows neither FRN matching nor deduplication ever touched.
func (s *RawProductStore) Unprocessed(ctx context.Context, x execer) ([]model.RawProduct, error) {
	rows, err := x.QueryContext(ctx,
		`SELECT id, platform, source, method, bank_name, account_type, aer_rate, gross_rate,
		        term_months, notice_period_days, min_deposit, max_deposit, fscs_protected,
		        scrape_date, frn, frn_confidence, business_key, processed_at
		   FROM available_products_raw
		  WHERE processed_at IS NULL
		  ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: load unprocessed raw products: %w", err)
	}
	defer rows.Close()

	var out []model.RawProduct

	for rows.Next() {
		var (
			p                    model.RawProduct
			acct                 string
			frnCode, businessKey *string
		)

		if err := rows.Scan(&p.ID, &p.Platform, &p.Source, &p.Method, &p.BankName, &acct, &p.AERRate,
			&p.GrossRate, &p.TermMonths, &p.NoticePeriodDays, &p.MinDeposit, &p.MaxDeposit, &p.FSCSProtected,
			&p.ScrapeDate, &frnCode, &p.FRNConfidence, &businessKey, &p.ProcessedAt); err != nil {
			return nil, fmt.Errorf("storage: scan unprocessed raw product: %w", err)
		}

		p.AccountType = model.AccountType(acct)
		if frnCode != nil {
			p.FRN = *frnCode
		}

		if businessKey != nil {
			p.BusinessKey = *businessKey
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// MarkProcessed stamps processed_at on every listed raw row id, regardless
// of whether the caller's own processing of them succeeded, so the
// controller never thrashes retrying the same rows forever.
func (s *RawProductStore) MarkProcessed(ctx context.Context, x execer, ids []int64, processedAt time.Time) error {
	for _, id := range ids {
		if _, err := x.ExecContext(ctx,
			`UPDATE available_products_raw SET processed_at = ? WHERE id = ?`, processedAt, id); err != nil {
			return fmt.Errorf("storage: mark raw product %d processed: %w", id, err)
		}
	}

	return nil
}

// WriteBusinessKey patches the business_key column after deduplication.
func (s *RawProductStore) WriteBusinessKey(ctx context.Context, x execer, id int64, businessKey string) error {
	_, err := x.ExecContext(ctx,
		`UPDATE available_products_raw SET business_key = ? WHERE id = ?`, businessKey, id)
	if err != nil {
		return fmt.Errorf("storage: write business key for raw product %d: %w", id, err)
	}

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
