// Package ingestion implements the pipeline's first processing stage:
// parsing scraper JSON batches, normalizing platform/account-type fields,
// evaluating the declarative rules engine and configurable range checks,
// applying the rate-threshold filter, and tracking the corruption fuse.
package ingestion

import "time"

// FileMetadata is the required envelope every input JSON batch carries.
// Missing source or method fails the whole file with ErrMissingMetadata.
type FileMetadata struct {
	Source string `json:"source"`
	Method string `json:"method"`
}

// RawProductInput is one product exactly as it appears in the scraper's
// JSON payload, before any normalization or validation.
type RawProductInput struct {
	Platform         string   `json:"platform"`
	BankName         string   `json:"bank_name"`
	AccountType      string   `json:"account_type"`
	AERRate          *float64 `json:"aer_rate"`
	GrossRate        *float64 `json:"gross_rate,omitempty"`
	TermMonths       *int     `json:"term_months,omitempty"`
	NoticePeriodDays *int     `json:"notice_period_days,omitempty"`
	MinDeposit       *float64 `json:"min_deposit,omitempty"`
	MaxDeposit       *float64 `json:"max_deposit,omitempty"`
	FSCSProtected    *bool    `json:"fscs_protected,omitempty"`
	ScrapeDate       string   `json:"scrape_date"`
}

// Batch is the top-level shape of one input JSON file: {metadata, products}.
type Batch struct {
	Metadata FileMetadata       `json:"metadata"`
	Products []RawProductInput `json:"products"`
}

// parsedScrapeDate parses p.ScrapeDate, defaulting to now if the field is
// blank — a scraper that omits it still gets a usable audit timestamp
// rather than a zero-value date silently corrupting history queries.
func (p RawProductInput) parsedScrapeDate(now time.Time) time.Time {
	if p.ScrapeDate == "" {
		return now
	}

	if t, err := time.Parse("2006-01-02", p.ScrapeDate); err == nil {
		return t
	}

	if t, err := time.Parse(time.RFC3339, p.ScrapeDate); err == nil {
		return t
	}

	return now
}
