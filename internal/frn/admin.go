package frn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/canonicalization"
)

// AddManualOverride inserts a new frn_manual_overrides row and immediately
// rebuilds cache in place (SPEC_FULL §4.5a: "manual override additions must
// trigger a cache rebuild"). authorHash is a bcrypt hash produced by
// storage.HashOverrideAuthor, never the plaintext author identity.
func AddManualOverride(
	ctx context.Context,
	db *sql.DB,
	cache *Cache,
	bankCfg canonicalization.BankNameConfig,
	varCfg canonicalization.VariationConfig,
	frnCode, sourceBankName, canonicalName, authorHash string,
	now time.Time,
) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO frn_manual_overrides (frn, bank_name, source_bank_name, applied_by_hash, applied_at, active)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		frnCode, canonicalName, sourceBankName, authorHash, now)
	if err != nil {
		return fmt.Errorf("frn: insert manual override: %w", err)
	}

	if err := cache.Rebuild(ctx, db, bankCfg, varCfg); err != nil {
		return fmt.Errorf("frn: rebuild cache after manual override: %w", err)
	}

	return nil
}

// ResearchQueueEntry is one row of frn_research_queue, exposed for the CLI's
// --list-research-queue admin operation.
type ResearchQueueEntry struct {
	BankName  string    `json:"bankName"`
	Platform  string    `json:"platform"`
	Source    string    `json:"source"`
	FirstSeen time.Time `json:"firstSeen"`
}

// ListResearchQueue dumps the current research queue ordered by first_seen,
// oldest first, so an operator triaging unmatched bank names sees the
// longest-standing gaps first.
func ListResearchQueue(ctx context.Context, db *sql.DB) ([]ResearchQueueEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT bank_name, platform, source, first_seen FROM frn_research_queue ORDER BY first_seen ASC`)
	if err != nil {
		return nil, fmt.Errorf("frn: query research queue: %w", err)
	}
	defer rows.Close()

	var out []ResearchQueueEntry

	for rows.Next() {
		var e ResearchQueueEntry
		if err := rows.Scan(&e.BankName, &e.Platform, &e.Source, &e.FirstSeen); err != nil {
			return nil, fmt.Errorf("frn: scan research queue row: %w", err)
		}

		out = append(out, e)
	}

	return out, rows.Err()
}
