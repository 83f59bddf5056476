package dedup

import (
	"context"
	"fmt"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/ingestion"
	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/storage"
)

// Stage runs the deduplication algorithm over every enriched product
// from the current run (or, in --rebuild-only mode, the entire raw
// table), grouped by business key.
type Stage struct {
	cfg       Config
	bankCfg   canonicalization.BankNameConfig
	rawStore  *storage.RawProductStore
}

// NewStage constructs a dedup Stage.
func NewStage(cfg Config, bankCfg canonicalization.BankNameConfig, rawStore *storage.RawProductStore) *Stage {
	return &Stage{cfg: cfg, bankCfg: bankCfg, rawStore: rawStore}
}

// Outcome summarizes one dedup run.
type Outcome struct {
	Final      []model.FinalProduct
	Violations []Violation
	GroupCount int
}

// Run groups products by business key, deduplicates each group, writes
// the resulting business key back onto every contributing raw row as a
// side effect, and returns the winners for publication to the canonical
// table.
func (s *Stage) Run(ctx context.Context, db ingestion.Execer, products []model.EnrichedProduct) (Outcome, error) {
	groups := make(map[string][]model.EnrichedProduct)

	for _, p := range products {
		key := BusinessKey(p, s.bankCfg)
		groups[key] = append(groups[key], p)
	}

	var outcome Outcome

	for key, group := range groups {
		result := Deduplicate(key, group, s.cfg, s.bankCfg)

		outcome.Violations = append(outcome.Violations, result.Violations...)
		outcome.Final = append(outcome.Final, result.Winners...)
		outcome.GroupCount++

		for _, p := range group {
			if p.Parsed.Raw.ID == 0 {
				continue // rebuild-from-memory paths without a persisted ID yet
			}

			if err := s.rawStore.WriteBusinessKey(ctx, db, p.Parsed.Raw.ID, key); err != nil {
				return Outcome{}, fmt.Errorf("dedup: write business key for product %d: %w", p.Parsed.Raw.ID, err)
			}
		}
	}

	return outcome, nil
}
