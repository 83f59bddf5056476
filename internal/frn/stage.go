package frn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/storage"
)

// Execer is satisfied structurally by *sql.DB, *sql.Tx, and the local
// Execer declared by internal/ingestion and internal/dedup — the FRN
// matching stage needs to patch the raw table from inside either an
// atomic or incremental commit.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Stage runs FRN matching over a batch of parsed products: resolve each
// against the cache, write the result back onto its raw row, and queue
// weak/no matches for manual research.
type Stage struct {
	resolver *Resolver
	queue    *ResearchQueue
	store    *storage.RawProductStore
}

// NewStage constructs a Stage.
func NewStage(resolver *Resolver, queue *ResearchQueue, store *storage.RawProductStore) *Stage {
	return &Stage{resolver: resolver, queue: queue, store: store}
}

// Outcome summarizes one Run call across every processed product.
type Outcome struct {
	Enriched []model.EnrichedProduct
	Matched, ResearchQueued, NoMatch int
}

// Item is one per-product audit detail, returned alongside Outcome so the
// caller (the orchestrator, via internal/audit) can record one row per
// resolved product without this package depending on internal/audit.
type Item struct {
	BankName           string
	NormalizedBankName string
	FRN                string
	Confidence         float64
	Status             model.FRNStatus
}

// Run resolves every product's FRN, writes the result back onto the raw
// row (skipping rows with no persisted ID, e.g. products assembled purely
// in-memory for a test), and enqueues weak/no-match names for research.
func (s *Stage) Run(ctx context.Context, db Execer, products []model.ParsedProduct, now time.Time) (Outcome, []Item, error) {
	var out Outcome
	items := make([]Item, 0, len(products))

	for _, p := range products {
		res := s.resolver.Resolve(p.Raw.BankName)

		enriched := model.EnrichedProduct{
			Parsed:             p,
			FRN:                res.FRN,
			FRNConfidence:      res.Confidence,
			FRNStatus:          res.Status,
			FRNSource:          res.Source,
			MatchType:          string(res.MatchType),
			NormalizedBankName: res.NormalizedBankName,
		}
		out.Enriched = append(out.Enriched, enriched)

		items = append(items, Item{
			BankName:           p.Raw.BankName,
			NormalizedBankName: res.NormalizedBankName,
			FRN:                res.FRN,
			Confidence:         res.Confidence,
			Status:             res.Status,
		})

		switch res.Status {
		case model.FRNMatched:
			out.Matched++
		case model.FRNResearchQueue:
			out.ResearchQueued++
		default:
			out.NoMatch++
		}

		if p.Raw.ID != 0 {
			if err := s.store.WriteFRNResult(ctx, db, p.Raw.ID, res.FRN, res.Confidence, now); err != nil {
				return Outcome{}, nil, fmt.Errorf("frn: write back result for raw product %d: %w", p.Raw.ID, err)
			}
		}

		if err := s.maybeEnqueue(ctx, db, res, p); err != nil {
			return Outcome{}, nil, err
		}
	}

	return out, items, nil
}

func (s *Stage) maybeEnqueue(ctx context.Context, db Execer, res Result, p model.ParsedProduct) error {
	if s.queue == nil {
		return nil
	}

	alreadyQueued, err := s.queue.AlreadyQueued(ctx, db, p.Raw.BankName, p.Raw.Platform, p.Raw.Source)
	if err != nil {
		return fmt.Errorf("frn: check research queue membership: %w", err)
	}

	atCapacity, err := s.queue.AtCapacity(ctx, db)
	if err != nil {
		return fmt.Errorf("frn: check research queue capacity: %w", err)
	}

	if !s.resolver.ShouldQueue(res, alreadyQueued, atCapacity) {
		return nil
	}

	if err := s.queue.Enqueue(ctx, db, p.Raw.BankName, p.Raw.Platform, p.Raw.Source); err != nil {
		return fmt.Errorf("frn: enqueue research entry: %w", err)
	}

	return nil
}
