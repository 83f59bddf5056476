package reprocessing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/storage"
)

// FallbackCopyThrough runs after repeated processing failure while the
// breaker is still closed: every raw row the normal dedup-only path never
// finished (processed_at IS NULL) is copied directly into the canonical
// table, after archiving the table's current contents, and then —
// regardless of whether the copy itself succeeded — every affected row is
// stamped processed so the controller does not retry the same rows
// forever.
//
// Platform category defaults to aggregator: the fallback path bypasses
// canonicalization entirely, and aggregator is the conservative
// classification (it never claims a product came straight from the
// issuing bank's own channel).
func FallbackCopyThrough(ctx context.Context, db *sql.DB, rawStore *storage.RawProductStore, historicalStore *storage.HistoricalStore, productStore *storage.ProductStore, now time.Time) error {
	unprocessed, err := rawStore.Unprocessed(ctx, db)
	if err != nil {
		return fmt.Errorf("reprocessing: load unprocessed raw rows: %w", err)
	}

	if len(unprocessed) == 0 {
		return nil
	}

	ids := make([]int64, len(unprocessed))
	for i, r := range unprocessed {
		ids[i] = r.ID
	}

	copyErr := storage.RunInTransaction(ctx, db, func(tx *sql.Tx) error {
		if err := historicalStore.Archive(ctx, tx, now); err != nil {
			return err
		}

		for _, raw := range unprocessed {
			if err := productStore.InsertFallback(ctx, tx, raw, model.PlatformAggregator); err != nil {
				return err
			}
		}

		return nil
	})

	markErr := rawStore.MarkProcessed(ctx, db, ids, now)

	return errors.Join(
		wrapIfErr(copyErr, "reprocessing: fallback copy-through"),
		wrapIfErr(markErr, "reprocessing: mark fallback rows processed"),
	)
}

func wrapIfErr(err error, context string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", context, err)
}
