package frn

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ratevault/pipeline/internal/canonicalization"
)

// defaultResearchQueueRate caps research queue inserts at a steady rate
// rather than ingestion's own pace: a single large batch can surface
// thousands of never-matched bank names at once, and writing them all in
// one burst against SQLite's single-writer connection would starve the
// rest of the FRN matching stage's own writes for the duration.
const defaultResearchQueueRate = 50 // inserts per second

// ResearchQueue persists bank names that resolved weakly or not at all,
// deduplicated on (bank_name, platform, source) and capped at a configured
// size. Each call takes its own execer rather than
// ResearchQueue holding one, so a run under the orchestrator's atomic
// commit mode shares the in-flight transaction instead of requesting a
// second connection SQLite's single-connection pool has none spare to give.
type ResearchQueue struct {
	capacity int
	limiter  *rate.Limiter
}

// NewResearchQueue constructs a ResearchQueue with the configured maximum
// row count, throttling Enqueue to defaultResearchQueueRate inserts/sec.
func NewResearchQueue(capacity int) *ResearchQueue {
	return &ResearchQueue{
		capacity: capacity,
		limiter:  rate.NewLimiter(rate.Limit(defaultResearchQueueRate), defaultResearchQueueRate),
	}
}

// AtCapacity reports whether the queue already holds capacity rows.
func (q *ResearchQueue) AtCapacity(ctx context.Context, db Execer) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frn_research_queue`).Scan(&count); err != nil {
		return false, fmt.Errorf("frn: count research queue: %w", err)
	}

	return count >= q.capacity, nil
}

// AlreadyQueued reports whether the (bankName, platform, source) triple is
// already present.
func (q *ResearchQueue) AlreadyQueued(ctx context.Context, db Execer, bankName, platform, source string) (bool, error) {
	fp := canonicalization.ResearchQueueFingerprint(bankName, platform, source)

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM frn_research_queue WHERE fingerprint = ?`, fp).Scan(&count); err != nil {
		return false, fmt.Errorf("frn: check research queue membership: %w", err)
	}

	return count > 0, nil
}

// Enqueue inserts a new research queue entry. Callers must already have
// checked AlreadyQueued and AtCapacity via Resolver.ShouldQueue. Blocks
// briefly under the configured insert-rate limiter before writing.
func (q *ResearchQueue) Enqueue(ctx context.Context, db Execer, bankName, platform, source string) error {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("frn: research queue rate limit: %w", err)
		}
	}

	fp := canonicalization.ResearchQueueFingerprint(bankName, platform, source)

	_, err := db.ExecContext(ctx,
		`INSERT INTO frn_research_queue (fingerprint, bank_name, platform, source, first_seen)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`, fp, bankName, platform, source)
	if err != nil {
		return fmt.Errorf("frn: enqueue research entry: %w", err)
	}

	return nil
}
