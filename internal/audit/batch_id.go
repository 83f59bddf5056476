// Package audit records the regulatory audit trail: one pipeline_batch row
// per run, plus the per-stage detail rows (ingestion, FRN matching,
// dedup group, data-quality report) that justify every decision the
// pipeline made.
package audit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// batchCounter is a per-process monotonic counter folded into every batch
// ID so two batches created in the same process within the same
// millisecond still sort and compare distinctly.
var batchCounter atomic.Uint32

// NewBatchID generates a monotonic batch identifier guaranteed unique
// across processes and immune to rapid re-creation.
//
// Format: {unixNanoTimestamp}-{pid}-{counter}-{randomSuffix}
func NewBatchID(now time.Time) (string, error) {
	counter := batchCounter.Add(1)

	suffix, err := randomSuffix(4)
	if err != nil {
		return "", fmt.Errorf("audit: generate batch id: %w", err)
	}

	return fmt.Sprintf("%d-%d-%d-%s", now.UnixNano(), os.Getpid(), counter, suffix), nil
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
