package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/storage"
)

// RecoverStaleRun inspects the singleton status row at startup and, if a
// run has been marked running for longer than 3x stageTimeout, resets it
// to idle/failed. A run still within that window
// is left alone — it may be a legitimate in-flight process, and the time
// threshold (not storage.PipelineStatusStore.RecoverStaleRunning's own
// unconditional reset) is what distinguishes a crash from a slow stage.
func RecoverStaleRun(ctx context.Context, store *storage.PipelineStatusStore, now time.Time, stageTimeout time.Duration) (bool, error) {
	status, err := store.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("orchestrator: read pipeline status for startup recovery: %w", err)
	}

	if !status.IsRunning || status.StartedAt == nil {
		return false, nil
	}

	if now.Sub(*status.StartedAt) <= 3*stageTimeout {
		return false, nil
	}

	recovered, err := store.RecoverStaleRunning(ctx)
	if err != nil {
		return false, fmt.Errorf("orchestrator: recover stale run %q: %w", status.BatchID, err)
	}

	return recovered, nil
}
