package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

// ErrPipelineAlreadyRunning is returned by TryStart when another run is
// already in progress — the orchestrator's single-flight guard (spec
// §4.8: "concurrency guard via a singleton status row").
var ErrPipelineAlreadyRunning = errors.New("pipeline already running")

// PipelineStatusStore persists orchestrator_pipeline_status, the singleton
// (id = 1) row guarding against two concurrent orchestration runs and
// letting a new process detect a stale "running" status left by a crash.
type PipelineStatusStore struct {
	db *sql.DB
}

// NewPipelineStatusStore constructs a PipelineStatusStore over db.
func NewPipelineStatusStore(db *sql.DB) *PipelineStatusStore {
	return &PipelineStatusStore{db: db}
}

// Get reads the current singleton status row, reporting an idle status
// (without writing a row) if the table is empty.
func (s *PipelineStatusStore) Get(ctx context.Context) (model.PipelineStatus, error) {
	var (
		status    model.PipelineStatus
		stage     string
		batchID   sql.NullString
		startedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT is_running, current_stage, batch_id, started_at FROM orchestrator_pipeline_status WHERE id = 1`).
		Scan(&status.IsRunning, &stage, &batchID, &startedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.PipelineStatus{CurrentStage: model.StateIdle}, nil
	case err != nil:
		return model.PipelineStatus{}, fmt.Errorf("storage: get pipeline status: %w", err)
	}

	status.CurrentStage = model.OrchestratorState(stage)
	if batchID.Valid {
		status.BatchID = batchID.String
	}

	if startedAt.Valid {
		status.StartedAt = &startedAt.Time
	}

	return status, nil
}

// TryStart atomically claims the singleton row for a new run, failing with
// ErrPipelineAlreadyRunning if one is already marked running.
func (s *PipelineStatusStore) TryStart(ctx context.Context, batchID string, now time.Time) error {
	return RunInTransaction(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.getTx(ctx, tx)
		if err != nil {
			return err
		}

		if current.IsRunning {
			return fmt.Errorf("%w: batch %q in stage %q", ErrPipelineAlreadyRunning, current.BatchID, current.CurrentStage)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO orchestrator_pipeline_status (id, is_running, current_stage, batch_id, started_at)
			 VALUES (1, 1, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET is_running = 1, current_stage = excluded.current_stage,
			                                batch_id = excluded.batch_id, started_at = excluded.started_at`,
			string(model.StateInitializing), batchID, now)
		if err != nil {
			return fmt.Errorf("storage: start pipeline status: %w", err)
		}

		return nil
	})
}

func (s *PipelineStatusStore) getTx(ctx context.Context, tx *sql.Tx) (model.PipelineStatus, error) {
	var (
		status  model.PipelineStatus
		stage   string
		batchID sql.NullString
	)

	err := tx.QueryRowContext(ctx,
		`SELECT is_running, current_stage, batch_id FROM orchestrator_pipeline_status WHERE id = 1`).
		Scan(&status.IsRunning, &stage, &batchID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.PipelineStatus{CurrentStage: model.StateIdle}, nil
	case err != nil:
		return model.PipelineStatus{}, fmt.Errorf("storage: get pipeline status in tx: %w", err)
	}

	status.CurrentStage = model.OrchestratorState(stage)
	if batchID.Valid {
		status.BatchID = batchID.String
	}

	return status, nil
}

// AdvanceStage updates current_stage for the in-flight run.
func (s *PipelineStatusStore) AdvanceStage(ctx context.Context, stage model.OrchestratorState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orchestrator_pipeline_status SET current_stage = ? WHERE id = 1`, string(stage))
	if err != nil {
		return fmt.Errorf("storage: advance pipeline stage to %q: %w", stage, err)
	}

	return nil
}

// Finish clears is_running and records the terminal stage (completed or
// failed), releasing the concurrency guard.
func (s *PipelineStatusStore) Finish(ctx context.Context, terminal model.OrchestratorState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orchestrator_pipeline_status SET is_running = 0, current_stage = ? WHERE id = 1`, string(terminal))
	if err != nil {
		return fmt.Errorf("storage: finish pipeline status: %w", err)
	}

	return nil
}

// RecoverStaleRunning detects a status row left "running" by a crashed
// process (no clean Finish call) and resets it to failed so the next run
// isn't blocked forever.
func (s *PipelineStatusStore) RecoverStaleRunning(ctx context.Context) (bool, error) {
	status, err := s.Get(ctx)
	if err != nil {
		return false, err
	}

	if !status.IsRunning {
		return false, nil
	}

	if err := s.Finish(ctx, model.StateFailed); err != nil {
		return false, fmt.Errorf("storage: recover stale running status: %w", err)
	}

	return true, nil
}
