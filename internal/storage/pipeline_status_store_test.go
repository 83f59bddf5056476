package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

func TestPipelineStatusStore_TryStart(t *testing.T) {
	db := openTestDB(t)
	store := NewPipelineStatusStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.TryStart(ctx, "batch-1", now); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}

	status, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if !status.IsRunning || status.BatchID != "batch-1" || status.CurrentStage != model.StateInitializing {
		t.Fatalf("Get() = %+v, want running batch-1 in initializing", status)
	}
}

func TestPipelineStatusStore_TryStartAlreadyRunning(t *testing.T) {
	db := openTestDB(t)
	store := NewPipelineStatusStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.TryStart(ctx, "batch-1", now); err != nil {
		t.Fatalf("first TryStart() error = %v", err)
	}

	err := store.TryStart(ctx, "batch-2", now.Add(time.Second))
	if !errors.Is(err, ErrPipelineAlreadyRunning) {
		t.Fatalf("TryStart() error = %v, want ErrPipelineAlreadyRunning", err)
	}
}

func TestPipelineStatusStore_AdvanceAndFinish(t *testing.T) {
	db := openTestDB(t)
	store := NewPipelineStatusStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.TryStart(ctx, "batch-1", now); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}

	if err := store.AdvanceStage(ctx, model.StateFRNMatching); err != nil {
		t.Fatalf("AdvanceStage() error = %v", err)
	}

	if err := store.Finish(ctx, model.StateCompleted); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	status, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if status.IsRunning || status.CurrentStage != model.StateCompleted {
		t.Fatalf("Get() = %+v, want idle completed", status)
	}
}

func TestPipelineStatusStore_RecoverStaleRunning(t *testing.T) {
	db := openTestDB(t)
	store := NewPipelineStatusStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.TryStart(ctx, "batch-1", now); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}

	recovered, err := store.RecoverStaleRunning(ctx)
	if err != nil {
		t.Fatalf("RecoverStaleRunning() error = %v", err)
	}

	if !recovered {
		t.Fatal("RecoverStaleRunning() = false, want true for a dangling running row")
	}

	status, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if status.IsRunning || status.CurrentStage != model.StateFailed {
		t.Fatalf("Get() after recovery = %+v, want idle/failed", status)
	}
}

func TestPipelineStatusStore_RecoverStaleRunning_Noop(t *testing.T) {
	db := openTestDB(t)
	store := NewPipelineStatusStore(db)
	ctx := context.Background()

	recovered, err := store.RecoverStaleRunning(ctx)
	if err != nil {
		t.Fatalf("RecoverStaleRunning() error = %v", err)
	}

	if recovered {
		t.Fatal("RecoverStaleRunning() = true on a fresh idle table, want false")
	}
}
