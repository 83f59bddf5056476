package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ratevault/pipeline/internal/model"
)

func TestLockStore_AcquireRelease(t *testing.T) {
	db := openTestDB(t)
	store := NewLockStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Acquire(ctx, "reprocessing", now, `{"trigger":"manual"}`); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := store.Release(ctx, "reprocessing", model.LockFreed); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestLockStore_AcquireHeldByOther(t *testing.T) {
	db := openTestDB(t)
	store := NewLockStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Acquire(ctx, "reprocessing", now, ""); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	err := store.Acquire(ctx, "reprocessing", now.Add(time.Minute), "")
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("Acquire() error = %v, want ErrLockHeld", err)
	}
}

func TestLockStore_ReclaimsStaleLock(t *testing.T) {
	db := openTestDB(t)
	store := NewLockStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Acquire(ctx, "reprocessing", now, ""); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	later := now.Add(11 * time.Minute)
	if err := store.Acquire(ctx, "reprocessing", later, `{"trigger":"cron"}`); err != nil {
		t.Fatalf("Acquire() after stale window error = %v, want reclaim to succeed", err)
	}
}
