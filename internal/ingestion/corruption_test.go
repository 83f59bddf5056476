package ingestion

import "testing"

func TestCorruptionTracker_BelowThreshold(t *testing.T) {
	tracker := newCorruptionTracker(0.5)

	for i := 0; i < 100; i++ {
		tracker.Observe(i < 40) // 40% failure rate
	}

	if err := tracker.CheckInterval(); err != nil {
		t.Fatalf("CheckInterval() error = %v, want nil at 40%% failures under 50%% threshold", err)
	}
}

func TestCorruptionTracker_AboveThresholdAborts(t *testing.T) {
	tracker := newCorruptionTracker(0.5)

	for i := 0; i < 1000; i++ {
		tracker.Observe(i < 600) // 60% failure rate
	}

	err := tracker.CheckFinal()
	if err == nil {
		t.Fatal("CheckFinal() error = nil, want DATA_CORRUPTION at 60% failures over 50% threshold")
	}

	corruptionErr, ok := err.(*ErrDataCorruption)
	if !ok {
		t.Fatalf("CheckFinal() error type = %T, want *ErrDataCorruption", err)
	}

	if corruptionErr.Total != 1000 || corruptionErr.Failures != 600 {
		t.Errorf("ErrDataCorruption = %+v, want Total=1000 Failures=600", corruptionErr)
	}
}

func TestCorruptionTracker_OnlyChecksEveryHundred(t *testing.T) {
	tracker := newCorruptionTracker(0.1)

	for i := 0; i < 50; i++ {
		tracker.Observe(true)
	}

	if err := tracker.CheckInterval(); err != nil {
		t.Fatalf("CheckInterval() error = %v, want nil before reaching a multiple of 100", err)
	}
}

func TestCorruptionTracker_RateFilteredDoesNotCount(t *testing.T) {
	tracker := newCorruptionTracker(0.1)

	for i := 0; i < 100; i++ {
		tracker.Observe(false) // rate-filtered products are Observe(false): not a validation failure
	}

	if err := tracker.CheckFinal(); err != nil {
		t.Fatalf("CheckFinal() error = %v, want nil when no validation failures were recorded", err)
	}
}
