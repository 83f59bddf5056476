package ingestion

import "fmt"

// ErrDataCorruption is a critical error: the validation-failure rate
// exceeded the configured threshold, so the run aborts and the canonical
// table is left untouched.
type ErrDataCorruption struct {
	Total      int
	Failures   int
	Threshold  float64
}

func (e *ErrDataCorruption) Error() string {
	return fmt.Sprintf("DATA_CORRUPTION: %d/%d products failed validation (rate %.4f exceeds threshold %.4f)",
		e.Failures, e.Total, e.rate(), e.Threshold)
}

func (e *ErrDataCorruption) rate() float64 {
	if e.Total == 0 {
		return 0
	}

	return float64(e.Failures) / float64(e.Total)
}

// corruptionTracker maintains the per-run {total, validationFailures}
// counters and checks the fuse every 100 products and once at the end.
// Rate-filtered rejections do not count as failures.
type corruptionTracker struct {
	threshold float64
	total     int
	failures  int
}

func newCorruptionTracker(threshold float64) *corruptionTracker {
	return &corruptionTracker{threshold: threshold}
}

// Observe records one product's outcome. failed marks a validation failure
// (counts toward the fuse); rate-filtered products pass failed=false since
// they are excluded from the failure count entirely.
func (c *corruptionTracker) Observe(failed bool) {
	c.total++

	if failed {
		c.failures++
	}
}

// CheckInterval runs the fuse check if total is a multiple of 100,
// returning an error if the run should abort.
func (c *corruptionTracker) CheckInterval() error {
	if c.total == 0 || c.total%100 != 0 {
		return nil
	}

	return c.check()
}

// CheckFinal runs the fuse check unconditionally, for the end-of-file pass.
func (c *corruptionTracker) CheckFinal() error {
	return c.check()
}

func (c *corruptionTracker) check() error {
	if c.total == 0 {
		return nil
	}

	rate := float64(c.failures) / float64(c.total)
	if rate > c.threshold {
		return &ErrDataCorruption{Total: c.total, Failures: c.failures, Threshold: c.threshold}
	}

	return nil
}
