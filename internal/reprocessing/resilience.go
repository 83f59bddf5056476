package reprocessing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// BreakerState mirrors gobreaker's three states (closed -> open ->
// half_open -> closed).
type BreakerState int

const (
	StateClosed   BreakerState = BreakerState(gobreaker.StateClosed)
	StateHalfOpen BreakerState = BreakerState(gobreaker.StateHalfOpen)
	StateOpen     BreakerState = BreakerState(gobreaker.StateOpen)
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by CircuitBreaker.Execute when the breaker is
// open and rejecting calls outright.
var ErrCircuitOpen = errors.New("reprocessing: circuit breaker is open")

// ErrTooManyRequests is returned when a half-open probe slot is already in
// use and a second caller tries to invoke through the breaker.
var ErrTooManyRequests = errors.New("reprocessing: too many requests in half-open state")

// CircuitBreaker wraps gobreaker.CircuitBreaker with the stats
// (totalErrors / consecutiveErrors) the controller's getStats admin
// operation exposes, on top of the state
// machine itself.
type CircuitBreaker struct {
	gb *gobreaker.CircuitBreaker[any]

	mu               sync.Mutex
	totalInvocations int
	totalErrors      int
	consecutiveErrors int
}

// NewCircuitBreaker constructs a CircuitBreaker from cfg.
func NewCircuitBreaker(cfg Config, onStateChange func(from, to BreakerState)) *CircuitBreaker {
	cb := &CircuitBreaker{}

	threshold := uint32(cfg.CircuitBreakerThreshold)
	halfOpenMax := uint32(cfg.CircuitBreakerHalfOpenMax)
	if halfOpenMax == 0 {
		halfOpenMax = 1
	}

	settings := gobreaker.Settings{
		MaxRequests: halfOpenMax,
		Timeout:     cfg.CircuitBreakerResetAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	if onStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onStateChange(BreakerState(from), BreakerState(to))
		}
	}

	cb.gb = gobreaker.NewCircuitBreaker[any](settings)

	return cb
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	return BreakerState(cb.gb.State())
}

// Stats is a snapshot of the breaker's invocation counters, returned by
// the controller's getStats admin operation.
type Stats struct {
	State             string
	TotalInvocations  int
	TotalErrors       int
	ConsecutiveErrors int
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:             cb.State().String(),
		TotalInvocations:  cb.totalInvocations,
		TotalErrors:       cb.totalErrors,
		ConsecutiveErrors: cb.consecutiveErrors,
	}
}

// Reset forces the breaker back to closed with its counters cleared,
// backing the controller's resetCircuitBreaker admin operation.
// gobreaker has no direct reset call, so this discards the old
// breaker and builds a fresh one with the same settings — callers only
// ever observe state through this CircuitBreaker value, never the
// underlying *gobreaker.CircuitBreaker, so the swap is invisible to them.
func (cb *CircuitBreaker) Reset(cfg Config, onStateChange func(from, to BreakerState)) {
	fresh := NewCircuitBreaker(cfg, onStateChange)

	cb.mu.Lock()
	cb.gb = fresh.gb
	cb.totalInvocations = 0
	cb.totalErrors = 0
	cb.consecutiveErrors = 0
	cb.mu.Unlock()
}

// Execute runs fn with circuit breaker protection, counting the call
// toward Stats regardless of outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := cb.gb.Execute(func() (any, error) {
		return nil, fn()
	})

	cb.mu.Lock()
	cb.totalInvocations++
	if err != nil {
		cb.totalErrors++
		cb.consecutiveErrors++
	} else {
		cb.consecutiveErrors = 0
	}
	cb.mu.Unlock()

	if err != nil {
		return mapGobreakerError(err)
	}

	return nil
}

func mapGobreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrCircuitOpen
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrTooManyRequests
	}
	return err
}

// Retry executes fn with exponential backoff via cenkalti/backoff. Callers
// nest Retry inside CircuitBreaker.Execute, not the other way around, so a
// single transient failure masked by a successful retry never reaches the
// breaker's consecutive-failure count — the breaker only sees one pass or
// fail per logical invocation, after retries are exhausted.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	maxAttempts := cfg.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.RetryInitialDelay > 0 {
		bo.InitialInterval = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		bo.MaxInterval = cfg.RetryMaxDelay
	}
	if cfg.RetryMultiplier > 0 {
		bo.Multiplier = cfg.RetryMultiplier
	}
	bo.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock

	withMax := backoff.WithMaxRetries(bo, uint64(maxAttempts-1))
	withCtx := backoff.WithContext(withMax, ctx)

	return backoff.Retry(func() error {
		return fn()
	}, withCtx)
}

// WithTimeout bounds one invocation of fn at d.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- fn(tctx)
	}()

	select {
	case <-tctx.Done():
		return tctx.Err()
	case err := <-done:
		return err
	}
}
