package reprocessing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ratevault/pipeline/internal/config"
	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/orchestrator"
	"github.com/ratevault/pipeline/internal/storage"
)

// lockProcessType names the processing_locks row the controller guards
// itself with, distinct
// from the orchestrator's own orchestrator_pipeline_status singleton — the
// two concurrency guards protect different operations and are acquired
// independently.
const lockProcessType = "reprocessing"

// Controller is the reprocessing controller: an event bus with
// listeners for scraper:completed, manual:trigger, and recovery:trigger,
// each invoking the dedup-only path (orchestrator.Engine.Run with
// RebuildOnly set) through a resilience wrapper of lock, timeout, circuit
// breaker, and retry, falling back to a direct copy-through on repeated
// failure.
type Controller struct {
	engine     *orchestrator.Engine
	loader     *config.Loader
	lockStore  *storage.LockStore
	statusGet  func(ctx context.Context) (model.PipelineStatus, error)
	rawStore   *storage.RawProductStore
	histStore  *storage.HistoricalStore
	prodStore  *storage.ProductStore
	db         *sql.DB

	cfg     Config
	breaker *CircuitBreaker
	bus     *Bus
	logger  *slog.Logger
	now     func() time.Time

	failsafe *Failsafe
	kafka    *KafkaConsumer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController wires a Controller from its dependencies. db is the same
// handle passed to orchestrator.NewEngine and storage.NewLockStore — the
// fallback path opens its own transactions against it directly rather than
// running inside one the orchestrator holds, since the two concurrency
// guards (and hence their transactions) are never nested.
func NewController(
	engine *orchestrator.Engine,
	loader *config.Loader,
	lockStore *storage.LockStore,
	statusGet func(ctx context.Context) (model.PipelineStatus, error),
	db *sql.DB,
	cfg Config,
	logger *slog.Logger,
	now func() time.Time,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		engine:    engine,
		loader:    loader,
		lockStore: lockStore,
		statusGet: statusGet,
		rawStore:  storage.NewRawProductStore(),
		histStore: storage.NewHistoricalStore(),
		prodStore: storage.NewProductStore(),
		db:        db,
		cfg:       cfg,
		bus:       NewBus(32),
		logger:    logger,
		now:       now,
	}

	c.breaker = NewCircuitBreaker(cfg, c.onStateChange)

	return c
}

func (c *Controller) onStateChange(from, to BreakerState) {
	c.logger.Warn("reprocessing circuit breaker state changed",
		slog.String("from", from.String()), slog.String("to", to.String()))
}

// Bus exposes the event bus so a Kafka consumer or a CLI/cron caller can
// publish triggers onto it.
func (c *Controller) Bus() *Bus {
	return c.bus
}

// Start begins draining the event bus in a background goroutine, starts
// the scraper.events consumer if KafkaEnabled, and always starts the cron
// failsafe.
// Call Shutdown to stop all of it.
func (c *Controller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.drain(runCtx)
	}()

	if c.cfg.KafkaEnabled {
		c.kafka = NewKafkaConsumer(c.cfg.KafkaBrokers, c.cfg.KafkaTopic, c.cfg.KafkaGroupID, c.bus, c.logger)

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.kafka.Run(runCtx); err != nil {
				c.logger.Error("scraper.events consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	failsafe, err := StartFailsafe(c.cfg.FailsafeInterval, c.busy, c.breakerOpen, c.bus.Publish)
	if err != nil {
		cancel()
		return fmt.Errorf("reprocessing: start failsafe: %w", err)
	}
	c.failsafe = failsafe

	return nil
}

func (c *Controller) breakerOpen() bool {
	return c.breaker.State() == StateOpen
}

func (c *Controller) busy() bool {
	status, err := c.statusGet(context.Background())
	if err != nil {
		// Conservative: if status is unreadable, assume busy rather than
		// risk a failsafe run colliding with an in-flight pipeline run.
		return true
	}

	return status.IsRunning
}

func (c *Controller) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-c.bus.Triggers():
			if err := c.handle(ctx, t); err != nil {
				c.logger.Warn("reprocessing invocation failed", slog.String("trigger", string(t.Type)), slog.String("error", err.Error()))
			}
		}
	}
}

// handle runs the full resilience-wrapped dedup-only path for one trigger:
// acquire the lock, bound the call at ProcessingTimeout, run it through the
// circuit breaker (with a retry nested inside so one retry attempt masking
// a transient failure still counts as a single pass/fail against the
// breaker), and fall back to direct copy-through if it still failed while
// the breaker is not open.
func (c *Controller) handle(ctx context.Context, t Trigger) error {
	lockMetadata := fmt.Sprintf(`{"trigger":%q,"source":%q}`, t.Type, t.Source)

	if err := c.lockStore.Acquire(ctx, lockProcessType, c.now(), lockMetadata); err != nil {
		if errors.Is(err, storage.ErrLockHeld) {
			return nil
		}
		return fmt.Errorf("reprocessing: acquire lock: %w", err)
	}

	runErr := WithTimeout(ctx, c.cfg.ProcessingTimeout, func(tctx context.Context) error {
		return c.breaker.Execute(func() error {
			return Retry(tctx, c.cfg, func() error {
				return c.runDedupOnly(tctx)
			})
		})
	})

	lockStatus := model.LockFreed
	if runErr != nil {
		lockStatus = model.LockFailed

		if c.breaker.State() != StateOpen {
			if fbErr := FallbackCopyThrough(ctx, c.db, c.rawStore, c.histStore, c.prodStore, c.now()); fbErr != nil {
				c.logger.Error("fallback copy-through failed", slog.String("error", fbErr.Error()))
			}
		}
	}

	if relErr := c.lockStore.Release(ctx, lockProcessType, lockStatus); relErr != nil {
		c.logger.Error("failed to release reprocessing lock", slog.String("error", relErr.Error()))
	}

	return runErr
}

func (c *Controller) runDedupOnly(ctx context.Context) error {
	bundle, err := orchestrator.LoadBundle(ctx, c.loader)
	if err != nil {
		return fmt.Errorf("reprocessing: load config bundle: %w", err)
	}

	opts := orchestrator.Options{
		PipelineID:         "reprocessing-" + uuid.NewString(),
		Atomic:             true,
		RebuildOnly:        true,
		DataQualityEnabled: false,
	}

	_, err = c.engine.Run(ctx, bundle, opts, c.now)
	return err
}

// TriggerManualProcessing is an admin operation that runs the dedup-only
// path synchronously rather than enqueuing onto the bus, so the caller
// observes the result directly.
func (c *Controller) TriggerManualProcessing(ctx context.Context) error {
	return c.handle(ctx, Trigger{Type: TriggerManual})
}

// ResetCircuitBreaker is an admin operation that forces the breaker back
// to its closed state.
func (c *Controller) ResetCircuitBreaker() {
	c.breaker.Reset(c.cfg, c.onStateChange)
}

// GetStats reports the circuit breaker's current counters.
func (c *Controller) GetStats() Stats {
	return c.breaker.Stats()
}

// Shutdown clears timers and listeners, stopping the failsafe cron, the
// Kafka consumer (if any), and the drain goroutine, then waits for all of
// them to exit.
func (c *Controller) Shutdown() {
	if c.failsafe != nil {
		c.failsafe.Stop()
	}

	if c.cancel != nil {
		c.cancel()
	}

	if c.kafka != nil {
		if err := c.kafka.Close(); err != nil {
			c.logger.Warn("error closing scraper.events consumer", slog.String("error", err.Error()))
		}
	}

	c.wg.Wait()
}
