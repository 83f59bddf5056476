package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ratevault/pipeline/internal/audit"
	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/dedup"
	"github.com/ratevault/pipeline/internal/frn"
	"github.com/ratevault/pipeline/internal/ingestion"
	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/quality"
	"github.com/ratevault/pipeline/internal/rules"
	"github.com/ratevault/pipeline/internal/storage"
)

// ErrConcurrentExecution aborts a run when another one is already in
// progress (the concurrency guard).
var ErrConcurrentExecution = errors.New("CONCURRENT_EXECUTION")

// errDryRunRollback is returned by runContext.execute at the very end of a
// successful DryRun, so storage.RunInTransaction rolls back every stage
// write instead of committing it. Run unwraps it back into a clean,
// completed result rather than surfacing it as a failure.
var errDryRunRollback = errors.New("orchestrator: dry run complete, rolling back")

// Engine drives ingestion, FRN matching, deduplication, and optionally
// data quality analysis through one state machine. One Engine is built
// per process and reused across runs; it holds no per-run state itself
// (see run for that).
type Engine struct {
	db     *sql.DB
	logger *slog.Logger

	statusStore     *storage.PipelineStatusStore
	rawStore        *storage.RawProductStore
	productStore    *storage.ProductStore
	historicalStore *storage.HistoricalStore
	reportStore     *quality.ReportStore

	rulesEngine *rules.Engine

	stageTimeout time.Duration
}

// NewEngine constructs an Engine over an already-opened database handle.
func NewEngine(db *sql.DB, rulesEngine *rules.Engine, logger *slog.Logger, stageTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		db:              db,
		logger:          logger,
		statusStore:     storage.NewPipelineStatusStore(db),
		rawStore:        storage.NewRawProductStore(),
		productStore:    storage.NewProductStore(),
		historicalStore: storage.NewHistoricalStore(),
		reportStore:     quality.NewReportStore(),
		rulesEngine:     rulesEngine,
		stageTimeout:    stageTimeout,
	}
}

// Options configures one Run invocation.
type Options struct {
	PipelineID string

	// Atomic requests the atomic commit mode. Silently
	// downgraded to incremental when StopAfterStage is set, since early
	// exit is incompatible with a single all-or-nothing transaction.
	Atomic bool

	StopAfterStage *model.Stage
	RebuildOnly    bool
	DataQualityEnabled bool

	// DryRun runs every stage up to StopAfterStage (or all of them) and
	// then rolls back instead of committing, regardless of Atomic — a
	// dry run that committed partial work would defeat its own purpose.
	// The audit trail (pipeline_batch/pipeline_audit rows, written
	// through the recorder's own connection rather than this run's
	// transaction) still records that the attempt happened.
	DryRun bool

	Files []FileInput

	Emit        Emitter
	AuditDetail audit.DetailLevel
}

// FileInput is one decoded input file awaiting ingestion.
type FileInput struct {
	Path  string
	Batch ingestion.Batch
}

// allStages lists every stage in declared order, used both to
// pre-initialize audit rows and to decide where StopAfterStage cuts the
// run short.
var allStages = []model.Stage{
	model.StageJSONIngestion, model.StageFRNMatching, model.StageDeduplication, model.StageDataQuality,
}

// Run executes one full pipeline run under the concurrency guard,
// returning the completed (or failed) batch record. now is injected so
// the whole run is deterministic and testable.
func (e *Engine) Run(ctx context.Context, bundle Bundle, opts Options, now func() time.Time) (model.PipelineBatch, error) {
	nowTime := now()

	batchID, err := audit.NewBatchID(nowTime)
	if err != nil {
		return model.PipelineBatch{}, fmt.Errorf("orchestrator: generate batch id: %w", err)
	}

	if err := e.statusStore.TryStart(ctx, batchID, nowTime); err != nil {
		if errors.Is(err, storage.ErrPipelineAlreadyRunning) {
			return model.PipelineBatch{}, fmt.Errorf("%w: %v", ErrConcurrentExecution, err)
		}
		return model.PipelineBatch{}, fmt.Errorf("orchestrator: start run: %w", err)
	}

	recorder := audit.NewRecorder(e.db, batchID, opts.AuditDetail)
	if err := recorder.CreateBatch(ctx, opts.PipelineID, nowTime); err != nil {
		return model.PipelineBatch{}, err
	}
	if err := recorder.InitializeAllStages(ctx, allStages); err != nil {
		return model.PipelineBatch{}, err
	}

	opts.Emit.emit(Event{Type: EventPipelineStarted, BatchID: batchID})

	atomic := (opts.Atomic && opts.StopAfterStage == nil) || opts.DryRun

	run := &runContext{
		engine:    e,
		bundle:    bundle,
		opts:      opts,
		recorder:  recorder,
		batchID:   batchID,
		startedAt: nowTime,
		now:       now,
		atomic:    atomic,
	}

	var runErr error
	if atomic {
		runErr = storage.RunInTransaction(ctx, e.db, func(tx *sql.Tx) error {
			return run.execute(ctx, tx)
		})
	} else {
		runErr = run.execute(ctx, e.db)
	}

	dryRunOK := errors.Is(runErr, errDryRunRollback)
	if dryRunOK {
		runErr = nil
	}

	completedAt := now()
	batch := model.PipelineBatch{BatchID: batchID, PipelineID: opts.PipelineID, StartedAt: nowTime, CompletedAt: &completedAt}

	terminal := model.StateCompleted
	batchStatus := model.BatchCompleted

	if runErr != nil {
		terminal = model.StateFailed
		batchStatus = model.BatchFailed
		batch.ErrorMessage = runErr.Error()
	}

	batch.Status = batchStatus

	if err := e.statusStore.Finish(ctx, terminal); err != nil {
		e.logger.Error("failed to finalize pipeline status", slog.String("batch_id", batchID), slog.String("error", err.Error()))
	}

	if err := recorder.Flush(ctx); err != nil {
		e.logger.Error("failed to flush audit buffer", slog.String("batch_id", batchID), slog.String("error", err.Error()))
	}

	if err := recorder.CompleteBatch(ctx, batchStatus, batch.ErrorMessage, completedAt); err != nil {
		e.logger.Error("failed to complete batch row", slog.String("batch_id", batchID), slog.String("error", err.Error()))
	}

	if runErr != nil {
		opts.Emit.emit(Event{Type: EventPipelineFailed, BatchID: batchID, Err: runErr, Message: runErr.Error()})
		return batch, runErr
	}

	if dryRunOK {
		opts.Emit.emit(Event{Type: EventPipelineCompleted, BatchID: batchID, Message: "dry run: all stage writes rolled back"})
		return batch, nil
	}

	if err := storage.Checkpoint(ctx, e.db); err != nil {
		e.logger.Warn("wal checkpoint failed", slog.String("batch_id", batchID), slog.String("error", err.Error()))
	}

	if !opts.RebuildOnly {
		var paths []string
		for _, f := range opts.Files {
			paths = append(paths, f.Path)
		}
		for _, w := range CleanupInputFiles(paths) {
			e.logger.Warn("input file cleanup warning", slog.String("path", w.Path), slog.String("error", w.Err.Error()))
		}
	}

	opts.Emit.emit(Event{Type: EventPipelineCompleted, BatchID: batchID})

	return batch, nil
}

// runContext carries the state for one in-flight Run call across its
// stage sequence, so execute (which may run either against *sql.DB or an
// in-flight *sql.Tx) doesn't need a growing parameter list.
type runContext struct {
	engine    *Engine
	bundle    Bundle
	opts      Options
	recorder  *audit.Recorder
	batchID   string
	startedAt time.Time
	now       func() time.Time
	atomic    bool
}

// execer is the structural interface both *sql.DB and *sql.Tx satisfy,
// mirroring every stage package's own locally-declared Execer.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execute runs every stage the options call for, then — for a DryRun —
// converts a clean finish into errDryRunRollback so the enclosing atomic
// transaction rolls back instead of committing. A real stage error is
// returned as-is either way.
func (r *runContext) execute(ctx context.Context, db execer) error {
	if err := r.runStages(ctx, db); err != nil {
		return err
	}

	if r.opts.DryRun {
		return errDryRunRollback
	}

	return nil
}

func (r *runContext) runStages(ctx context.Context, db execer) error {
	e := r.engine

	var parsed []model.ParsedProduct

	if r.opts.RebuildOnly {
		r.engine.logger.Info("rebuild-only: loading full raw table", slog.String("batch_id", r.batchID))

		raw, err := e.rawStore.AllForRebuild(ctx, db)
		if err != nil {
			return fmt.Errorf("orchestrator: load raw table for rebuild: %w", err)
		}

		parsed = make([]model.ParsedProduct, len(raw))
		for i, rp := range raw {
			parsed[i] = rawToParsed(rp, r.bundle)
		}
	} else {
		var err error
		parsed, err = r.runIngestion(ctx, db)
		if err != nil {
			return err
		}

		if r.stopAfter(model.StageJSONIngestion) {
			return nil
		}
	}

	enriched, err := r.runFRNMatching(ctx, db, parsed)
	if err != nil {
		return err
	}

	if r.stopAfter(model.StageFRNMatching) {
		return nil
	}

	final, dedupOutcome, err := r.runDeduplication(ctx, db, enriched)
	if err != nil {
		return err
	}

	if err := e.historicalStore.Archive(ctx, db, r.now()); err != nil {
		return fmt.Errorf("orchestrator: archive canonical products: %w", err)
	}

	if err := e.productStore.ReplaceAll(ctx, db, final); err != nil {
		return fmt.Errorf("orchestrator: replace canonical products: %w", err)
	}

	if r.stopAfter(model.StageDeduplication) {
		return nil
	}

	if r.opts.DataQualityEnabled {
		r.runDataQuality(ctx, db, len(parsed), enriched, final, dedupOutcome)
	}

	return nil
}

func (r *runContext) stopAfter(stage model.Stage) bool {
	return r.opts.StopAfterStage != nil && *r.opts.StopAfterStage == stage
}

// advanceStage records the current stage and emits a stage-started event.
// Under atomic mode the database write is skipped: orchestrator_pipeline_status
// is written through the status store's own *sql.DB handle, never through
// the in-flight transaction, and SQLite's single pooled connection (spec
// §5) is already held by that transaction for the run's duration — a
// second write attempt against the same pool would block forever. The
// status row still moves initializing -> completed/failed around the
// transaction; the Emitter is the only live per-stage signal atomic runs
// produce.
func (r *runContext) advanceStage(ctx context.Context, state model.OrchestratorState) {
	if !r.atomic {
		if err := r.engine.statusStore.AdvanceStage(ctx, state); err != nil {
			r.engine.logger.Warn("failed to advance pipeline stage", slog.String("batch_id", r.batchID), slog.String("error", err.Error()))
		}
	}

	r.opts.Emit.emit(Event{Type: EventPipelineStageStarted, BatchID: r.batchID, CurrentStage: state})
}

func (r *runContext) runIngestion(ctx context.Context, db execer) ([]model.ParsedProduct, error) {
	r.advanceStage(ctx, model.StateIngestion)

	validator := ingestion.NewValidator(r.bundle.Ranges, r.bundle.RateThresholds, r.bundle.RateFilterEnabled, r.engine.rulesEngine)
	stage := ingestion.NewStage(validator, r.bundle.BankCfg, r.bundle.PlatformCfg, r.bundle.IngestionMetadata, r.bundle.CorruptionThreshold, r.engine.rawStore)

	var all []model.ParsedProduct

	for _, file := range r.opts.Files {
		result, items, err := stage.ProcessFile(ctx, db, file.Batch, r.now())
		if err != nil {
			return nil, fmt.Errorf("orchestrator: ingest %q: %w", file.Path, err)
		}

		for _, item := range items {
			details := map[string]any{"bank_name": item.BankName, "platform": item.Platform, "accepted": item.Accepted}
			if len(item.ValidationErrors) > 0 {
				details["errors"] = item.ValidationErrors
				r.recorder.RecordError(model.StageJSONIngestion, item.NormalizedBank, details, r.now())
				continue
			}
			r.recorder.Record(model.StageJSONIngestion, item.NormalizedBank, details, "info", r.now())
		}

		all = append(all, result.Passed...)
	}

	r.opts.Emit.emit(Event{Type: EventPipelineStageCompleted, BatchID: r.batchID, CurrentStage: model.StateIngestion})

	return all, nil
}

func (r *runContext) runFRNMatching(ctx context.Context, db execer, parsed []model.ParsedProduct) ([]model.EnrichedProduct, error) {
	r.advanceStage(ctx, model.StateFRNMatching)

	cache := frn.NewCache()
	if err := cache.Rebuild(ctx, db, r.bundle.BankCfg, r.bundle.VariationCfg); err != nil {
		return nil, fmt.Errorf("orchestrator: rebuild FRN cache: %w", err)
	}

	resolver := frn.NewResolver(cache, r.bundle.FRN)
	queue := frn.NewResearchQueue(10000)
	stage := frn.NewStage(resolver, queue, r.engine.rawStore)

	outcome, items, err := stage.Run(ctx, db, parsed, r.now())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: frn matching: %w", err)
	}

	for _, item := range items {
		details := map[string]any{
			"bank_name": item.BankName, "frn": item.FRN, "confidence": item.Confidence, "status": item.Status,
		}
		if item.Status == model.FRNNoMatch {
			r.recorder.RecordError(model.StageFRNMatching, item.NormalizedBankName, details, r.now())
			continue
		}
		r.recorder.Record(model.StageFRNMatching, item.NormalizedBankName, details, "info", r.now())
	}

	r.recorder.Record(model.StageFRNMatching, r.batchID, map[string]any{
		"matched": outcome.Matched, "research_queued": outcome.ResearchQueued, "no_match": outcome.NoMatch,
	}, "info", r.now())

	r.opts.Emit.emit(Event{Type: EventPipelineStageCompleted, BatchID: r.batchID, CurrentStage: model.StateFRNMatching})

	return outcome.Enriched, nil
}

func (r *runContext) runDeduplication(ctx context.Context, db execer, enriched []model.EnrichedProduct) ([]model.FinalProduct, dedup.Outcome, error) {
	r.advanceStage(ctx, model.StateDeduplication)

	stage := dedup.NewStage(r.bundle.Dedup, r.bundle.BankCfg, r.engine.rawStore)

	outcome, err := stage.Run(ctx, db, enriched)
	if err != nil {
		return nil, dedup.Outcome{}, fmt.Errorf("orchestrator: deduplication: %w", err)
	}

	for _, v := range outcome.Violations {
		r.recorder.RecordError(model.StageDeduplication, v.BusinessKey, map[string]any{
			"normalized_bank_name": v.NormalizedBankName, "product_count": v.ProductCount,
		}, r.now())
	}

	for _, winner := range outcome.Final {
		r.recorder.Record(model.StageDeduplication, winner.BusinessKey, map[string]any{
			"selection_reason": winner.SelectionReason,
			"duplicate_count":  winner.DuplicateCount,
			"fscs_compliant":   winner.FSCSCompliant,
		}, "info", r.now())
	}

	r.recorder.Record(model.StageDeduplication, r.batchID, map[string]any{
		"group_count": outcome.GroupCount, "final_count": len(outcome.Final),
	}, "info", r.now())

	r.opts.Emit.emit(Event{Type: EventPipelineStageCompleted, BatchID: r.batchID, CurrentStage: model.StateDeduplication})

	return outcome.Final, outcome, nil
}

func (r *runContext) runDataQuality(ctx context.Context, db execer, totalIngested int, enriched []model.EnrichedProduct, final []model.FinalProduct, dedupOutcome dedup.Outcome) {
	r.advanceStage(ctx, model.StateDataQuality)

	preferred := make(map[string]bool, len(r.bundle.Dedup.PreferredPlatforms))
	for platform := range r.bundle.Dedup.PreferredPlatforms {
		preferred[platform] = true
	}

	stage := quality.NewStage(r.bundle.Quality, preferred, r.engine.reportStore)

	priorScore, err := r.engine.reportStore.LatestScore(ctx, db)
	if err != nil {
		r.engine.logger.Warn("failed to read prior data quality score", slog.String("batch_id", r.batchID), slog.String("error", err.Error()))
	}

	rejected := totalIngested - len(enriched)
	processingDuration := r.now().Sub(r.startedAt)

	report := stage.Analyze(r.batchID, r.now(), totalIngested, rejected, dedupOutcome.GroupCount, enriched, final, processingDuration, priorScore)

	// Storage failure here must never abort the run.
	if err := r.engine.reportStore.Save(ctx, db, report); err != nil {
		r.engine.logger.Error("failed to persist data quality report", slog.String("batch_id", r.batchID), slog.String("error", err.Error()))
	}

	r.recorder.Record(model.StageDataQuality, r.batchID, map[string]any{
		"overall_score": report.OverallScore, "trend": string(report.Comparison.Trend),
	}, "info", r.now())

	r.opts.Emit.emit(Event{Type: EventPipelineStageCompleted, BatchID: r.batchID, CurrentStage: model.StateDataQuality})
}

// rawToParsed reconstructs a ParsedProduct from an already-persisted
// RawProduct for the rebuild-only path, which loads the full raw table
// back into ParsedProducts rather than re-ingesting. Platform category
// is recomputed from the
// already-normalized platform string rather than re-read from storage,
// since available_products_raw has no separate category column.
func rawToParsed(rp model.RawProduct, bundle Bundle) model.ParsedProduct {
	platform, category := canonicalization.NormalizePlatform(rp.Platform, rp.Source, bundle.PlatformCfg)

	return model.ParsedProduct{
		Raw:                rp,
		NormalizedPlatform: platform,
		PlatformCategory:   category,
		PlatformPriority:   bundle.IngestionMetadata.PlatformPriority[platform],
		SourceReliability:  bundle.IngestionMetadata.SourceReliability[rp.Source],
	}
}
