// Package main provides the pipeline CLI: the entrypoint that drives one
// batch through ingestion, FRN matching, deduplication and (optionally)
// data quality, or that runs the reprocessing controller as a long-lived
// process reacting to scraper completions and the recovery failsafe.
//
// The rate aggregation pipeline has no inbound API surface of its own,
// so the CLI is the only way operators and schedulers reach it.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ratevault/pipeline/internal/audit"
	"github.com/ratevault/pipeline/internal/config"
	"github.com/ratevault/pipeline/internal/frn"
	"github.com/ratevault/pipeline/internal/ingestion"
	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/orchestrator"
	"github.com/ratevault/pipeline/internal/pipelog"
	"github.com/ratevault/pipeline/internal/reprocessing"
	"github.com/ratevault/pipeline/internal/rules"
	"github.com/ratevault/pipeline/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "pipeline"
)

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")

		stopAfter   = flag.String("stop-after", "", "Stop after the named stage (json_ingestion|frn_matching|deduplication|data_quality)")
		rebuildOnly = flag.Bool("rebuild-only", false, "Rebuild the FRN cache and re-run deduplication against already-ingested products, without re-ingesting raw files")
		filesFlag   = flag.String("files", "", "Comma-separated list of input JSON files or glob patterns to ingest")
		dryRun      = flag.Bool("dry-run", false, "Run every stage but roll back instead of committing, reporting what would change")

		addOverride       = flag.Bool("add-override", false, "Add a manual FRN override: --add-override <sourceBankName> <frn> <canonicalName>")
		listResearchQueue = flag.Bool("list-research-queue", false, "Print the research queue of bank names that never matched an FRN, oldest first, as JSON")

		configPath = flag.String("config", "", "Optional YAML bootstrap file (database path, verbose/debug defaults) read before the environment")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	fileCfg, err := loadFileConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load --config file: %v\n", err)
		os.Exit(1)
	}

	verbose := config.GetEnvBool("PIPELINE_VERBOSE", fileCfg.verboseDefault())
	debug := config.GetEnvBool("PIPELINE_DEBUG", fileCfg.debugDefault())
	logger := pipelog.New(nil, verbose, debug)

	storageCfg := storage.LoadConfig()
	storageCfg.ApplyFileOverride(fileCfg.DatabasePath)

	db, err := storage.Open(storageCfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *addOverride:
		if err := runAddOverride(ctx, db, logger, flag.Args()); err != nil {
			logger.Error("add-override failed", "error", err)
			os.Exit(1)
		}
		return

	case *listResearchQueue:
		if err := runListResearchQueue(ctx, db); err != nil {
			logger.Error("list-research-queue failed", "error", err)
			os.Exit(1)
		}
		return
	}

	loader := config.NewLoader(db)

	rulesEngine := rules.NewEngine(logger.Slog())
	for _, category := range []string{"ingestion", "frn_matching", "deduplication", "data_quality"} {
		if err := rulesEngine.Load(ctx, db, category); err != nil {
			logger.Warn("business rules load failed, continuing with no rules for category", "category", category, "error", err)
		}
	}

	stageTimeout := config.GetEnvDuration("PIPELINE_STAGE_TIMEOUT", 30*time.Second)
	engine := orchestrator.NewEngine(db, rulesEngine, logger.Slog(), stageTimeout)

	statusStore := storage.NewPipelineStatusStore(db)
	if recovered, err := orchestrator.RecoverStaleRun(ctx, statusStore, time.Now(), stageTimeout); err != nil {
		logger.Error("stale run recovery failed", "error", err)
		os.Exit(1)
	} else if recovered {
		logger.Warn("recovered a stale running batch left by a crashed process")
	}

	switch {
	case len(*filesFlag) > 0 || *rebuildOnly:
		if err := runBatch(ctx, engine, loader, logger, *filesFlag, *stopAfter, *rebuildOnly, *dryRun); err != nil {
			logger.Error("pipeline run failed", "error", err)
			os.Exit(1)
		}

	default:
		if err := runDaemon(ctx, engine, loader, db, logger); err != nil {
			logger.Error("reprocessing controller failed", "error", err)
			os.Exit(1)
		}
	}
}

// runBatch decodes --files into FileInput values (if any), assembles the
// options the flags and environment describe, and runs one pipeline batch
// to completion or failure.
func runBatch(ctx context.Context, engine *orchestrator.Engine, loader *config.Loader, logger *pipelog.Logger, filesArg, stopAfterArg string, rebuildOnly, dryRun bool) error {
	bundle, err := orchestrator.LoadBundle(ctx, loader)
	if err != nil {
		return fmt.Errorf("load config bundle: %w", err)
	}

	fileInputs, err := decodeFiles(filesArg)
	if err != nil {
		return fmt.Errorf("decode input files: %w", err)
	}

	opts := orchestrator.Options{
		PipelineID:         "cli",
		Atomic:             config.GetEnvBool("PIPELINE_ATOMIC", true),
		RebuildOnly:        rebuildOnly,
		DataQualityEnabled: config.GetEnvBool("PIPELINE_DATA_QUALITY", false),
		Files:              fileInputs,
		Emit:               cliEmitter(logger),
		AuditDetail:        auditDetailFromEnv(),
	}

	if stopAfterArg != "" {
		stage, err := parseStage(stopAfterArg)
		if err != nil {
			return err
		}
		opts.StopAfterStage = &stage
	}

	if dryRun {
		return runDryRun(ctx, engine, bundle, opts, logger)
	}

	batch, err := engine.Run(ctx, bundle, opts, time.Now)
	if err != nil {
		return err
	}

	return summarizeBatch(logger, batch)
}

// runDryRun runs every stage the options call for and rolls the result
// back (orchestrator.Options.DryRun), so an operator can see what a batch
// would do without committing it. SQLite's single-writer model means this
// still holds the write lock for the duration of the run — a dry run is
// not free, only non-committing.
func runDryRun(ctx context.Context, engine *orchestrator.Engine, bundle orchestrator.Bundle, opts orchestrator.Options, logger *pipelog.Logger) error {
	opts.DryRun = true

	batch, err := engine.Run(ctx, bundle, opts, time.Now)
	if err != nil {
		return err
	}

	logger.Slog().Info("dry run completed, all stage writes rolled back", "batch_id", batch.BatchID, "status", batch.Status)
	return summarizeBatch(logger, batch)
}

func summarizeBatch(logger *pipelog.Logger, batch model.PipelineBatch) error {
	logger.Slog().Info("pipeline run finished", "batch_id", batch.BatchID, "status", batch.Status, "started_at", batch.StartedAt)

	if batch.Status == model.BatchFailed {
		return fmt.Errorf("batch %s failed: %s", batch.BatchID, batch.ErrorMessage)
	}

	return nil
}

// runDaemon starts the reprocessing controller and blocks until ctx
// is cancelled by an interrupt or SIGTERM, then shuts the controller down.
func runDaemon(ctx context.Context, engine *orchestrator.Engine, loader *config.Loader, db *sql.DB, logger *pipelog.Logger) error {
	reprocCfg, err := reprocessing.LoadConfig(ctx, loader)
	if err != nil {
		return fmt.Errorf("load reprocessing config: %w", err)
	}

	lockStore := storage.NewLockStore(db)
	statusStore := storage.NewPipelineStatusStore(db)

	controller := reprocessing.NewController(engine, loader, lockStore, statusStore.Get, db, reprocCfg, logger.Slog(), time.Now)

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("start reprocessing controller: %w", err)
	}

	logger.Slog().Info("reprocessing controller started, waiting for scraper completions and the recovery failsafe")

	<-ctx.Done()

	logger.Slog().Info("shutdown signal received, draining in-flight reprocessing")
	controller.Shutdown()

	return nil
}

func runAddOverride(ctx context.Context, db *sql.DB, logger *pipelog.Logger, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("--add-override requires exactly 3 arguments: <sourceBankName> <frn> <canonicalName>, got %d", len(args))
	}

	sourceBankName, frnCode, canonicalName := args[0], args[1], args[2]

	author := config.GetEnvStr("PIPELINE_OVERRIDE_AUTHOR", os.Getenv("USER"))
	if author == "" {
		return fmt.Errorf("no override author identified; set PIPELINE_OVERRIDE_AUTHOR or USER")
	}

	authorHash, err := storage.HashOverrideAuthor(author)
	if err != nil {
		return fmt.Errorf("hash override author: %w", err)
	}

	loader := config.NewLoader(db)
	bundle, err := orchestrator.LoadBundle(ctx, loader)
	if err != nil {
		return fmt.Errorf("load config bundle: %w", err)
	}

	cache := frn.NewCache()
	if err := cache.Rebuild(ctx, db, bundle.BankCfg, bundle.VariationCfg); err != nil {
		return fmt.Errorf("build cache before override insert: %w", err)
	}

	if err := frn.AddManualOverride(ctx, db, cache, bundle.BankCfg, bundle.VariationCfg, frnCode, sourceBankName, canonicalName, authorHash, time.Now()); err != nil {
		return err
	}

	logger.Slog().Info("manual FRN override applied", "source_bank_name", sourceBankName, "frn", frnCode, "canonical_name", canonicalName, "applied_by", author)
	return nil
}

func runListResearchQueue(ctx context.Context, db *sql.DB) error {
	entries, err := frn.ListResearchQueue(ctx, db)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("[]")
		return nil
	}

	fmt.Println("[")
	for i, e := range entries {
		comma := ","
		if i == len(entries)-1 {
			comma = ""
		}
		fmt.Printf("  {\"bankName\": %q, \"platform\": %q, \"source\": %q, \"firstSeen\": %q}%s\n",
			e.BankName, e.Platform, e.Source, e.FirstSeen.Format(time.RFC3339), comma)
	}
	fmt.Println("]")

	return nil
}

// fileConfig is the optional --config bootstrap file: the one piece of
// local configuration that must exist before the unified_config-backed
// store can even be opened, so it can't itself live in unified_config.
// Every field is optional; the environment always wins when both set the
// same thing (loadFileConfig's values only fill gaps the environment
// left, via storage.Config.ApplyFileOverride and the GetEnvBool defaults).
type fileConfig struct {
	DatabasePath string `yaml:"databasePath"`
	Verbose      *bool  `yaml:"verbose"`
	Debug        *bool  `yaml:"debug"`
}

func (f fileConfig) verboseDefault() bool {
	if f.Verbose != nil {
		return *f.Verbose
	}
	return false
}

func (f fileConfig) debugDefault() bool {
	if f.Debug != nil {
		return *f.Debug
	}
	return false
}

// loadFileConfig reads and parses path if non-empty, returning a zero
// fileConfig (every field absent) when no --config flag was given.
func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read %q: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse %q: %w", path, err)
	}

	return cfg, nil
}

// decodeFiles expands filesArg (comma-separated paths or glob patterns),
// reads and decodes each into an ingestion.Batch. An empty filesArg yields
// no file inputs, which is valid for a --rebuild-only run.
func decodeFiles(filesArg string) ([]orchestrator.FileInput, error) {
	if filesArg == "" {
		return nil, nil
	}

	var paths []string
	for _, pattern := range config.ParseCommaSeparatedList(filesArg) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			// Not a glob pattern, or a glob that matched nothing — treat
			// it as a literal path and let the read below surface the
			// real error if it doesn't exist.
			paths = append(paths, pattern)
			continue
		}
		paths = append(paths, matches...)
	}

	inputs := make([]orchestrator.FileInput, 0, len(paths))

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}

		batch, err := ingestion.DecodeBatch(data)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", path, err)
		}

		inputs = append(inputs, orchestrator.FileInput{Path: path, Batch: batch})
	}

	return inputs, nil
}

func parseStage(s string) (model.Stage, error) {
	switch model.Stage(s) {
	case model.StageJSONIngestion, model.StageFRNMatching, model.StageDeduplication, model.StageDataQuality:
		return model.Stage(s), nil
	default:
		return "", fmt.Errorf("unknown --stop-after stage %q (want json_ingestion|frn_matching|deduplication|data_quality)", s)
	}
}

// auditDetailFromEnv honors PIPELINE_AUDIT_ENABLED/PIPELINE_AUDIT_LEVEL.
// audit.DetailLevel has no "disabled" value of its own (every stage still
// records stage-level counts for operability), so a disabled audit is
// represented as the lowest-cost level rather than skipping the recorder
// altogether.
func auditDetailFromEnv() audit.DetailLevel {
	if !config.GetEnvBool("PIPELINE_AUDIT_ENABLED", true) {
		return audit.DetailMinimal
	}

	switch strings.ToLower(config.GetEnvStr("PIPELINE_AUDIT_LEVEL", "standard")) {
	case "verbose":
		return audit.DetailVerbose
	case "minimal":
		return audit.DetailMinimal
	default:
		return audit.DetailStandard
	}
}

// cliEmitter logs each orchestrator event at INFO (gated through pipelog on
// PIPELINE_VERBOSE or the --config file's verbose default) and each event
// carrying an error at ERROR, which always emits, giving an operator
// watching the CLI's own output the same progress visibility a UI would get
// via the Emitter hook.
func cliEmitter(logger *pipelog.Logger) orchestrator.Emitter {
	return func(ev orchestrator.Event) {
		if ev.Err != nil {
			logger.Slog().Error("pipeline event", "type", ev.Type, "stage", ev.CurrentStage, "error", ev.Err)
			return
		}

		logger.Info("pipeline event", "type", ev.Type, "stage", ev.CurrentStage, "message", ev.Message, "progress", ev.StageProgress)
	}
}

func printUsage() {
	fmt.Printf(`%s v%s - UK Savings Rate Aggregation Pipeline

USAGE:
    %s [OPTIONS]

OPTIONS:
    --help                   Show this help message
    --version                Show version information
    --files <list>           Comma-separated input files or glob patterns to ingest
    --stop-after <stage>     Stop after json_ingestion|frn_matching|deduplication|data_quality
    --rebuild-only           Rebuild FRN cache and re-run deduplication without re-ingesting
    --dry-run                Run every stage, then roll back instead of committing
    --add-override <a> <b> <c>  Add a manual FRN override: sourceBankName frn canonicalName
    --list-research-queue    Print unmatched bank names awaiting FRN research, as JSON
    --config <path>          Optional YAML bootstrap file (databasePath, verbose, debug)

Running with none of --files/--rebuild-only/--add-override/--list-research-queue
starts the reprocessing controller as a long-lived process, reacting to
scraper completions (Kafka, if configured) and its own recovery failsafe
until interrupted.

ENVIRONMENT VARIABLES:
    DATABASE_PATH               SQLite database file path (REQUIRED)
    DATABASE_WAL_MODE           Enable WAL journal mode (default: true)
    DATABASE_BUSY_TIMEOUT       Writer busy timeout (default: 5s)
    DATABASE_FOREIGN_KEYS       Enable foreign key enforcement (default: true)
    PIPELINE_VERBOSE            Enable INFO-level logging (default: false)
    PIPELINE_DEBUG               Enable DEBUG-level logging (default: false)
    PIPELINE_ATOMIC              Run stages in one all-or-nothing transaction (default: true)
    PIPELINE_DATA_QUALITY        Run the data quality stage after deduplication (default: false)
    PIPELINE_STAGE_TIMEOUT        Per-stage timeout (default: 30s)
    PIPELINE_AUDIT_ENABLED        Record per-item audit detail (default: true)
    PIPELINE_AUDIT_LEVEL          minimal|standard|verbose (default: standard)
    PIPELINE_OVERRIDE_AUTHOR      Identity recorded (hashed) for --add-override; falls back to $USER

EXAMPLES:
    %s --files "inbound/*.json"
    %s --rebuild-only
    %s --add-override "Acme Savings Ltd" 123456 "ACME SAVINGS"
    %s --list-research-queue
`, name, version, name, name, name, name, name, name)
}
