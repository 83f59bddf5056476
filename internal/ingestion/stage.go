package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/storage"
)

// Execer is satisfied by both *sql.DB and *sql.Tx, mirroring
// internal/storage's own execer so Stage can run under either the
// orchestrator's atomic (in-transaction) or incremental commit mode.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrMissingMetadata is a VALIDATION_FAILED error for a batch whose
// metadata envelope is missing source or method.
var ErrMissingMetadata = errors.New("VALIDATION_FAILED: missing metadata.source or metadata.method")

// Metadata carries the platform-priority and source-reliability lookup
// tables products are enriched with. Both are loaded
// from config as JSON maps; a platform/source absent from either map gets
// priority/reliability zero rather than failing the whole batch — an
// unrecognized platform is a data-quality signal, not a load error.
type Metadata struct {
	PlatformPriority  map[string]int
	SourceReliability map[string]float64
}

func (m Metadata) priorityFor(platform string) int {
	return m.PlatformPriority[platform]
}

func (m Metadata) reliabilityFor(source string) float64 {
	return m.SourceReliability[source]
}

// Stage runs the C4 ingestion algorithm: normalize, validate, rate-filter,
// and track the corruption fuse, independently per input file so
// (source, method) identity is preserved across files landed in the same
// run.
type Stage struct {
	validator     *Validator
	bankCfg       canonicalization.BankNameConfig
	platformCfg   canonicalization.PlatformConfig
	metadata      Metadata
	corruptionTh  float64
	store         *storage.RawProductStore
}

// NewStage constructs an ingestion Stage.
func NewStage(
	validator *Validator,
	bankCfg canonicalization.BankNameConfig,
	platformCfg canonicalization.PlatformConfig,
	metadata Metadata,
	corruptionThreshold float64,
	store *storage.RawProductStore,
) *Stage {
	return &Stage{
		validator:    validator,
		bankCfg:      bankCfg,
		platformCfg:  platformCfg,
		metadata:     metadata,
		corruptionTh: corruptionThreshold,
		store:        store,
	}
}

// Result summarizes one file's ingestion outcome.
type Result struct {
	Source          string
	Method          string
	Passed          []model.ParsedProduct
	RejectedCount   int
	RateFilteredCount int
	PlatformCounts  map[string]int
}

// Item is one per-product audit detail, returned alongside Result so the
// caller (the orchestrator, via internal/audit) can record per-item rows
// without the stage depending on the audit package.
type Item struct {
	BankName         string
	NormalizedBank   string
	Platform         string
	Accepted         bool
	RateFiltered     bool
	ValidationErrors []string
}

// ProcessFile runs the full ingestion algorithm over one decoded batch and, on
// success, persists the passed products to the raw table under
// (source, method) — deleting any prior rows for that exact pair first
// (spec invariant 5).
func (s *Stage) ProcessFile(ctx context.Context, db Execer, batch Batch, now time.Time) (Result, []Item, error) {
	if batch.Metadata.Source == "" || batch.Metadata.Method == "" {
		return Result{}, nil, ErrMissingMetadata
	}

	result := Result{
		Source:         batch.Metadata.Source,
		Method:         batch.Metadata.Method,
		PlatformCounts: make(map[string]int),
	}

	tracker := newCorruptionTracker(s.corruptionTh)

	items := make([]Item, 0, len(batch.Products))

	for _, raw := range batch.Products {
		platform, category := canonicalization.NormalizePlatform(raw.Platform, batch.Metadata.Source, s.platformCfg)
		accountType, _ := canonicalization.NormalizeAccountType(raw.AccountType)
		normalizedBank := canonicalization.NormalizeBankName(raw.BankName, s.bankCfg)

		outcome := s.validator.Validate(raw, accountType, platform)

		item := Item{
			BankName:         raw.BankName,
			NormalizedBank:   normalizedBank,
			Platform:         platform,
			RateFiltered:     outcome.RateFiltered,
			ValidationErrors: outcome.Errors,
		}

		failed := len(outcome.Errors) > 0
		tracker.Observe(failed)

		if err := tracker.CheckInterval(); err != nil {
			return Result{}, nil, err
		}

		if outcome.Rejected() {
			item.Accepted = false
			items = append(items, item)

			result.RejectedCount++
			if outcome.RateFiltered {
				result.RateFilteredCount++
			}

			continue
		}

		item.Accepted = true
		items = append(items, item)

		parsed := model.ParsedProduct{
			Raw: model.RawProduct{
				Platform:         platform,
				Source:           batch.Metadata.Source,
				Method:           batch.Metadata.Method,
				BankName:         raw.BankName,
				AccountType:      accountType,
				AERRate:          *raw.AERRate,
				GrossRate:        raw.GrossRate,
				TermMonths:       raw.TermMonths,
				NoticePeriodDays: raw.NoticePeriodDays,
				MinDeposit:       raw.MinDeposit,
				MaxDeposit:       raw.MaxDeposit,
				FSCSProtected:    raw.FSCSProtected != nil && *raw.FSCSProtected,
				ScrapeDate:       raw.parsedScrapeDate(now),
			},
			NormalizedPlatform: platform,
			PlatformCategory:   category,
			PlatformPriority:   s.metadata.priorityFor(platform),
			SourceReliability:  s.metadata.reliabilityFor(batch.Metadata.Source),
		}

		result.Passed = append(result.Passed, parsed)
		result.PlatformCounts[platform]++
	}

	if err := tracker.CheckFinal(); err != nil {
		return Result{}, nil, err
	}

	rawProducts := make([]model.RawProduct, len(result.Passed))
	for i, p := range result.Passed {
		rawProducts[i] = p.Raw
	}

	ids, err := s.store.ReplaceForOrigin(ctx, db, batch.Metadata.Source, batch.Metadata.Method, rawProducts)
	if err != nil {
		return Result{}, nil, fmt.Errorf("DATABASE_FAILED: %w", err)
	}

	for i, id := range ids {
		result.Passed[i].Raw.ID = id
	}

	return result, items, nil
}

// DecodeBatch parses one input file's JSON bytes into a Batch.
func DecodeBatch(data []byte) (Batch, error) {
	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return Batch{}, fmt.Errorf("VALIDATION_FAILED: decode batch: %w", err)
	}

	return batch, nil
}
