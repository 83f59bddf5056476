package model

import "time"

// BatchStatus is the lifecycle state of a PipelineBatch.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// PipelineBatch identifies one end-to-end run of the pipeline. BatchID is
// monotonic across processes: timestamp + pid + counter + random suffix
// (spec invariant 7) — see internal/audit.NewBatchID.
type PipelineBatch struct {
	BatchID     string
	PipelineID  string
	Status      BatchStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	ErrorMessage string
}

// Stage names used throughout audit, orchestration, and the CLI's
// --stop-after flag.
type Stage string

const (
	StageJSONIngestion Stage = "json_ingestion"
	StageFRNMatching   Stage = "frn_matching"
	StageDeduplication Stage = "deduplication"
	StageDataQuality   Stage = "data_quality"
)

// LockStatus is the state of a ProcessingLock row.
type LockStatus string

const (
	LockHeld   LockStatus = "held"
	LockFailed LockStatus = "failed"
	LockFreed  LockStatus = "freed"
)

// ProcessingLock is the exclusive lock row guarding reprocessing
// invocations. A lock older than 10 minutes is reclaimed as stale.
type ProcessingLock struct {
	ProcessType string
	Status      LockStatus
	StartedAt   time.Time
	Metadata    string // JSON blob
}

// OrchestratorState is one of the orchestration engine's state machine
// states.
type OrchestratorState string

const (
	StateIdle          OrchestratorState = "idle"
	StateInitializing  OrchestratorState = "initializing"
	StateIngestion     OrchestratorState = "ingestion"
	StateFRNMatching   OrchestratorState = "frn_matching"
	StateDeduplication OrchestratorState = "deduplication"
	StateDataQuality   OrchestratorState = "data_quality"
	StateCompleted     OrchestratorState = "completed"
	StateFailed        OrchestratorState = "failed"
)

// PipelineStatus is the singleton row (id=1) guarding concurrent
// orchestration runs.
type PipelineStatus struct {
	IsRunning    bool
	CurrentStage OrchestratorState
	BatchID      string
	StartedAt    *time.Time
}
