package orchestrator

import "github.com/ratevault/pipeline/internal/model"

// EventType enumerates the typed events the engine emits for a UI or
// log consumer to follow a run's progress.
type EventType string

const (
	EventPipelineStarted       EventType = "pipeline:started"
	EventPipelineStageStarted  EventType = "pipeline:stage-started"
	EventPipelineStageCompleted EventType = "pipeline:stage-completed"
	EventPipelineCompleted     EventType = "pipeline:completed"
	EventPipelineFailed        EventType = "pipeline:failed"
	EventPipelineProgress      EventType = "pipeline:progress"
)

// Event is the payload shared by every event type; fields not relevant to
// a given EventType are left zero-valued.
type Event struct {
	Type      EventType
	RequestID string
	BatchID   string

	CurrentStage model.OrchestratorState

	// StageProgress and TotalProgress are both in [0, 100] and only
	// populated on EventPipelineProgress.
	StageProgress int
	TotalProgress int

	Message string
	Err     error
}

// Emitter receives every event the engine produces. A nil Emitter is
// valid — Run treats it as "no UI attached" and skips all emission.
type Emitter func(Event)

func (e Emitter) emit(ev Event) {
	if e == nil {
		return
	}
	e(ev)
}
