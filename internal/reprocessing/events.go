package reprocessing

// TriggerType names the three event sources the reprocessing controller
// listens for: scraper completion, a manual operator trigger, and the
// recovery failsafe.
type TriggerType string

const (
	TriggerScraperCompleted TriggerType = "scraper:completed"
	TriggerManual           TriggerType = "manual:trigger"
	TriggerRecovery         TriggerType = "recovery:trigger"
)

// Trigger is one event delivered to the controller, regardless of whether
// it arrived over the in-process channel or was decoded from a Kafka
// message. Both trigger sources feed the same resilience-wrapped
// dedup-only path.
type Trigger struct {
	Type   TriggerType
	Source string // aggregator/platform id for scraper:completed, empty otherwise
}

// Bus is a buffered, channel-based event source: listeners deliver events
// by sending to a buffered channel, and one goroutine drains it. One Bus
// is shared by every trigger
// source (the in-process CLI/cron callers and the Kafka consumer) and
// drained by exactly one controller goroutine.
type Bus struct {
	triggers chan Trigger
}

// NewBus constructs a Bus with the given channel capacity. A full channel
// means Publish drops the event rather than blocking the publisher —
// acceptable here since a dropped scraper:completed or recovery:trigger
// is superseded by the next one moments later, and manual:trigger always
// has an explicit caller who observes the TriggerManualProcessing error
// return instead of going through the channel at all.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 16
	}

	return &Bus{triggers: make(chan Trigger, capacity)}
}

// Publish enqueues t, dropping it silently if the channel is full.
func (b *Bus) Publish(t Trigger) {
	select {
	case b.triggers <- t:
	default:
	}
}

// Triggers returns the receive-only channel the controller drains.
func (b *Bus) Triggers() <-chan Trigger {
	return b.triggers
}
