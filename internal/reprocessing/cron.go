package reprocessing

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Failsafe emits recovery:trigger on a fixed interval unless the supplied
// busy check reports something else is already running, or the breaker is
// open. The interval comes from Config.FailsafeInterval rather than a
// hardcoded default, honoring the no-hardcoded-defaults rule the rest of
// the engine follows.
type Failsafe struct {
	c       *cron.Cron
	entryID cron.EntryID
}

// StartFailsafe schedules the recurring check and returns the running
// Failsafe; call Stop to cancel it (used by the controller's shutdown admin
// operation).
func StartFailsafe(interval time.Duration, busy func() bool, breakerOpen func() bool, publish func(Trigger)) (*Failsafe, error) {
	c := cron.New()

	id, err := c.AddFunc(intervalSpec(interval), func() {
		if busy() || breakerOpen() {
			return
		}

		publish(Trigger{Type: TriggerRecovery})
	})
	if err != nil {
		return nil, err
	}

	c.Start()

	return &Failsafe{c: c, entryID: id}, nil
}

// Stop cancels the scheduled job and waits for any in-flight run of it to
// finish.
func (f *Failsafe) Stop() {
	f.c.Stop()
}

// intervalSpec builds a seconds-resolution cron spec ("@every") from a
// plain duration — robfig/cron's @every syntax accepts a Go duration
// string directly, so no field-by-field cron expression is needed for a
// fixed-interval failsafe.
func intervalSpec(d time.Duration) string {
	return "@every " + d.String()
}
