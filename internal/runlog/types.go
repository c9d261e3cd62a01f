package runlog

import "time"

// #region event
// Event classifies a run_log entry.
type Event string

const (
	EventRunStart          Event = "run_start"
	EventRunStop           Event = "run_stop"
	EventCheckpoint        Event = "checkpoint"
	EventCheckpointSkipped Event = "checkpoint_skipped" // write deadline exceeded, retried next interval
	EventDegenerate        Event = "degenerate_config"
	EventDropped           Event = "samples_dropped"
	EventDiverged          Event = "diverged"
	EventColdStart         Event = "cold_start" // restore rejected, started fresh
)

// #endregion event

// #region entry
// Entry is a single row in the run_log table.
type Entry struct {
	RunID     string
	Event     Event
	Seq       *uint64 // sequence index the event refers to, when applicable
	Detail    string
	CreatedAt time.Time
}

// #endregion entry
