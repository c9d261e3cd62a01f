package stream

import (
	"github.com/danielpatrickdp/ska-stream/internal/learner"
	"github.com/danielpatrickdp/ska-stream/internal/metrics"
)

// #region sink
// Sink consumes per-step output records. Sinks are external collaborators:
// a failing sink is counted and skipped, it never stalls or halts the stream.
type Sink interface {
	Emit(out learner.Output) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(out learner.Output) error

// Emit calls f.
func (f SinkFunc) Emit(out learner.Output) error {
	return f(out)
}

// #endregion sink

// #region summary
// Summary aggregates the outcome of one run.
type Summary struct {
	RunID              string
	Steps              uint64 // learning steps executed this run
	LastSeq            uint64 // last processed sequence index
	ResumedFrom        uint64 // first sequence index of this run (0 on cold start)
	FinalState         learner.State
	Dropped            uint64 // backpressure losses (DropOldest)
	DroppedAtShutdown  uint64 // samples unconsumed when the drain timed out
	CheckpointsSaved   uint64
	CheckpointsSkipped uint64 // write deadline overruns, retried next interval
	SinkErrors         uint64
	Window             metrics.Snapshot
	Degenerate         bool
	ColdStart          bool // true when a restore was rejected or absent
}

// #endregion summary
