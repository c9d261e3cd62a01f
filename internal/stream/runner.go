// Package stream wires the generator, buffer, learner and checkpoint store
// into the single-producer single-consumer pipeline: one producer goroutine
// feeding one bounded buffer, one synchronous learn loop, interval
// checkpointing bounded by a write deadline, and graceful drain on shutdown.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/ska-stream/internal/buffer"
	"github.com/danielpatrickdp/ska-stream/internal/checkpoint"
	"github.com/danielpatrickdp/ska-stream/internal/config"
	"github.com/danielpatrickdp/ska-stream/internal/learner"
	"github.com/danielpatrickdp/ska-stream/internal/metrics"
	"github.com/danielpatrickdp/ska-stream/internal/oscillator"
	"github.com/danielpatrickdp/ska-stream/internal/runlog"
)

// #region runner
// Runner owns one run of the pipeline. Construct with New, execute with Run.
type Runner struct {
	cfg   *config.Config
	gen   *oscillator.Generator
	buf   *buffer.Buffer
	store *checkpoint.Store // nil disables checkpointing
	strat learner.Strategy
	win   *metrics.Window
	sinks []Sink
}

// New validates the configuration and assembles a runner. All structural and
// numerical configuration errors surface here, before any stream starts.
func New(cfg *config.Config, store *checkpoint.Store, sinks ...Sink) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gen, err := oscillator.New(cfg.Oscillator.Components, cfg.Oscillator.Epsilon)
	if err != nil {
		return nil, err
	}
	policy, err := buffer.ParsePolicy(cfg.Buffer.Policy)
	if err != nil {
		return nil, err
	}
	buf, err := buffer.New(cfg.Buffer.Size, policy)
	if err != nil {
		return nil, err
	}
	strat, err := learner.ParseStrategy(cfg.Learner.Strategy)
	if err != nil {
		return nil, err
	}
	win, err := metrics.NewWindow(cfg.Window)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:   cfg,
		gen:   gen,
		buf:   buf,
		store: store,
		strat: strat,
		win:   win,
		sinks: sinks,
	}, nil
}

// #endregion runner

// #region run
// Run executes the pipeline until the sample bound is reached, ctx is
// cancelled, or the learner diverges. Cancellation drains buffered samples up
// to the shutdown timeout, counts the remainder, and forces a final
// checkpoint. Divergence halts immediately and is returned as an error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{
		RunID:      uuid.New().String(),
		Degenerate: r.gen.Degenerate(),
	}

	st, startSeq, cold, err := r.initialState(sum.RunID)
	if err != nil {
		return sum, err
	}
	sum.ColdStart = cold
	sum.ResumedFrom = startSeq
	sum.FinalState = st

	r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventRunStart,
		Detail: fmt.Sprintf("strategy=%s start_seq=%d", r.strat.Name, startSeq)})
	if sum.Degenerate {
		r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventDegenerate,
			Detail: "cos(ωε) at ±1: recurrence degenerates to linear/constant motion"})
	}

	prodCtx, stopProducer := context.WithCancel(ctx)
	defer stopProducer()
	prodDone := make(chan struct{})
	go r.produce(prodCtx, startSeq, prodDone)

	stepErr := r.consume(ctx, &sum, &st)
	stopProducer()
	<-prodDone

	if stepErr != nil && errors.Is(stepErr, learner.ErrDiverged) {
		seq := sum.LastSeq
		r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventDiverged, Seq: &seq,
			Detail: stepErr.Error()})
		sum.FinalState = st
		return sum, stepErr
	}

	// Final checkpoint on every clean exit path, including drained shutdown.
	if sum.Steps > 0 {
		r.saveCheckpoint(&sum, st, true)
	}

	sum.Dropped = r.buf.Dropped()
	if sum.Dropped > 0 {
		r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventDropped,
			Detail: fmt.Sprintf("backpressure evicted %d samples", sum.Dropped)})
	}

	sum.FinalState = st
	sum.Window = r.win.Stats()
	r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventRunStop,
		Detail: fmt.Sprintf("steps=%d last_seq=%d dropped_at_shutdown=%d",
			sum.Steps, sum.LastSeq, sum.DroppedAtShutdown)})
	return sum, nil
}

// #endregion run

// #region initial-state
// initialState restores the latest checkpoint when a store is present,
// falling back to a cold start on absence or corruption. Restoring returns
// the first unseen sequence index.
func (r *Runner) initialState(runID string) (learner.State, uint64, bool, error) {
	if r.store != nil {
		rec, err := r.store.Restore()
		switch {
		case err == nil:
			if rec.State.Strategy == r.strat.Name {
				return rec.State, rec.Seq + 1, false, nil
			}
			log.Printf("[STREAM] checkpoint strategy %q != configured %q, cold start", rec.State.Strategy, r.strat.Name)
			r.logEvent(runlog.Entry{RunID: runID, Event: runlog.EventColdStart,
				Detail: fmt.Sprintf("strategy mismatch: checkpoint %q, configured %q", rec.State.Strategy, r.strat.Name)})
		case errors.Is(err, checkpoint.ErrNoCheckpoint):
			// first run, nothing to restore
		case errors.Is(err, checkpoint.ErrCorrupt):
			log.Printf("[STREAM] warning: %v, falling back to cold start", err)
			r.logEvent(runlog.Entry{RunID: runID, Event: runlog.EventColdStart, Detail: err.Error()})
		default:
			return learner.State{}, 0, false, err
		}
	}
	st, err := learner.NewState(r.cfg.Learner)
	if err != nil {
		return learner.State{}, 0, false, err
	}
	return st, 0, true, nil
}

// #endregion initial-state

// #region produce
// produce runs on its own goroutine: generate, optionally perturb, push.
// It suspends only when the buffer is full under Block. Noise is applied to
// the emitted value after the recurrence advances, so the generator state
// stays exact.
func (r *Runner) produce(ctx context.Context, startSeq uint64, done chan<- struct{}) {
	defer close(done)
	defer r.buf.Close()

	var rng *rand.Rand
	if r.cfg.Stream.NoiseStd > 0 {
		rng = rand.New(rand.NewSource(r.cfg.Stream.NoiseSeed))
	}

	bound := r.cfg.Oscillator.Samples
	eps := r.cfg.Oscillator.Epsilon
	wallStart := time.Now()

	for {
		for i := 0; i < r.cfg.Stream.BatchSize; i++ {
			s := r.gen.Next()
			if bound > 0 && s.Seq >= bound {
				return
			}
			var noise float64
			if rng != nil {
				// Drawn before the fast-forward skip so a resumed run sees
				// the same noise sequence as an uninterrupted one.
				noise = rng.NormFloat64() * r.cfg.Stream.NoiseStd
			}
			if s.Seq < startSeq {
				continue // fast-forward past checkpointed samples
			}
			if rng != nil {
				s.Value += noise
			}
			if r.cfg.Stream.Realtime {
				target := wallStart.Add(time.Duration(float64(s.Seq-startSeq) * eps * float64(time.Second)))
				if d := time.Until(target); d > 0 {
					select {
					case <-time.After(d):
					case <-ctx.Done():
						return
					}
				}
			}
			if err := r.buf.Push(ctx, s); err != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// #endregion produce

// #region consume
// consume is the synchronous learn loop. Nothing inside a step suspends; the
// whole per-sample update completes before the next sample is accepted, so
// learning steps form a strict total order matching sample order.
func (r *Runner) consume(ctx context.Context, sum *Summary, st *learner.State) error {
	for {
		s, err := r.buf.Pop(ctx)
		if errors.Is(err, buffer.ErrClosed) {
			return nil // producer finished its bound
		}
		if err != nil {
			return r.drain(sum, st)
		}
		if err := r.step(sum, st, s); err != nil {
			return err
		}
	}
}

// drain consumes already-buffered samples after a shutdown request, bounded
// by the shutdown timeout. Whatever remains is counted, not silently lost.
func (r *Runner) drain(sum *Summary, st *learner.State) error {
	deadline := time.Now().Add(r.cfg.ShutdownTimeout())
	for time.Now().Before(deadline) {
		s, ok, err := r.buf.TryPop()
		if err != nil {
			return nil // closed and fully drained
		}
		if !ok {
			// The producer may still be winding down with a sample in flight.
			time.Sleep(r.cfg.IdlePoll())
			continue
		}
		if err := r.step(sum, st, s); err != nil {
			return err
		}
	}
	sum.DroppedAtShutdown = uint64(r.buf.Len())
	if sum.DroppedAtShutdown > 0 {
		seq := sum.LastSeq
		r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventDropped, Seq: &seq,
			Detail: fmt.Sprintf("shutdown drain timed out with %d samples unconsumed", sum.DroppedAtShutdown)})
	}
	return nil
}

// step applies one learning transition and fans the output to sinks, the
// window, and the interval checkpointer.
func (r *Runner) step(sum *Summary, st *learner.State, s oscillator.Sample) error {
	next, out, err := learner.Step(*st, s, r.strat)
	if err != nil {
		return err
	}
	*st = next
	sum.Steps++
	sum.LastSeq = s.Seq
	r.win.Push(out.Entropy)

	for _, sink := range r.sinks {
		if err := sink.Emit(out); err != nil {
			sum.SinkErrors++
			log.Printf("[STREAM] sink error at seq %d: %v", s.Seq, err)
		}
	}

	interval := r.cfg.Checkpoint.Interval
	if r.store != nil && interval > 0 && sum.Steps%interval == 0 {
		r.saveCheckpoint(sum, *st, false)
	}
	return nil
}

// #endregion consume

// #region checkpointing
// saveCheckpoint writes a snapshot under the configured write deadline. An
// overrun is counted and logged; the step completes regardless and the
// snapshot is retried at the next interval.
func (r *Runner) saveCheckpoint(sum *Summary, st learner.State, final bool) {
	if r.store == nil {
		return
	}
	ctx := context.Background()
	if t := r.cfg.WriteTimeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	seq := sum.LastSeq
	if _, err := r.store.Save(ctx, sum.RunID, seq, st); err != nil {
		sum.CheckpointsSkipped++
		r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventCheckpointSkipped, Seq: &seq,
			Detail: err.Error()})
		return
	}
	sum.CheckpointsSaved++
	detail := "interval"
	if final {
		detail = "final"
	}
	r.logEvent(runlog.Entry{RunID: sum.RunID, Event: runlog.EventCheckpoint, Seq: &seq, Detail: detail})
}

// logEvent writes a run_log entry when a store is present. Logging never
// interrupts the stream.
func (r *Runner) logEvent(e runlog.Entry) {
	if r.store == nil {
		return
	}
	if err := runlog.LogEvent(r.store.DB(), e); err != nil {
		log.Printf("[STREAM] run log error: %v", err)
	}
}

// #endregion checkpointing
