package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/ska-stream/internal/checkpoint"
	"github.com/danielpatrickdp/ska-stream/internal/config"
	"github.com/danielpatrickdp/ska-stream/internal/emit"
	"github.com/danielpatrickdp/ska-stream/internal/stream"
)

// #region main
func main() {
	cfgPath := envOr("SKA_CONFIG", "")
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	} else {
		cfg = config.Default()
	}
	if dbPath := os.Getenv("SKA_DB"); dbPath != "" {
		cfg.Checkpoint.Path = dbPath
	}

	var store *checkpoint.Store
	if cfg.Checkpoint.Interval > 0 && cfg.Checkpoint.Path != "" {
		store, err = checkpoint.NewStore(cfg.Checkpoint.Path)
		if err != nil {
			log.Fatalf("failed to open checkpoint store: %v", err)
		}
		defer store.Close()
	}

	sinks, closers, err := buildSinks(cfg)
	if err != nil {
		log.Fatalf("failed to set up sinks: %v", err)
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Printf("sink close error: %v", err)
			}
		}
	}()

	runner, err := stream.New(cfg, store, sinks...)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println("SKA oscillator stream ready.")
	fmt.Printf("  ε=%v components=%d strategy=%s checkpoint=%s\n",
		cfg.Oscillator.Epsilon, len(cfg.Oscillator.Components),
		cfg.Learner.Strategy, cfg.Checkpoint.Path)

	sum, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("run %s halted: %v", sum.RunID, err)
	}

	fmt.Printf("[%s] steps=%d last_seq=%d D=%.6f saturations=%d\n",
		sum.RunID, sum.Steps, sum.LastSeq, sum.FinalState.Knowledge, sum.FinalState.Saturations)
	fmt.Printf("  window: mean=%.6g variance=%.6g irregularity=%.6g (n=%d)\n",
		sum.Window.Mean, sum.Window.Variance, sum.Window.Irregularity, sum.Window.Count)
	if sum.Dropped > 0 || sum.DroppedAtShutdown > 0 {
		fmt.Printf("  losses: backpressure=%d shutdown=%d\n", sum.Dropped, sum.DroppedAtShutdown)
	}
	if sum.CheckpointsSkipped > 0 {
		fmt.Printf("  checkpoints skipped on deadline: %d\n", sum.CheckpointsSkipped)
	}
	if sum.Degenerate {
		fmt.Println("  note: degenerate ωε configuration (cos(ωε) at ±1)")
	}
}

// #endregion main

// #region sinks
type closer interface {
	Close() error
}

func buildSinks(cfg *config.Config) ([]stream.Sink, []closer, error) {
	var sinks []stream.Sink
	var closers []closer

	if cfg.Emit.JSONL != "" {
		s, err := emit.NewJSONLSink(cfg.Emit.JSONL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
	}
	if cfg.Emit.CSV != "" {
		s, err := emit.NewCSVSink(cfg.Emit.CSV)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
	}
	if cfg.Emit.ListenAddr != "" {
		hub, err := emit.NewHub(cfg.Emit.ListenAddr)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("live feed at ws://%s/stream", hub.Addr())
		sinks = append(sinks, hub)
		closers = append(closers, hub)
	}
	return sinks, closers, nil
}

// #endregion sinks

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
