package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/ska-stream/internal/config"
	"github.com/danielpatrickdp/ska-stream/internal/emit"
	"github.com/danielpatrickdp/ska-stream/internal/learner"
	"github.com/danielpatrickdp/ska-stream/internal/oscillator"
	"github.com/danielpatrickdp/ska-stream/internal/stream"
)

// #region main

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (defaults when empty)")
	samples := flag.Uint64("samples", 0, "override sample count")
	outPath := flag.String("out", "", "output file path")
	format := flag.String("format", "json", "output format: json | csv")
	flag.Parse()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: export [--config path] [--samples N] --out path [--format json|csv]")
		os.Exit(2)
	}

	if err := run(*cfgPath, *samples, *outPath, *format); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run

// exportDoc is the JSON export layout: run metadata plus the full record set.
type exportDoc struct {
	Metadata exportMeta       `json:"metadata"`
	Data     []learner.Output `json:"data"`
}

type exportMeta struct {
	Epsilon        float64                `json:"epsilon"`
	Components     []oscillator.Component `json:"components"`
	Strategy       string                 `json:"strategy"`
	Seed           int64                  `json:"seed"`
	TotalPoints    int                    `json:"total_points"`
	Discretization string                 `json:"discretization"`
}

func run(cfgPath string, samples uint64, outPath, format string) error {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}
	if samples > 0 {
		cfg.Oscillator.Samples = samples
	}
	if cfg.Oscillator.Samples == 0 {
		return fmt.Errorf("export requires a bounded run (set samples)")
	}
	// Export runs in-memory: no checkpoint store, no live sinks.
	cfg.Checkpoint.Interval = 0

	var outputs []learner.Output
	collector := stream.SinkFunc(func(out learner.Output) error {
		outputs = append(outputs, out)
		return nil
	})

	runner, err := stream.New(cfg, nil, collector)
	if err != nil {
		return err
	}
	if _, err := runner.Run(context.Background()); err != nil {
		return err
	}

	switch format {
	case "json":
		return writeJSON(cfg, outputs, outPath)
	case "csv":
		return writeCSV(outputs, outPath)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeJSON(cfg *config.Config, outputs []learner.Output, outPath string) error {
	doc := exportDoc{
		Metadata: exportMeta{
			Epsilon:        cfg.Oscillator.Epsilon,
			Components:     cfg.Oscillator.Components,
			Strategy:       cfg.Learner.Strategy,
			Seed:           cfg.Learner.Seed,
			TotalPoints:    len(outputs),
			Discretization: "exact",
		},
		Data: outputs,
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

func writeCSV(outputs []learner.Output, outPath string) error {
	sink, err := emit.NewCSVSink(outPath)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		if err := sink.Emit(out); err != nil {
			sink.Close()
			return err
		}
	}
	return sink.Close()
}

// #endregion run
