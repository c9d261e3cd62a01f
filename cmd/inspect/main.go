package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/ska-stream/internal/checkpoint"
	"github.com/danielpatrickdp/ska-stream/internal/runlog"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the checkpoint database")
	last := flag.Int("last", 20, "show N most recent checkpoints")
	version := flag.String("version", "", "show single checkpoint detail")
	run := flag.String("run", "", "show run_log events for a run ID")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/ska_stream.db [--last N] [--version id] [--run id] [--json]")
		os.Exit(2)
	}

	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *run != "":
		err = runEventsMode(store, *run, *jsonOut)
	case *version != "":
		err = runDetailMode(store, *version, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID   string  `json:"version_id"`
	RunID       string  `json:"run_id"`
	Seq         uint64  `json:"seq"`
	Step        uint64  `json:"step"`
	Knowledge   float64 `json:"knowledge"`
	Saturations uint64  `json:"saturations"`
	Strategy    string  `json:"strategy"`
	CreatedAt   string  `json:"created_at"`
}

func runListMode(store *checkpoint.Store, last int, jsonOut bool) error {
	records, err := store.List(last)
	if err != nil {
		return err
	}

	rows := make([]listRow, len(records))
	for i, rec := range records {
		rows[i] = listRow{
			VersionID:   rec.VersionID,
			RunID:       rec.RunID,
			Seq:         rec.Seq,
			Step:        rec.State.Step,
			Knowledge:   rec.State.Knowledge,
			Saturations: rec.State.Saturations,
			Strategy:    rec.State.Strategy,
			CreatedAt:   rec.CreatedAt.Format("2006-01-02 15:04:05"),
		}
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	fmt.Printf("%-36s  %-10s  %8s  %12s  %8s  %s\n",
		"VERSION", "STRATEGY", "SEQ", "KNOWLEDGE", "SATUR", "CREATED")
	fmt.Println(strings.Repeat("-", 96))
	for _, r := range rows {
		fmt.Printf("%-36s  %-10s  %8d  %12.6f  %8d  %s\n",
			r.VersionID, r.Strategy, r.Seq, r.Knowledge, r.Saturations, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(store *checkpoint.Store, versionID string, jsonOut bool) error {
	rec, err := store.Get(versionID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(struct {
			VersionID   string    `json:"version_id"`
			RunID       string    `json:"run_id"`
			Seq         uint64    `json:"seq"`
			Step        uint64    `json:"step"`
			Strategy    string    `json:"strategy"`
			Weights     []float64 `json:"weights"`
			Knowledge   float64   `json:"knowledge"`
			Clip        float64   `json:"clip"`
			Rate        float64   `json:"learning_rate"`
			Saturations uint64    `json:"saturations"`
			CreatedAt   string    `json:"created_at"`
		}{
			rec.VersionID, rec.RunID, rec.Seq, rec.State.Step, rec.State.Strategy,
			rec.State.Weights, rec.State.Knowledge, rec.State.Clip,
			rec.State.LearningRate, rec.State.Saturations,
			rec.CreatedAt.Format("2006-01-02 15:04:05.000"),
		})
	}

	fmt.Printf("version:       %s\n", rec.VersionID)
	fmt.Printf("run:           %s\n", rec.RunID)
	fmt.Printf("seq:           %d\n", rec.Seq)
	fmt.Printf("step:          %d\n", rec.State.Step)
	fmt.Printf("strategy:      %s\n", rec.State.Strategy)
	fmt.Printf("weights:       %v\n", rec.State.Weights)
	fmt.Printf("knowledge:     %.9f\n", rec.State.Knowledge)
	fmt.Printf("prev decision: %.9f\n", rec.State.PrevDecision)
	fmt.Printf("prev feature:  %.9f\n", rec.State.PrevFeature)
	fmt.Printf("clip:          %v\n", rec.State.Clip)
	fmt.Printf("learning rate: %v\n", rec.State.LearningRate)
	fmt.Printf("saturations:   %d\n", rec.State.Saturations)
	fmt.Printf("created:       %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05.000"))
	return nil
}

// #endregion detail-mode

// #region events-mode

func runEventsMode(store *checkpoint.Store, runID string, jsonOut bool) error {
	events, err := runlog.ListForRun(store.DB(), runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(events)
	}

	for _, e := range events {
		seq := "-"
		if e.Seq != nil {
			seq = fmt.Sprintf("%d", *e.Seq)
		}
		fmt.Printf("%s  %-20s  seq=%-8s  %s\n",
			e.CreatedAt.Format("15:04:05.000"), e.Event, seq, e.Detail)
	}
	return nil
}

// #endregion events-mode
