// Package emit holds the external collaborators around the core: per-step
// output sinks. Transport and format live here so the learning core stays
// free of I/O concerns.
package emit

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/danielpatrickdp/ska-stream/internal/learner"
)

// #region jsonl
// JSONLSink appends one JSON object per step to a file.
type JSONLSink struct {
	f *os.File
	w *bufio.Writer
}

// NewJSONLSink creates (or truncates) the target file.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl sink: %w", err)
	}
	return &JSONLSink{f: f, w: bufio.NewWriter(f)}, nil
}

// Emit writes one output record as a JSON line.
func (s *JSONLSink) Emit(out learner.Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *JSONLSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush jsonl: %w", err)
	}
	return s.f.Close()
}

// #endregion jsonl

// #region csv
// csvHeader is the column layout of the CSV sink and the export tool.
var csvHeader = []string{"seq", "t", "timestamp", "value", "decision", "entropy", "knowledge"}

// CSVSink appends one row per step to a CSV file.
type CSVSink struct {
	f *os.File
	w *csv.Writer
}

// NewCSVSink creates the target file and writes the header row.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv sink: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSVSink{f: f, w: w}, nil
}

// Emit writes one output record as a CSV row.
func (s *CSVSink) Emit(out learner.Output) error {
	row := []string{
		strconv.FormatUint(out.Seq, 10),
		strconv.FormatFloat(out.T, 'g', -1, 64),
		out.Wall.Format(time.RFC3339Nano),
		strconv.FormatFloat(out.Value, 'g', -1, 64),
		strconv.FormatFloat(out.Decision, 'g', -1, 64),
		strconv.FormatFloat(out.Entropy, 'g', -1, 64),
		strconv.FormatFloat(out.Knowledge, 'g', -1, 64),
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.f.Close()
}

// #endregion csv
