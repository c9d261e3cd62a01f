// Package metrics provides the rolling performance window over entropy
// increments. Its variance and irregularity figures are what separates a
// clean trajectory from a noise-perturbed one.
package metrics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidSize is returned for a non-positive window size.
var ErrInvalidSize = errors.New("metrics: window size must be positive")

// #region window
// Window is a fixed-capacity ring over the most recent observations.
// Owned by the consumer loop; not safe for concurrent use.
type Window struct {
	buf   []float64
	next  int
	count int
}

// NewWindow creates a rolling window holding up to size observations.
func NewWindow(size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	return &Window{buf: make([]float64, size)}, nil
}

// Push records one observation, evicting the oldest once full.
func (w *Window) Push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of held observations.
func (w *Window) Len() int {
	return w.count
}

// #endregion window

// #region stats
// Snapshot summarizes the current window contents.
type Snapshot struct {
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	Variance     float64 `json:"variance"`
	Irregularity float64 `json:"irregularity"` // mean |successive difference|
}

// Stats computes the window summary. Ordering matters for irregularity, so
// observations are unrolled oldest-first before differencing.
func (w *Window) Stats() Snapshot {
	if w.count == 0 {
		return Snapshot{}
	}
	vals := w.ordered()
	snap := Snapshot{
		Count: w.count,
		Mean:  stat.Mean(vals, nil),
	}
	if w.count > 1 {
		snap.Variance = stat.Variance(vals, nil)
		var sum float64
		for i := 1; i < len(vals); i++ {
			d := vals[i] - vals[i-1]
			if d < 0 {
				d = -d
			}
			sum += d
		}
		snap.Irregularity = sum / float64(len(vals)-1)
	}
	return snap
}

// ordered returns the window contents oldest-first.
func (w *Window) ordered() []float64 {
	out := make([]float64, w.count)
	if w.count < len(w.buf) {
		copy(out, w.buf[:w.count])
		return out
	}
	n := copy(out, w.buf[w.next:])
	copy(out[n:], w.buf[:w.next])
	return out
}

// #endregion stats
