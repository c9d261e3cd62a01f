package oscillator

import "time"

// #region component
// Component describes one harmonic oscillator in the superposition.
// Immutable after construction.
type Component struct {
	Omega float64 `yaml:"omega"` // angular frequency ω (rad/s), non-zero
	X0    float64 `yaml:"x0"`    // initial position
	V0    float64 `yaml:"v0"`    // initial velocity
	Phi   float64 `yaml:"phi"`   // phase φ (radians)
}

// #endregion component

// #region sample
// Sample is one emitted point of the superposed signal.
// Flows by value through the buffer; immutable once produced.
type Sample struct {
	Seq   uint64    // sequence index n, strictly increasing, gapless
	T     float64   // physical time t = n·ε
	Value float64   // feature value x_n (sum over components)
	Wall  time.Time // wall clock at emission (informational only)
}

// #endregion sample

// #region state
// ComponentState is the two-sample recurrence history for one component.
type ComponentState struct {
	XPrev float64 // x_{n-1}
	XCurr float64 // x_n
}

// State is a snapshot of the generator, mirroring the per-component
// recurrence history plus the shared step counter.
type State struct {
	Components []ComponentState
	Step       uint64
	Epsilon    float64
}

// #endregion state
