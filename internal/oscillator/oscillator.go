// Package oscillator generates the exact discrete trajectory of superposed
// harmonic oscillators using the three-term recurrence
// x_{n+1} = 2·cos(ωε)·x_n − x_{n−1}, seeded from the analytic solution.
// The recurrence is exact at sample instants and time-reversible.
package oscillator

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// #region errors
var (
	// ErrNoComponents is returned when the component set is empty.
	ErrNoComponents = errors.New("oscillator: no components")
	// ErrZeroOmega is returned when a component has ω = 0.
	ErrZeroOmega = errors.New("oscillator: angular frequency must be non-zero")
	// ErrNonPositiveEpsilon is returned when the time step is not positive.
	ErrNonPositiveEpsilon = errors.New("oscillator: time step must be positive")
)

// #endregion errors

// degenerateTol bounds how close cos(ωε) may get to ±1 before the recurrence
// collapses to linear/constant motion and the configuration is flagged.
const degenerateTol = 1e-12

// #region component-gen
// componentGen holds the recurrence coefficient and two-sample history for
// one component. The history is plain fixed state, mutated once per step.
type componentGen struct {
	comp  Component
	coeff float64 // 2·cos(ωε)
	xPrev float64 // x_{n-1}
	xCurr float64 // x_n
}

// seed re-initializes the history from the analytic closed form at t=0 and t=ε.
func (c *componentGen) seed(epsilon float64) {
	c.xPrev = Analytic(c.comp, 0)
	c.xCurr = Analytic(c.comp, epsilon)
}

// #endregion component-gen

// #region generator
// Generator produces the lazy, restartable sample sequence for a superposition
// of components. Not safe for concurrent use; it is owned by the producer.
type Generator struct {
	components []componentGen
	epsilon    float64
	step       uint64 // sequence index of the next sample to emit
	degenerate bool
}

// New validates the configuration and seeds the recurrence. A degenerate
// ωε (cos(ωε) = ±1) is not an error: the recurrence stays well defined, the
// generator just flags the configuration so callers can surface it.
func New(components []Component, epsilon float64) (*Generator, error) {
	if len(components) == 0 {
		return nil, ErrNoComponents
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrNonPositiveEpsilon, epsilon)
	}

	g := &Generator{
		components: make([]componentGen, len(components)),
		epsilon:    epsilon,
	}
	for i, comp := range components {
		if comp.Omega == 0 {
			return nil, fmt.Errorf("%w: component %d", ErrZeroOmega, i)
		}
		cosEps := math.Cos(comp.Omega * epsilon)
		if math.Abs(cosEps) >= 1-degenerateTol {
			g.degenerate = true
		}
		g.components[i] = componentGen{comp: comp, coeff: 2 * cosEps}
		g.components[i].seed(epsilon)
	}
	return g, nil
}

// #endregion generator

// #region next
// Next emits the sample at the current sequence index and advances.
// Indices 0 and 1 come straight from the analytic seed; from index 2 on the
// recurrence takes over.
func (g *Generator) Next() Sample {
	var value float64
	switch g.step {
	case 0:
		for i := range g.components {
			value += g.components[i].xPrev
		}
	case 1:
		for i := range g.components {
			value += g.components[i].xCurr
		}
	default:
		for i := range g.components {
			c := &g.components[i]
			xNext := c.coeff*c.xCurr - c.xPrev
			c.xPrev = c.xCurr
			c.xCurr = xNext
			value += xNext
		}
	}

	s := Sample{
		Seq:   g.step,
		T:     float64(g.step) * g.epsilon,
		Value: value,
		Wall:  time.Now().UTC(),
	}
	g.step++
	return s
}

// #endregion next

// #region back
// Back rewinds the recurrence by one sample, exploiting time reversibility:
// x_{n−1} = 2·cos(ωε)·x_n − x_{n+1}. It returns false when the generator is
// still inside the seeded region (indices 0 and 1) and there is nothing to
// reverse.
func (g *Generator) Back() bool {
	if g.step <= 2 {
		if g.step == 0 {
			return false
		}
		g.step--
		return true
	}
	for i := range g.components {
		c := &g.components[i]
		xBack := c.coeff*c.xPrev - c.xCurr
		c.xCurr = c.xPrev
		c.xPrev = xBack
	}
	g.step--
	return true
}

// #endregion back

// #region batch
// Batch emits n consecutive samples into a slice.
func (g *Generator) Batch(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// #endregion batch

// #region reset
// Reset re-seeds every component from its analytic initial conditions and
// rewinds the sequence index to zero.
func (g *Generator) Reset() {
	for i := range g.components {
		g.components[i].seed(g.epsilon)
	}
	g.step = 0
}

// #endregion reset

// #region accessors
// Degenerate reports whether any component has cos(ωε) at ±1, collapsing its
// recurrence to linear or constant motion.
func (g *Generator) Degenerate() bool {
	return g.degenerate
}

// Epsilon returns the configured time step.
func (g *Generator) Epsilon() float64 {
	return g.epsilon
}

// State snapshots the recurrence history and step counter.
func (g *Generator) State() State {
	st := State{
		Components: make([]ComponentState, len(g.components)),
		Step:       g.step,
		Epsilon:    g.epsilon,
	}
	for i := range g.components {
		st.Components[i] = ComponentState{
			XPrev: g.components[i].xPrev,
			XCurr: g.components[i].xCurr,
		}
	}
	return st
}

// #endregion accessors

// #region analytic
// Analytic evaluates the continuous closed-form solution
// x(t) = x0·cos(ωt+φ) + (v0/ω)·sin(ωt+φ) for one component.
func Analytic(c Component, t float64) float64 {
	arg := c.Omega*t + c.Phi
	return c.X0*math.Cos(arg) + (c.V0/c.Omega)*math.Sin(arg)
}

// #endregion analytic
