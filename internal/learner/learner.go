// Package learner implements the forward-only SKA entropy learning step.
// Each consumed sample updates the weight state and yields three correlated
// signals: a bounded decision, an entropy increment, and cumulative knowledge.
// There is no lookahead and no backward pass: the update at step n depends
// only on state observed up to and including n.
package learner

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/danielpatrickdp/ska-stream/internal/oscillator"
)

// invLn2 converts the entropy increment to bits: ΔH = −(1/ln2)·z·ΔD.
const invLn2 = 1 / math.Ln2

// #region errors
var (
	// ErrDiverged marks a non-finite weight or knowledge state. Fatal: a
	// diverged learner cannot be trusted to resume.
	ErrDiverged = errors.New("learner: state diverged to non-finite values")
	// ErrInvalidConfig is returned for hyperparameters rejected at construction.
	ErrInvalidConfig = errors.New("learner: invalid config")
)

// #endregion errors

// #region new-state
// NewState draws initial weights from N(0, WeightStd²) with the configured
// seed and starts from a neutral decision prior d = sigmoid(0) = 0.5, so the
// first step's ΔD measures the first real decision shift.
func NewState(cfg Config) (State, error) {
	if cfg.Clip <= 0 {
		return State{}, fmt.Errorf("%w: clip bound must be positive, got %v", ErrInvalidConfig, cfg.Clip)
	}
	if cfg.LearningRate < 0 {
		return State{}, fmt.Errorf("%w: learning rate must be non-negative, got %v", ErrInvalidConfig, cfg.LearningRate)
	}
	if cfg.WeightStd < 0 {
		return State{}, fmt.Errorf("%w: weight std must be non-negative, got %v", ErrInvalidConfig, cfg.WeightStd)
	}
	strat, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	weights := make([]float64, strat.Dim())
	for i := range weights {
		weights[i] = rng.NormFloat64() * cfg.WeightStd
	}

	return State{
		Weights:      weights,
		PrevDecision: 0.5,
		Clip:         cfg.Clip,
		LearningRate: cfg.LearningRate,
		Strategy:     strat.Name,
	}, nil
}

// #endregion new-state

// #region step
// Step is the pure transition function (state, sample) → (state, output).
// Order-dependent, no randomness, no suspension. Returns ErrDiverged when the
// updated state is non-finite; the stream must halt on it.
func Step(st State, s oscillator.Sample, strat Strategy) (State, Output, error) {
	next := st.Clone()

	// 1. Activation, clipped into [−C, C]. Saturation is counted, not fatal:
	// it is expected at startup while the weights are still hot.
	phi := strat.Features(s.Value, st.PrevFeature)
	var raw float64
	for i, w := range next.Weights {
		raw += w * phi[i]
	}
	a := raw
	clipped := false
	if a > st.Clip {
		a = st.Clip
		clipped = true
	} else if a < -st.Clip {
		a = -st.Clip
		clipped = true
	}
	if clipped {
		next.Saturations++
	}

	// 2. Decision, strictly inside (0,1) because |a| ≤ C.
	d := sigmoid(a)

	// 3. Knowledge increment: magnitude of the decision shift. Accumulates or
	// plateaus, never decreases.
	dD := math.Abs(d - st.PrevDecision)
	next.Knowledge += dD

	// 4. Entropy increment, discrete form of H = −(1/ln2)∫z dD. The factor
	// z is clipped to ±C like the activation, so |ΔH| ≤ C/ln2 and the
	// update below stays finite for any finite sample.
	z := clamp(strat.Z(s.Value, st.PrevFeature), st.Clip)
	dH := -invLn2 * z * dD

	// 5. Forward-only weight update.
	g := strat.Gradient(z, d, dH)
	for i := range next.Weights {
		next.Weights[i] += st.LearningRate * g[i]
	}

	next.PrevDecision = d
	next.PrevFeature = s.Value
	next.Step++

	if err := next.CheckFinite(); err != nil {
		return st, Output{}, err
	}

	out := Output{
		Seq:       s.Seq,
		T:         s.T,
		Wall:      s.Wall,
		Value:     s.Value,
		Decision:  d,
		Entropy:   dH,
		Knowledge: next.Knowledge,
		Clipped:   clipped,
	}
	return next, out, nil
}

// #endregion step

// #region finite-check
// CheckFinite verifies the state holds no NaN or Inf. Used after each step
// and by checkpoint restore validation.
func (s State) CheckFinite() error {
	for i, w := range s.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight[%d] = %v", ErrDiverged, i, w)
		}
	}
	if math.IsNaN(s.Knowledge) || math.IsInf(s.Knowledge, 0) {
		return fmt.Errorf("%w: knowledge = %v", ErrDiverged, s.Knowledge)
	}
	if math.IsNaN(s.PrevDecision) || s.PrevDecision <= 0 || s.PrevDecision >= 1 {
		return fmt.Errorf("%w: prev decision = %v", ErrDiverged, s.PrevDecision)
	}
	return nil
}

// #endregion finite-check

// clamp limits v to [−bound, bound].
func clamp(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// #region sigmoid
// sigmoid keeps its output strictly inside (0,1) even when exp under- or
// overflows for clip bounds beyond the float64 exponent range.
func sigmoid(a float64) float64 {
	d := 1 / (1 + math.Exp(-a))
	if d <= 0 {
		return math.SmallestNonzeroFloat64
	}
	if d >= 1 {
		return 1 - 1e-15
	}
	return d
}

// #endregion sigmoid
