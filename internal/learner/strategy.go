package learner

import "fmt"

// #region strategy
// Strategy bundles the pluggable pieces of the entropy formulation: the
// feature representation φ feeding the decision, the entropy factor z, and
// the forward update term g. Both shipped strategies decide on the raw
// position; they differ only in what z measures.
type Strategy struct {
	Name string
	// Features computes φ(x_n); xPrev is the previous feature value.
	Features func(x, xPrev float64) []float64
	// Z computes the entropy factor z_n. The caller clips it to ±C before
	// it enters the entropy increment or the update.
	Z func(x, xPrev float64) float64
	// Gradient computes g(z_n, d_n, ΔH_n), applied as w += α·g. z arrives
	// already clipped.
	Gradient func(z, decision, entropy float64) []float64
}

// Dim returns the weight dimensionality this strategy expects.
func (s Strategy) Dim() int {
	return len(s.Features(0, 0))
}

// #endregion strategy

// #region registry
// Strategy names recognized in config.
const (
	StrategyPosition = "position"
	StrategyReturn   = "return"
)

// Strategies is the registry of shipped formulations.
var Strategies = map[string]Strategy{
	StrategyPosition: {
		Name: StrategyPosition,
		Features: func(x, _ float64) []float64 {
			return []float64{x}
		},
		Z: func(x, _ float64) float64 {
			return x
		},
		Gradient: func(z, _, entropy float64) []float64 {
			return []float64{entropy * z}
		},
	},
	// The return strategy keeps the position feature for the decision and
	// swaps only the entropy factor to the one-step return Δx, so the
	// decision shift and z rise and fall together along the trajectory.
	StrategyReturn: {
		Name: StrategyReturn,
		Features: func(x, _ float64) []float64 {
			return []float64{x}
		},
		Z: func(x, xPrev float64) float64 {
			return x - xPrev
		},
		Gradient: func(z, _, entropy float64) []float64 {
			return []float64{entropy * z}
		},
	},
}

// ParseStrategy resolves a config name, defaulting empty to position.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		name = StrategyPosition
	}
	s, ok := Strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("learner: unknown strategy %q", name)
	}
	return s, nil
}

// #endregion registry
