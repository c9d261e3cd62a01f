package learner

import "time"

// #region state
// State is the full learner state: everything needed to resume stepping from
// the next unseen sample. Exclusively owned by the consumer loop; mutated via
// Step only. Weights, PrevDecision and PrevFeature are carried across steps;
// the rest is configuration and counters.
type State struct {
	Weights      []float64 // weight vector w
	Knowledge    float64   // cumulative knowledge D
	PrevDecision float64   // d_{n-1}, seeds ΔD on the next step
	PrevFeature  float64   // x_{n-1}, feeds the return strategy
	Clip         float64   // numerical clip bound C
	LearningRate float64   // α
	Step         uint64    // consumed sample count n
	Saturations  uint64    // activations clipped so far
	Strategy     string    // strategy name, for checkpoint round-trips
}

// Clone deep-copies the state so Step can stay a value transition.
func (s State) Clone() State {
	out := s
	out.Weights = make([]float64, len(s.Weights))
	copy(out.Weights, s.Weights)
	return out
}

// #endregion state

// #region config
// Config holds the learner hyperparameters. Constructed once at stream start.
type Config struct {
	WeightStd    float64 `yaml:"weight_std"`    // std of the initial weight draw
	Seed         int64   `yaml:"seed"`          // RNG seed for weight init
	LearningRate float64 `yaml:"learning_rate"` // α
	Clip         float64 `yaml:"clip"`          // C, must be positive
	Strategy     string  `yaml:"strategy"`      // "position" (default) | "return"
}

// DefaultConfig returns the baseline position-based configuration.
func DefaultConfig() Config {
	return Config{
		WeightStd:    0.1,
		Seed:         1,
		LearningRate: 0.01,
		Clip:         5.0,
		Strategy:     StrategyPosition,
	}
}

// #endregion config

// #region output
// Output is the public product of one learning step.
type Output struct {
	Seq       uint64    `json:"seq"`
	T         float64   `json:"t"`
	Wall      time.Time `json:"timestamp"`
	Value     float64   `json:"value"`     // x_n
	Decision  float64   `json:"decision"`  // d_n ∈ (0,1)
	Entropy   float64   `json:"entropy"`   // ΔH_n
	Knowledge float64   `json:"knowledge"` // D_n
	Clipped   bool      `json:"clipped,omitempty"`
}

// #endregion output
