package learner

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/ska-stream/internal/oscillator"
)

func mustState(t *testing.T, cfg Config) State {
	t.Helper()
	st, err := NewState(cfg)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return st
}

func mustStrategy(t *testing.T, name string) Strategy {
	t.Helper()
	s, err := ParseStrategy(name)
	if err != nil {
		t.Fatalf("ParseStrategy: %v", err)
	}
	return s
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero clip", Config{Clip: 0, LearningRate: 0.01}},
		{"negative clip", Config{Clip: -1, LearningRate: 0.01}},
		{"negative rate", Config{Clip: 1, LearningRate: -0.01}},
		{"negative std", Config{Clip: 1, WeightStd: -0.1}},
		{"bogus strategy", Config{Clip: 1, Strategy: "spectral"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewState(tc.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDecisionBoundedness(t *testing.T) {
	strat := mustStrategy(t, StrategyPosition)
	st := mustState(t, DefaultConfig())
	st.Weights[0] = 1e12 // absurd weight, pre-clip activation is enormous

	for i, x := range []float64{1e6, -1e6, 0, 1e300, -1e300} {
		next, out, err := Step(st, oscillator.Sample{Seq: uint64(i), Value: x}, strat)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if out.Decision <= 0 || out.Decision >= 1 {
			t.Fatalf("decision %v not strictly inside (0,1) for x=%v", out.Decision, x)
		}
		st = next
	}
	if st.Saturations == 0 {
		t.Fatal("expected saturation events for huge activations")
	}
}

func TestEntropyArgumentClipped(t *testing.T) {
	for _, name := range []string{StrategyPosition, StrategyReturn} {
		strat := mustStrategy(t, name)
		cfg := DefaultConfig()
		cfg.Strategy = name
		st := mustState(t, cfg)
		st.Weights[0] = 1.0

		next, out, err := Step(st, oscillator.Sample{Value: 1e300}, strat)
		if err != nil {
			t.Fatalf("%s: Step on large finite sample: %v", name, err)
		}
		// |ΔH| ≤ (1/ln2)·C since the entropy factor is clipped and ΔD < 1.
		if bound := invLn2 * st.Clip; math.Abs(out.Entropy) > bound {
			t.Fatalf("%s: entropy %v exceeds clipped bound %v", name, out.Entropy, bound)
		}
		if math.IsNaN(next.Weights[0]) || math.IsInf(next.Weights[0], 0) {
			t.Fatalf("%s: weight diverged on a large finite sample: %v", name, next.Weights[0])
		}
	}
}

func TestSaturationCounted(t *testing.T) {
	strat := mustStrategy(t, StrategyPosition)
	st := mustState(t, Config{Clip: 0.5, LearningRate: 0, Seed: 1})
	st.Weights[0] = 1.0

	_, out, err := Step(st, oscillator.Sample{Value: 2.0}, strat)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !out.Clipped {
		t.Fatal("expected clipped output")
	}
	// sigmoid(0.5), not sigmoid(2.0)
	want := 1 / (1 + math.Exp(-0.5))
	if math.Abs(out.Decision-want) > 1e-12 {
		t.Fatalf("decision %v, want sigmoid(clip)=%v", out.Decision, want)
	}
}

func TestKnowledgeNeverDecreases(t *testing.T) {
	for _, name := range []string{StrategyPosition, StrategyReturn} {
		strat := mustStrategy(t, name)
		cfg := DefaultConfig()
		cfg.Strategy = name
		st := mustState(t, cfg)

		g, err := oscillator.New([]oscillator.Component{{Omega: 0.15, X0: 1.0}}, 0.1)
		if err != nil {
			t.Fatalf("oscillator.New: %v", err)
		}
		prev := 0.0
		for i := 0; i < 2000; i++ {
			next, out, err := Step(st, g.Next(), strat)
			if err != nil {
				t.Fatalf("Step %d: %v", i, err)
			}
			if out.Knowledge < prev {
				t.Fatalf("%s: knowledge decreased at step %d: %v < %v", name, i, out.Knowledge, prev)
			}
			prev = out.Knowledge
			st = next
		}
	}
}

func TestStepPureAndDeterministic(t *testing.T) {
	strat := mustStrategy(t, StrategyPosition)
	st := mustState(t, DefaultConfig())
	s := oscillator.Sample{Seq: 3, T: 0.3, Value: 0.7}

	before := st.Clone()
	n1, o1, err := Step(st, s, strat)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	n2, o2, err := Step(st, s, strat)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	// Input state untouched.
	for i := range st.Weights {
		if st.Weights[i] != before.Weights[i] {
			t.Fatalf("input state mutated at weight %d", i)
		}
	}
	// Bit-identical transitions.
	if o1 != o2 {
		t.Fatalf("outputs differ: %+v vs %+v", o1, o2)
	}
	for i := range n1.Weights {
		if n1.Weights[i] != n2.Weights[i] {
			t.Fatalf("next states differ at weight %d", i)
		}
	}
}

func TestSeededInitDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	a := mustState(t, cfg)
	b := mustState(t, cfg)
	for i := range a.Weights {
		if a.Weights[i] != b.Weights[i] {
			t.Fatalf("same seed produced different weights at %d", i)
		}
	}
	cfg.Seed = 2
	c := mustState(t, cfg)
	if a.Weights[0] == c.Weights[0] {
		t.Fatal("different seeds produced identical weights")
	}
}

func TestDivergenceFatal(t *testing.T) {
	strat := mustStrategy(t, StrategyPosition)
	st := mustState(t, DefaultConfig())
	st.Weights[0] = math.MaxFloat64
	st.LearningRate = math.MaxFloat64

	var err error
	s := oscillator.Sample{Value: 1e308}
	for i := 0; i < 4 && err == nil; i++ {
		st, _, err = Step(st, s, strat)
	}
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
}

func TestCheckFinite(t *testing.T) {
	st := mustState(t, DefaultConfig())
	if err := st.CheckFinite(); err != nil {
		t.Fatalf("fresh state flagged: %v", err)
	}
	st.Weights[0] = math.NaN()
	if err := st.CheckFinite(); !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged for NaN weight, got %v", err)
	}
	st = mustState(t, DefaultConfig())
	st.Knowledge = math.Inf(1)
	if err := st.CheckFinite(); !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged for Inf knowledge, got %v", err)
	}
}

// TestEntropyPhaseCorrelation validates the designed coupling between the
// entropy increment and the motion: over one full period of an undamped
// oscillator, |ΔH| bottoms out where the trajectory turns (|x| maximal) and
// peaks where it crosses zero (rate of change maximal). The return-based
// formulation makes both factors of ΔH track the position return directly.
func TestEntropyPhaseCorrelation(t *testing.T) {
	const (
		omega = 0.15
		eps   = 0.1
	)
	strat := mustStrategy(t, StrategyReturn)
	st := mustState(t, Config{Clip: 5, LearningRate: 0.001, Strategy: StrategyReturn, Seed: 1})
	st.Weights[0] = 1.0

	g, err := oscillator.New([]oscillator.Component{{Omega: omega, X0: 1.0, V0: 0.0}}, eps)
	if err != nil {
		t.Fatalf("oscillator.New: %v", err)
	}

	period := 2 * math.Pi / (omega * eps) // ≈ 418.9 samples
	n := int(period) + 2
	mag := make([]float64, n)
	for i := 0; i < n; i++ {
		next, out, err := Step(st, g.Next(), strat)
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		mag[i] = math.Abs(out.Entropy)
		st = next
	}

	// Samples nearest the zero crossings (ωt = π/2, 3π/2) and the extrema
	// (ωt = π, 2π) of x(t) = cos(ωt).
	crossings := []int{nearest(period / 4), nearest(3 * period / 4)}
	extrema := []int{nearest(period / 2), nearest(period)}

	const window = 5
	for _, c := range crossings {
		peak := argExtreme(mag, c-window, c+window, true)
		if abs(peak-c) > 1 {
			t.Fatalf("|ΔH| peak at %d, expected within 1 of zero crossing %d", peak, c)
		}
	}
	for _, e := range extrema {
		hi := e + window
		if hi > n-1 {
			hi = n - 1
		}
		trough := argExtreme(mag, e-window, hi, false)
		if abs(trough-e) > 1 {
			t.Fatalf("|ΔH| trough at %d, expected within 1 of extremum %d", trough, e)
		}
	}
}

func nearest(f float64) int {
	return int(math.Round(f))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// argExtreme returns the index of the max (or min) of v over [lo, hi].
func argExtreme(v []float64, lo, hi int, max bool) int {
	best := lo
	for i := lo + 1; i <= hi; i++ {
		if (max && v[i] > v[best]) || (!max && v[i] < v[best]) {
			best = i
		}
	}
	return best
}
