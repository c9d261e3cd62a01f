// Package config loads and validates the stream configuration. Configs are
// constructed once at startup and passed by reference; invalid values are
// rejected, never silently replaced with defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/ska-stream/internal/buffer"
	"github.com/danielpatrickdp/ska-stream/internal/learner"
	"github.com/danielpatrickdp/ska-stream/internal/oscillator"
)

// ErrInvalid wraps all validation failures.
var ErrInvalid = errors.New("config: invalid")

// #region config
// Config is the root configuration structure.
type Config struct {
	Oscillator OscillatorConfig `yaml:"oscillator"`
	Learner    learner.Config   `yaml:"learner"`
	Buffer     BufferConfig     `yaml:"buffer"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Stream     StreamConfig     `yaml:"stream"`
	Window     int              `yaml:"window"` // performance-window size in steps
	Emit       EmitConfig       `yaml:"emit"`
}

// OscillatorConfig describes the signal source.
type OscillatorConfig struct {
	Epsilon    float64                `yaml:"epsilon"`
	Components []oscillator.Component `yaml:"components"`
	// Samples bounds the run; 0 means stream until cancelled.
	Samples uint64 `yaml:"samples"`
}

// BufferConfig sizes the producer/consumer FIFO.
type BufferConfig struct {
	Size   int    `yaml:"size"`
	Policy string `yaml:"policy"` // "block" (default) | "drop_oldest"
}

// CheckpointConfig controls durable snapshots.
type CheckpointConfig struct {
	Path           string `yaml:"path"`
	Interval       uint64 `yaml:"interval"`         // steps between snapshots; 0 disables
	WriteTimeoutMs int    `yaml:"write_timeout_ms"` // bound on a single snapshot write
}

// StreamConfig holds operational knobs for the pipeline runner.
type StreamConfig struct {
	BatchSize         int     `yaml:"batch_size"`          // samples produced per cycle
	IdlePollMs        int     `yaml:"idle_poll_ms"`        // consumer poll interval when idle
	ShutdownTimeoutMs int     `yaml:"shutdown_timeout_ms"` // drain bound on graceful shutdown
	Realtime          bool    `yaml:"realtime"`            // pace emission against wall time
	NoiseStd          float64 `yaml:"noise_std"`           // zero-mean Gaussian noise on the feature
	NoiseSeed         int64   `yaml:"noise_seed"`
}

// EmitConfig selects output sinks. Empty fields disable a sink.
type EmitConfig struct {
	JSONL      string `yaml:"jsonl"`
	CSV        string `yaml:"csv"`
	ListenAddr string `yaml:"listen_addr"` // websocket live feed, e.g. ":8990"
}

// #endregion config

// #region defaults
// Default returns the baseline configuration: a single slow oscillator,
// block backpressure, position-based learning.
func Default() *Config {
	return &Config{
		Oscillator: OscillatorConfig{
			Epsilon: 0.1,
			Components: []oscillator.Component{
				{Omega: 0.15, X0: 1.0, V0: 0.0, Phi: 0.0},
			},
			Samples: 10000,
		},
		Learner: learner.DefaultConfig(),
		Buffer: BufferConfig{
			Size:   256,
			Policy: string(buffer.Block),
		},
		Checkpoint: CheckpointConfig{
			Path:           "ska_stream.db",
			Interval:       1000,
			WriteTimeoutMs: 2000,
		},
		Stream: StreamConfig{
			BatchSize:         32,
			IdlePollMs:        5,
			ShutdownTimeoutMs: 5000,
			NoiseSeed:         7,
		},
		Window: 256,
	}
}

// #endregion defaults

// #region load
// Load reads a YAML config file. Missing file is an error; callers wanting
// defaults call Default() explicitly.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// #endregion load

// #region validate
// Validate rejects structurally invalid configuration before any stream
// starts. Component-level and learner-level checks are repeated by the
// owning constructors; this pass fails fast with config-shaped errors.
func (c *Config) Validate() error {
	if c.Oscillator.Epsilon <= 0 {
		return fmt.Errorf("%w: oscillator.epsilon must be positive, got %v", ErrInvalid, c.Oscillator.Epsilon)
	}
	if len(c.Oscillator.Components) == 0 {
		return fmt.Errorf("%w: oscillator.components must not be empty", ErrInvalid)
	}
	for i, comp := range c.Oscillator.Components {
		if comp.Omega == 0 {
			return fmt.Errorf("%w: oscillator.components[%d].omega must be non-zero", ErrInvalid, i)
		}
	}
	if c.Buffer.Size <= 0 {
		return fmt.Errorf("%w: buffer.size must be positive, got %d", ErrInvalid, c.Buffer.Size)
	}
	if _, err := buffer.ParsePolicy(c.Buffer.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := learner.ParseStrategy(c.Learner.Strategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Learner.Clip <= 0 {
		return fmt.Errorf("%w: learner.clip must be positive, got %v", ErrInvalid, c.Learner.Clip)
	}
	if c.Learner.LearningRate < 0 {
		return fmt.Errorf("%w: learner.learning_rate must be non-negative", ErrInvalid)
	}
	if c.Checkpoint.Interval > 0 && c.Checkpoint.Path == "" {
		return fmt.Errorf("%w: checkpoint.path required when checkpoint.interval > 0", ErrInvalid)
	}
	if c.Checkpoint.WriteTimeoutMs < 0 {
		return fmt.Errorf("%w: checkpoint.write_timeout_ms must be non-negative", ErrInvalid)
	}
	if c.Stream.BatchSize <= 0 {
		return fmt.Errorf("%w: stream.batch_size must be positive, got %d", ErrInvalid, c.Stream.BatchSize)
	}
	if c.Stream.IdlePollMs < 0 || c.Stream.ShutdownTimeoutMs < 0 {
		return fmt.Errorf("%w: stream poll/timeout values must be non-negative", ErrInvalid)
	}
	if c.Stream.NoiseStd < 0 {
		return fmt.Errorf("%w: stream.noise_std must be non-negative, got %v", ErrInvalid, c.Stream.NoiseStd)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrInvalid, c.Window)
	}
	return nil
}

// #endregion validate

// #region duration-accessors
// WriteTimeout returns the checkpoint write bound as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Checkpoint.WriteTimeoutMs) * time.Millisecond
}

// IdlePoll returns the consumer idle poll interval.
func (c *Config) IdlePoll() time.Duration {
	return time.Duration(c.Stream.IdlePollMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful drain bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Stream.ShutdownTimeoutMs) * time.Millisecond
}

// #endregion duration-accessors
