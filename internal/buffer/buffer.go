// Package buffer provides the bounded FIFO between the sample producer and
// the learning consumer. Ordering is strict: entropy computation is causally
// ordered, so no reordering is permitted.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danielpatrickdp/ska-stream/internal/oscillator"
)

// #region policy
// Policy selects what happens when a sample is enqueued into a full buffer.
type Policy string

const (
	// Block suspends the producer until space frees up. Default: preserves
	// determinism and guarantees no data loss on a low-rate deterministic feed.
	Block Policy = "block"
	// DropOldest evicts the oldest unconsumed sample and counts the loss.
	DropOldest Policy = "drop_oldest"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case Block, DropOldest:
		return Policy(s), nil
	case "":
		return Block, nil
	default:
		return "", fmt.Errorf("buffer: unknown policy %q", s)
	}
}

// #endregion policy

// #region errors
var (
	// ErrInvalidCapacity is returned for a non-positive buffer size.
	ErrInvalidCapacity = errors.New("buffer: capacity must be positive")
	// ErrClosed is returned when popping from a closed, drained buffer.
	ErrClosed = errors.New("buffer: closed")
)

// #endregion errors

// #region buffer
// Buffer is a bounded single-producer single-consumer FIFO of samples.
type Buffer struct {
	ch      chan oscillator.Sample
	policy  Policy
	dropped atomic.Uint64
}

// New creates a buffer with the given capacity and backpressure policy.
func New(capacity int, policy Policy) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Buffer{
		ch:     make(chan oscillator.Sample, capacity),
		policy: policy,
	}, nil
}

// #endregion buffer

// #region push
// Push enqueues a sample. Under Block the producer suspends until space is
// available or ctx is done. Under DropOldest a full buffer evicts its oldest
// sample and records the loss; Push itself never suspends.
func (b *Buffer) Push(ctx context.Context, s oscillator.Sample) error {
	if b.policy == Block {
		select {
		case b.ch <- s:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case b.ch <- s:
			return nil
		default:
		}
		select {
		case <-b.ch:
			b.dropped.Add(1)
		default:
		}
	}
}

// #endregion push

// #region pop
// Pop dequeues the next sample in FIFO order, suspending until one arrives,
// the buffer is closed and drained, or ctx is done.
func (b *Buffer) Pop(ctx context.Context) (oscillator.Sample, error) {
	select {
	case s, ok := <-b.ch:
		if !ok {
			return oscillator.Sample{}, ErrClosed
		}
		return s, nil
	case <-ctx.Done():
		// Prefer a buffered sample over the cancellation so a drain loop can
		// keep consuming after shutdown is requested.
		select {
		case s, ok := <-b.ch:
			if !ok {
				return oscillator.Sample{}, ErrClosed
			}
			return s, nil
		default:
			return oscillator.Sample{}, ctx.Err()
		}
	}
}

// TryPop dequeues without suspending. ok is false when the buffer is empty.
func (b *Buffer) TryPop() (s oscillator.Sample, ok bool, err error) {
	select {
	case s, open := <-b.ch:
		if !open {
			return oscillator.Sample{}, false, ErrClosed
		}
		return s, true, nil
	default:
		return oscillator.Sample{}, false, nil
	}
}

// #endregion pop

// #region accessors
// Close signals end of stream. Buffered samples remain poppable.
func (b *Buffer) Close() {
	close(b.ch)
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.ch)
}

// Dropped returns the number of samples evicted under DropOldest.
func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Policy returns the configured backpressure policy.
func (b *Buffer) Policy() Policy {
	return b.policy
}

// #endregion accessors
