package buffer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielpatrickdp/ska-stream/internal/oscillator"
)

func sample(seq uint64) oscillator.Sample {
	return oscillator.Sample{Seq: seq, Value: float64(seq)}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"block", Block, false},
		{"drop_oldest", DropOldest, false},
		{"", Block, false},
		{"newest", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParsePolicy(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParsePolicy(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestInvalidCapacity(t *testing.T) {
	if _, err := New(0, Block); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestFIFOOrder(t *testing.T) {
	b, err := New(8, Block)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for i := uint64(0); i < 8; i++ {
		if err := b.Push(ctx, sample(i)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	for i := uint64(0); i < 8; i++ {
		s, err := b.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if s.Seq != i {
			t.Fatalf("expected seq %d, got %d", i, s.Seq)
		}
	}
}

func TestBlockPolicySuspendsProducer(t *testing.T) {
	b, err := New(1, Block)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := b.Push(ctx, sample(0)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- b.Push(ctx, sample(1))
	}()

	select {
	case <-pushed:
		t.Fatal("push into full buffer should have suspended")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := b.Pop(ctx); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("suspended push failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("push did not resume after pop")
	}
	if b.Dropped() != 0 {
		t.Fatalf("block policy dropped %d samples", b.Dropped())
	}
}

func TestBlockPolicyCancellation(t *testing.T) {
	b, err := New(1, Block)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Push(context.Background(), sample(0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.Push(ctx, sample(1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestDropOldestCountsLosses(t *testing.T) {
	b, err := New(2, DropOldest)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for i := uint64(0); i < 5; i++ {
		if err := b.Push(ctx, sample(i)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if b.Dropped() != 3 {
		t.Fatalf("expected 3 drops, got %d", b.Dropped())
	}
	// Oldest surviving samples are 3, 4.
	s, err := b.Pop(ctx)
	if err != nil || s.Seq != 3 {
		t.Fatalf("expected seq 3, got %d (%v)", s.Seq, err)
	}
	s, err = b.Pop(ctx)
	if err != nil || s.Seq != 4 {
		t.Fatalf("expected seq 4, got %d (%v)", s.Seq, err)
	}
}

func TestPopAfterClose(t *testing.T) {
	b, err := New(2, Block)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := b.Push(ctx, sample(7)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	b.Close()

	s, err := b.Pop(ctx)
	if err != nil || s.Seq != 7 {
		t.Fatalf("expected buffered sample after close, got %v (%v)", s.Seq, err)
	}
	if _, err := b.Pop(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPopPrefersBufferedOverCancel(t *testing.T) {
	b, err := New(2, Block)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Push(context.Background(), sample(1)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := b.Pop(ctx)
	if err != nil || s.Seq != 1 {
		t.Fatalf("expected buffered sample despite cancellation, got %v (%v)", s.Seq, err)
	}
	if _, err := b.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTryPop(t *testing.T) {
	b, err := New(2, Block)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok, err := b.TryPop(); ok || err != nil {
		t.Fatalf("TryPop on empty buffer: ok=%v err=%v", ok, err)
	}
	if err := b.Push(context.Background(), sample(2)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	s, ok, err := b.TryPop()
	if !ok || err != nil || s.Seq != 2 {
		t.Fatalf("TryPop: ok=%v err=%v seq=%d", ok, err, s.Seq)
	}
}
