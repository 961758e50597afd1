package disruptor

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

type testEvent struct {
	Value int64
	A, B  int64
	C     int64
}

func newTestEvent() testEvent {
	return testEvent{Value: -1, A: -1, B: -1, C: -1}
}

func TestNewRingBufferPowerOfTwo(t *testing.T) {
	for _, size := range []int{1, 2, 4, 1024, 1 << 16} {
		var calls int
		rb, err := NewRingBuffer(func() testEvent { calls++; return newTestEvent() }, size)
		if err != nil {
			t.Fatalf("size %d: unexpected error: %v", size, err)
		}
		if rb.BufferSize() != size {
			t.Fatalf("size %d: got buffer size %d", size, rb.BufferSize())
		}
		if calls != size {
			t.Fatalf("size %d: factory called %d times", size, calls)
		}
		if rb.Cursor() != InitialSequence {
			t.Fatalf("size %d: cursor %d, expected %d", size, rb.Cursor(), InitialSequence)
		}
	}

	for _, size := range []int{-8, 0, 3, 6, 1000} {
		if _, err := NewRingBuffer(newTestEvent, size); !errors.Is(err, ErrInvalidBufferSize) {
			t.Fatalf("size %d: expected ErrInvalidBufferSize, got %v", size, err)
		}
	}

	if _, err := NewRingBuffer[testEvent](nil, 8); !errors.Is(err, ErrNilFactory) {
		t.Fatalf("expected ErrNilFactory, got %v", err)
	}
}

// Claiming a sequence then reading it back yields the slot written, and
// slots are reused once the ring wraps.
func TestRingBufferNextGetRoundTrip(t *testing.T) {
	const size = 8
	rb, err := NewRingBuffer(newTestEvent, size)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := int64(0); i < size; i++ {
		seq, err := rb.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if seq != i {
			t.Fatalf("expected sequence %d, got %d", i, seq)
		}
		rb.Get(seq).Value = i * 10
		rb.Publish(seq)
	}

	for i := int64(0); i < size; i++ {
		if v := rb.Get(i).Value; v != i*10 {
			t.Fatalf("slot %d: expected %d, got %d", i, i*10, v)
		}
		if rb.Get(i) != rb.Get(i+size) {
			t.Fatalf("slot %d is not reused at %d", i, i+size)
		}
		if !rb.IsPublished(i) {
			t.Fatalf("sequence %d not published", i)
		}
	}
	if rb.Cursor() != size-1 {
		t.Fatalf("expected cursor %d, got %d", size-1, rb.Cursor())
	}
}

func TestRingBufferClaimBounds(t *testing.T) {
	rb, err := NewRingBuffer(newTestEvent, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int64{0, -1, 5} {
		if _, err := rb.NextN(context.Background(), n); !errors.Is(err, ErrInvalidClaim) {
			t.Fatalf("n=%d: expected ErrInvalidClaim, got %v", n, err)
		}
		if _, err := rb.TryNextN(n); !errors.Is(err, ErrInvalidClaim) {
			t.Fatalf("n=%d: expected ErrInvalidClaim, got %v", n, err)
		}
	}
	hi, err := rb.NextN(context.Background(), 4)
	if err != nil || hi != 3 {
		t.Fatalf("expected hi=3, got %d (%v)", hi, err)
	}
}

func TestRingBufferPublishEvents(t *testing.T) {
	for _, pt := range []ProducerType{SingleProducer, MultiProducer} {
		t.Run(pt.String(), func(t *testing.T) {
			rb, err := NewRingBuffer(newTestEvent, 16, WithProducerType(pt))
			if err != nil {
				t.Fatal(err)
			}

			values := []int64{7, 8, 9}
			err = PublishEvents(context.Background(), rb, values, func(e *testEvent, seq int64, v int64) {
				e.Value = v
			})
			if err != nil {
				t.Fatal(err)
			}
			if err := PublishEvents[testEvent, int64](context.Background(), rb, nil, nil); err != nil {
				t.Fatalf("empty batch: %v", err)
			}

			if rb.Cursor() != 2 {
				t.Fatalf("expected cursor 2, got %d", rb.Cursor())
			}
			for i, v := range values {
				if !rb.IsPublished(int64(i)) {
					t.Fatalf("sequence %d not published", i)
				}
				if got := rb.Get(int64(i)).Value; got != v {
					t.Fatalf("sequence %d: expected %d, got %d", i, v, got)
				}
			}
		})
	}
}

// A panicking translator must not leave its slot claimed but unpublished.
func TestRingBufferPublishEventTranslatorPanic(t *testing.T) {
	rb, err := NewRingBuffer(newTestEvent, 4, WithProducerType(MultiProducer))
	if err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic")
			}
		}()
		_ = rb.PublishEvent(context.Background(), func(e *testEvent, seq int64) {
			panic("boom")
		})
	}()

	if !rb.IsPublished(0) {
		t.Fatalf("sequence 0 left unpublished")
	}

	if err := rb.TryPublishEvent(func(e *testEvent, seq int64) { e.Value = seq }); err != nil {
		t.Fatal(err)
	}
	if got := rb.Get(1).Value; got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestRingBufferRemainingCapacity(t *testing.T) {
	rb, err := NewRingBuffer(newTestEvent, 8)
	if err != nil {
		t.Fatal(err)
	}
	consumer := NewSequence(InitialSequence)
	rb.AddGatingSequences(consumer)

	if c := rb.RemainingCapacity(); c != 8 {
		t.Fatalf("expected 8, got %d", c)
	}
	hi, _ := rb.NextN(context.Background(), 5)
	rb.PublishRange(hi-4, hi)
	if c := rb.RemainingCapacity(); c != 3 {
		t.Fatalf("expected 3, got %d", c)
	}
	consumer.Set(2)
	if c := rb.RemainingCapacity(); c != 6 {
		t.Fatalf("expected 6, got %d", c)
	}
	if m := rb.MinimumGatingSequence(); m != 2 {
		t.Fatalf("expected minimum gating sequence 2, got %d", m)
	}
	if !rb.RemoveGatingSequence(consumer) {
		t.Fatalf("expected gating sequence to be removed")
	}
	if rb.RemoveGatingSequence(consumer) {
		t.Fatalf("expected second removal to fail")
	}
}

// Benchmark: single producer, single batch consumer.
func BenchmarkRingBuffer_1P1C(b *testing.B) {
	const capacity = 1 << 16
	benchmarkRingBuffer(b, capacity, SingleProducer, 1)
}

// Benchmark: many producers, single batch consumer.
func BenchmarkRingBuffer_4P1C(b *testing.B) {
	const capacity = 1 << 16
	benchmarkRingBuffer(b, capacity, MultiProducer, 4)
}

func benchmarkRingBuffer(b *testing.B, capacity int, pt ProducerType, producers int) {
	rb, err := NewRingBuffer(newTestEvent, capacity, WithProducerType(pt), WithWaitStrategy(YieldingWaitStrategy{}))
	if err != nil {
		b.Fatal(err)
	}

	var sum atomic.Int64
	p := NewBatchEventProcessor(rb, rb.NewBarrier(), EventHandlerFunc[testEvent](func(e *testEvent, _ int64, _ bool) error {
		sum.Add(1)
		return nil
	}))
	rb.AddGatingSequences(p.Sequence())

	done := make(chan struct{})
	go func() {
		_ = p.Run()
		close(done)
	}()

	perProducer := b.N/producers + 1
	total := int64(perProducer * producers)

	b.ResetTimer()
	start := make(chan struct{})
	finished := make(chan struct{}, producers)
	for i := 0; i < producers; i++ {
		go func() {
			<-start
			ctx := context.Background()
			for j := 0; j < perProducer; j++ {
				seq, err := rb.Next(ctx)
				if err != nil {
					panic(err)
				}
				rb.Get(seq).Value = int64(j)
				rb.Publish(seq)
			}
			finished <- struct{}{}
		}()
	}
	close(start)
	for i := 0; i < producers; i++ {
		<-finished
	}
	for sum.Load() != total {
		runtime.Gosched()
	}
	b.StopTimer()

	p.Halt()
	<-done
}
