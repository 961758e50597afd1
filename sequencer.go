package disruptor

import (
	"context"
	"sync/atomic"
)

// ProducerType selects the sequencer used by a RingBuffer.
type ProducerType int

const (
	// SingleProducer may only be used when exactly one goroutine claims and
	// publishes; the claim path needs no atomics.
	SingleProducer ProducerType = iota
	// MultiProducer allows any number of goroutines to claim concurrently.
	MultiProducer
)

func (p ProducerType) String() string {
	switch p {
	case SingleProducer:
		return "single"
	case MultiProducer:
		return "multi"
	default:
		return "unknown"
	}
}

// Sequencer claims and publishes sequence numbers on behalf of producers,
// enforcing backpressure against the gating (consumer) sequences.
type Sequencer interface {
	// Next claims n contiguous sequences, returning the highest, blocking
	// (see Backoff) while the ring is full.
	Next(ctx context.Context, n int64) (int64, error)
	// TryNext is the non-blocking variant of Next.
	TryNext(n int64) (int64, error)
	// Publish makes seq visible to consumers.
	Publish(seq int64)
	// PublishRange publishes every sequence in [lo, hi].
	PublishRange(lo, hi int64)
	// IsAvailable reports whether seq has been published.
	IsAvailable(seq int64) bool
	// HighestPublishedSequence returns the highest contiguously published
	// sequence in [low, high], or low-1 if low itself is unpublished.
	HighestPublishedSequence(low, high int64) int64

	AddGatingSequences(seqs ...SequenceReader)
	RemoveGatingSequence(seq SequenceReader) bool
	// MinimumGatingSequence is the slowest gating sequence, or the cursor if
	// there are none.
	MinimumGatingSequence() int64

	NewBarrier(deps ...SequenceReader) *SequenceBarrier
	Cursor() int64
	CursorSequence() SequenceReader
	BufferSize() int
	RemainingCapacity() int64
	Stats() SequencerStats
}

// NewSequencer constructs the sequencer variant for producerType.
func NewSequencer(producerType ProducerType, bufferSize int, waitStrategy WaitStrategy, backoff Backoff) (Sequencer, error) {
	if !isPowerOfTwo(bufferSize) {
		return nil, ErrInvalidBufferSize
	}
	if waitStrategy == nil {
		waitStrategy = NewBlockingWaitStrategy()
	}
	switch producerType {
	case MultiProducer:
		return newMultiProducerSequencer(bufferSize, waitStrategy, backoff), nil
	default:
		return newSingleProducerSequencer(bufferSize, waitStrategy, backoff), nil
	}
}

// sequencerBase holds what both variants share: the published cursor, the
// gating set and the wait strategy to signal.
type sequencerBase struct {
	_            [64]byte
	cursor       Sequence
	bufferSize   int64
	waitStrategy WaitStrategy
	backoff      Backoff
	// copy-on-write, only mutated during wiring
	gating   atomic.Pointer[[]SequenceReader]
	counters sequencerCounters
	self     Sequencer
}

func (x *sequencerBase) init(self Sequencer, bufferSize int, waitStrategy WaitStrategy, backoff Backoff) {
	x.self = self
	x.cursor.Set(InitialSequence)
	x.bufferSize = int64(bufferSize)
	x.waitStrategy = waitStrategy
	x.backoff = backoff.normalize()
	x.gating.Store(&[]SequenceReader{})
}

func (x *sequencerBase) gatingSequences() []SequenceReader {
	return *x.gating.Load()
}

func (x *sequencerBase) AddGatingSequences(seqs ...SequenceReader) {
	for {
		old := x.gating.Load()
		updated := make([]SequenceReader, 0, len(*old)+len(seqs))
		updated = append(updated, *old...)
		updated = append(updated, seqs...)
		if x.gating.CompareAndSwap(old, &updated) {
			return
		}
	}
}

func (x *sequencerBase) RemoveGatingSequence(seq SequenceReader) bool {
	for {
		old := x.gating.Load()
		updated := make([]SequenceReader, 0, len(*old))
		for _, s := range *old {
			if s != seq {
				updated = append(updated, s)
			}
		}
		if len(updated) == len(*old) {
			return false
		}
		if x.gating.CompareAndSwap(old, &updated) {
			return true
		}
	}
}

func (x *sequencerBase) MinimumGatingSequence() int64 {
	return minimumWith(x.gatingSequences(), x.cursor.Get())
}

func (x *sequencerBase) NewBarrier(deps ...SequenceReader) *SequenceBarrier {
	return newSequenceBarrier(x.self, x.waitStrategy, &x.cursor, deps)
}

func (x *sequencerBase) Cursor() int64 {
	return x.cursor.Get()
}

func (x *sequencerBase) CursorSequence() SequenceReader {
	return &x.cursor
}

func (x *sequencerBase) BufferSize() int {
	return int(x.bufferSize)
}

func (x *sequencerBase) Stats() SequencerStats {
	return x.counters.snapshot()
}

func (x *sequencerBase) checkClaim(n int64) error {
	if n < 1 || n > x.bufferSize {
		return ErrInvalidClaim
	}
	return nil
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
