package disruptor

import (
	"context"
)

type (
	// EventFactory produces one fresh payload. It is called once per slot
	// at construction; slots are then mutated in place, never reallocated.
	EventFactory[T any] func() T

	// EventTranslator fills a claimed slot before it is published.
	EventTranslator[T any] func(event *T, sequence int64)

	// RingBuffer is a fixed array of pre-constructed payload slots, indexed
	// by sequence & (size-1). It owns no sequencing logic, claims and
	// publishes are delegated to its Sequencer.
	//
	// A slot may only be touched within the window the caller owns: claimed
	// but unpublished for a producer, published but not yet passed for a
	// consumer.
	RingBuffer[T any] struct {
		// Optional padding to avoid false sharing between frequently accessed fields
		_         [64]byte
		mask      int64
		entries   []T
		sequencer Sequencer
		_         [64]byte
	}

	// RingOption configures NewRingBuffer.
	RingOption func(c *ringConfig)

	ringConfig struct {
		producerType ProducerType
		waitStrategy WaitStrategy
		backoff      Backoff
		logger       *Logger
	}
)

// WithProducerType selects the sequencer. Defaults to SingleProducer.
func WithProducerType(producerType ProducerType) RingOption {
	return func(c *ringConfig) {
		c.producerType = producerType
	}
}

// WithWaitStrategy sets how consumers wait. Defaults to a
// BlockingWaitStrategy.
func WithWaitStrategy(waitStrategy WaitStrategy) RingOption {
	return func(c *ringConfig) {
		c.waitStrategy = waitStrategy
	}
}

// WithBackoff configures how producers wait for space, see Backoff.
func WithBackoff(backoff Backoff) RingOption {
	return func(c *ringConfig) {
		c.backoff = backoff
	}
}

func WithRingLogger(logger *Logger) RingOption {
	return func(c *ringConfig) {
		c.logger = logger
	}
}

// NewRingBuffer creates a ring of size slots, each filled by factory.
// Size must be a power of two (1<<k).
func NewRingBuffer[T any](factory EventFactory[T], size int, options ...RingOption) (*RingBuffer[T], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}

	var c ringConfig
	for _, o := range options {
		if o != nil {
			o(&c)
		}
	}

	sequencer, err := NewSequencer(c.producerType, size, c.waitStrategy, c.backoff)
	if err != nil {
		return nil, err
	}

	entries := make([]T, size)
	for i := range entries {
		entries[i] = factory()
	}

	c.logger.Debug().
		Int(`size`, size).
		Stringer(`producer`, c.producerType).
		Log(`ring buffer created`)

	return &RingBuffer[T]{
		mask:      int64(size - 1),
		entries:   entries,
		sequencer: sequencer,
	}, nil
}

// Get returns the slot for sequence.
func (x *RingBuffer[T]) Get(sequence int64) *T {
	return &x.entries[sequence&x.mask]
}

// Next claims the next sequence, blocking while the ring is full.
func (x *RingBuffer[T]) Next(ctx context.Context) (int64, error) {
	return x.sequencer.Next(ctx, 1)
}

// NextN claims n sequences, returning the highest. The claimed range is
// [hi-n+1, hi].
func (x *RingBuffer[T]) NextN(ctx context.Context, n int64) (int64, error) {
	return x.sequencer.Next(ctx, n)
}

// TryNext claims the next sequence, or fails with ErrInsufficientCapacity.
func (x *RingBuffer[T]) TryNext() (int64, error) {
	return x.sequencer.TryNext(1)
}

func (x *RingBuffer[T]) TryNextN(n int64) (int64, error) {
	return x.sequencer.TryNext(n)
}

// Publish makes sequence visible to consumers, waking any that block.
func (x *RingBuffer[T]) Publish(sequence int64) {
	x.sequencer.Publish(sequence)
}

func (x *RingBuffer[T]) PublishRange(lo, hi int64) {
	x.sequencer.PublishRange(lo, hi)
}

// PublishEvent claims a slot, fills it with translator, and publishes it.
// The slot is published even if translator panics, a claimed sequence left
// unpublished would stall every consumer.
func (x *RingBuffer[T]) PublishEvent(ctx context.Context, translator EventTranslator[T]) error {
	sequence, err := x.sequencer.Next(ctx, 1)
	if err != nil {
		return err
	}
	defer x.sequencer.Publish(sequence)
	translator(x.Get(sequence), sequence)
	return nil
}

// TryPublishEvent is PublishEvent without blocking.
func (x *RingBuffer[T]) TryPublishEvent(translator EventTranslator[T]) error {
	sequence, err := x.sequencer.TryNext(1)
	if err != nil {
		return err
	}
	defer x.sequencer.Publish(sequence)
	translator(x.Get(sequence), sequence)
	return nil
}

// PublishEvents claims len(values) slots in one batch, translating each.
func PublishEvents[T, V any](ctx context.Context, x *RingBuffer[T], values []V, translate func(event *T, sequence int64, value V)) error {
	n := int64(len(values))
	if n == 0 {
		return nil
	}
	hi, err := x.sequencer.Next(ctx, n)
	if err != nil {
		return err
	}
	lo := hi - n + 1
	defer x.sequencer.PublishRange(lo, hi)
	for i, v := range values {
		seq := lo + int64(i)
		translate(x.Get(seq), seq, v)
	}
	return nil
}

// AddGatingSequences registers consumer sequences the producer must not
// overtake. Only call while wiring, before producers start.
func (x *RingBuffer[T]) AddGatingSequences(seqs ...SequenceReader) {
	x.sequencer.AddGatingSequences(seqs...)
}

func (x *RingBuffer[T]) RemoveGatingSequence(seq SequenceReader) bool {
	return x.sequencer.RemoveGatingSequence(seq)
}

// NewBarrier creates a barrier gated on deps, or on the cursor if none.
func (x *RingBuffer[T]) NewBarrier(deps ...SequenceReader) *SequenceBarrier {
	return x.sequencer.NewBarrier(deps...)
}

// Cursor is the highest claimed (multi-producer) or published
// (single-producer) sequence.
func (x *RingBuffer[T]) Cursor() int64 {
	return x.sequencer.Cursor()
}

func (x *RingBuffer[T]) CursorSequence() SequenceReader {
	return x.sequencer.CursorSequence()
}

func (x *RingBuffer[T]) IsPublished(sequence int64) bool {
	return x.sequencer.IsAvailable(sequence)
}

func (x *RingBuffer[T]) MinimumGatingSequence() int64 {
	return x.sequencer.MinimumGatingSequence()
}

func (x *RingBuffer[T]) BufferSize() int {
	return len(x.entries)
}

// RemainingCapacity is the number of slots that may be claimed without
// waiting for consumers.
func (x *RingBuffer[T]) RemainingCapacity() int64 {
	return x.sequencer.RemainingCapacity()
}

func (x *RingBuffer[T]) Sequencer() Sequencer {
	return x.sequencer
}

func (x *RingBuffer[T]) Stats() SequencerStats {
	return x.sequencer.Stats()
}
