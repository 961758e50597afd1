package disruptor

import (
	"context"
	"strconv"
	"sync/atomic"
)

// WorkerPool is a group of WorkProcessors sharing one work sequence. Each
// published event is handled by exactly one WorkHandler.
type WorkerPool[T any] struct {
	_            [64]byte
	workSequence Sequence
	_            [64]byte
	started      atomic.Bool
	ring         *RingBuffer[T]
	processors   []*WorkProcessor[T]
	name         string
	logger       *Logger
}

// NewWorkerPool creates one WorkProcessor per handler, all gated by barrier.
// The caller is responsible for adding WorkerSequences to the ring's gating
// set. Processor options apply to every worker, the name is suffixed with
// the worker index.
func NewWorkerPool[T any](ring *RingBuffer[T], barrier *SequenceBarrier, handlers []WorkHandler[T], options ...ProcessorOption) (*WorkerPool[T], error) {
	if len(handlers) == 0 {
		return nil, ErrNoHandlers
	}
	for _, h := range handlers {
		if h == nil {
			return nil, ErrNilHandler
		}
	}

	c := newProcessorConfig(options)
	x := &WorkerPool[T]{
		ring:       ring,
		processors: make([]*WorkProcessor[T], len(handlers)),
		name:       c.name,
		logger:     c.logger,
	}
	x.workSequence.Set(InitialSequence)

	for i, h := range handlers {
		opts := append(append(make([]ProcessorOption, 0, len(options)+1), options...), WithProcessorName(c.name+`-`+strconv.Itoa(i)))
		x.processors[i] = NewWorkProcessor(ring, barrier, h, &x.workSequence, opts...)
	}

	return x, nil
}

// Start positions every worker at the current cursor, then hands each to
// executor. Events published before Start are not processed.
func (x *WorkerPool[T]) Start(executor Executor) error {
	if !x.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	cursor := x.ring.Cursor()
	x.workSequence.Set(cursor)
	for _, p := range x.processors {
		p.sequence.Set(cursor)
	}
	for _, p := range x.processors {
		executor.Execute(p.Run)
	}

	x.logger.Debug().
		Str(`pool`, x.name).
		Int(`workers`, len(x.processors)).
		Int64(`cursor`, cursor).
		Log(`worker pool started`)

	return nil
}

// WorkerSequences returns every worker's sequence plus the shared work
// sequence. Their minimum is the pool's progress.
func (x *WorkerPool[T]) WorkerSequences() []SequenceReader {
	seqs := make([]SequenceReader, 0, len(x.processors)+1)
	for _, p := range x.processors {
		seqs = append(seqs, p.Sequence())
	}
	return append(seqs, &x.workSequence)
}

// Halt stops every worker, without waiting for the backlog.
func (x *WorkerPool[T]) Halt() {
	for _, p := range x.processors {
		p.Halt()
	}
	x.started.Store(false)
	x.logger.Debug().
		Str(`pool`, x.name).
		Log(`worker pool halted`)
}

// DrainAndHalt waits until every event published so far has been handled,
// then halts. If ctx is done first the pool is left running and the context
// error returned.
func (x *WorkerPool[T]) DrainAndHalt(ctx context.Context) error {
	b := Backoff{}.normalize().start()
	for x.ring.Cursor() > MinimumSequence(x.WorkerSequences(), InitialSequence) {
		if err := b.wait(ctx); err != nil {
			return err
		}
	}
	x.Halt()
	return nil
}

func (x *WorkerPool[T]) IsRunning() bool {
	return x.started.Load()
}

// Failures is the total number of events skipped across every worker.
func (x *WorkerPool[T]) Failures() (n uint64) {
	for _, p := range x.processors {
		n += p.Failures()
	}
	return n
}

func (x *WorkerPool[T]) Name() string {
	return x.name
}
