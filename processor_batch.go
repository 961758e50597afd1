package disruptor

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// BatchEventProcessor delivers every event to a single EventHandler, in
// sequence order, advancing its own Sequence once per batch.
//
// The zero value is not usable, see NewBatchEventProcessor.
type BatchEventProcessor[T any] struct {
	// Optional padding to avoid false sharing between frequently accessed fields
	_        [64]byte
	sequence Sequence
	_        [64]byte
	state    atomic.Int32
	ring     *RingBuffer[T]
	barrier  *SequenceBarrier
	handler  EventHandler[T]
	failures failureTracker
	name     string
	logger   *Logger
}

var _ EventProcessor = (*BatchEventProcessor[struct{}])(nil)

// NewBatchEventProcessor creates a processor consuming from ring through
// barrier. A panic will occur if any argument is nil.
func NewBatchEventProcessor[T any](ring *RingBuffer[T], barrier *SequenceBarrier, handler EventHandler[T], options ...ProcessorOption) *BatchEventProcessor[T] {
	if ring == nil || barrier == nil {
		panic(`disruptor: nil ring buffer or barrier`)
	}
	if handler == nil {
		panic(`disruptor: nil handler`)
	}
	c := newProcessorConfig(options)
	x := &BatchEventProcessor[T]{
		ring:    ring,
		barrier: barrier,
		handler: handler,
		name:    c.name,
		logger:  c.logger,
	}
	x.sequence.Set(InitialSequence)
	x.failures.init(c)
	return x
}

// Run processes events until Halt is called. It returns ErrAlreadyRunning if
// the processor is already running. A processor halted before Run returns
// immediately, and may be run again.
func (x *BatchEventProcessor[T]) Run() error {
	if !x.state.CompareAndSwap(stateIdle, stateRunning) {
		if x.state.Load() == stateRunning {
			return ErrAlreadyRunning
		}
		// halted before it ever started
		notifyStart(x.handler)
		notifyShutdown(x.handler)
		x.state.CompareAndSwap(stateHalted, stateIdle)
		return nil
	}

	x.barrier.ClearAlert()
	notifyStart(x.handler)
	x.logger.Debug().
		Str(`processor`, x.name).
		Int64(`sequence`, x.sequence.Get()).
		Log(`batch processor started`)

	defer func() {
		notifyShutdown(x.handler)
		x.state.Store(stateIdle)
		x.logger.Debug().
			Str(`processor`, x.name).
			Int64(`sequence`, x.sequence.Get()).
			Log(`batch processor stopped`)
	}()

	// Halt may have landed between the CAS and ClearAlert
	if x.state.Load() == stateRunning {
		x.processEvents()
	}
	return nil
}

func (x *BatchEventProcessor[T]) processEvents() {
	batchAware, _ := x.handler.(BatchStartAware)
	next := x.sequence.Get() + 1
	for {
		available, err := x.barrier.WaitFor(next)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				x.notifyTimeout()
				continue
			}
			// ErrAlert, or anything else a custom wait strategy returns:
			// both mean this stage can make no further progress
			if !errors.Is(err, ErrAlert) {
				x.logger.Err().
					Str(`processor`, x.name).
					Err(err).
					Log(`wait strategy failed`)
			}
			return
		}

		if available < next {
			// multi-producer slot claimed but not yet published
			runtime.Gosched()
			continue
		}

		if batchAware != nil {
			batchAware.OnBatchStart(available - next + 1)
		}

		for ; next <= available; next++ {
			event := x.ring.Get(next)
			sequence := next
			endOfBatch := next == available
			x.failures.invoke(sequence, func() error {
				return x.handler.OnEvent(event, sequence, endOfBatch)
			})
		}

		// release: downstream stages and the producer may now observe the
		// whole batch, including any writes the handler made to the slots
		x.sequence.LazySet(available)
	}
}

func (x *BatchEventProcessor[T]) notifyTimeout() {
	h, ok := x.handler.(TimeoutHandler)
	if !ok {
		return
	}
	sequence := x.sequence.Get()
	x.failures.invoke(sequence, func() error {
		return h.OnTimeout(sequence)
	})
}

// Halt stops the processor. It returns immediately, the goroutine running
// Run exits once the in-flight handler call (if any) returns.
func (x *BatchEventProcessor[T]) Halt() {
	x.state.Store(stateHalted)
	x.barrier.Alert()
}

func (x *BatchEventProcessor[T]) IsRunning() bool {
	return x.state.Load() == stateRunning
}

func (x *BatchEventProcessor[T]) Sequence() SequenceReader {
	return &x.sequence
}

// Failures is the number of events skipped after failing.
func (x *BatchEventProcessor[T]) Failures() uint64 {
	return x.failures.failures.Load()
}

func (x *BatchEventProcessor[T]) Name() string {
	return x.name
}
