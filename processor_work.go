package disruptor

import (
	"errors"
	"math"
	"sync/atomic"
)

// WorkProcessor is one competing consumer of a WorkerPool. Processors
// sharing a work sequence each claim the next unclaimed event, so every
// event is handled by exactly one of them.
type WorkProcessor[T any] struct {
	// Optional padding to avoid false sharing between frequently accessed fields
	_            [64]byte
	sequence     Sequence
	_            [64]byte
	state        atomic.Int32
	ring         *RingBuffer[T]
	barrier      *SequenceBarrier
	handler      WorkHandler[T]
	workSequence *Sequence
	failures     failureTracker
	name         string
	logger       *Logger
}

var _ EventProcessor = (*WorkProcessor[struct{}])(nil)

// NewWorkProcessor creates a processor claiming events via workSequence,
// which must be shared by every processor in the same pool.
func NewWorkProcessor[T any](ring *RingBuffer[T], barrier *SequenceBarrier, handler WorkHandler[T], workSequence *Sequence, options ...ProcessorOption) *WorkProcessor[T] {
	if ring == nil || barrier == nil || workSequence == nil {
		panic(`disruptor: nil ring buffer, barrier or work sequence`)
	}
	if handler == nil {
		panic(`disruptor: nil handler`)
	}
	c := newProcessorConfig(options)
	x := &WorkProcessor[T]{
		ring:         ring,
		barrier:      barrier,
		handler:      handler,
		workSequence: workSequence,
		name:         c.name,
		logger:       c.logger,
	}
	x.sequence.Set(InitialSequence)
	x.failures.init(c)
	return x
}

// Run claims and processes events until Halt is called.
func (x *WorkProcessor[T]) Run() error {
	if !x.state.CompareAndSwap(stateIdle, stateRunning) {
		if x.state.Load() == stateRunning {
			return ErrAlreadyRunning
		}
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
		Log(`work processor started`)

	defer func() {
		notifyShutdown(x.handler)
		x.state.Store(stateIdle)
		x.logger.Debug().
			Str(`processor`, x.name).
			Int64(`sequence`, x.sequence.Get()).
			Log(`work processor stopped`)
	}()

	// Halt may have landed between the CAS and ClearAlert
	if x.state.Load() == stateRunning {
		x.processEvents()
	}
	return nil
}

func (x *WorkProcessor[T]) processEvents() {
	var (
		processed       = true
		cachedAvailable = int64(math.MinInt64)
		next            = x.sequence.Get()
	)
	for {
		if processed {
			processed = false
			// own sequence trails the claim by one, so the producer never
			// overtakes an event this worker is about to take
			for {
				next = x.workSequence.Get() + 1
				x.sequence.Set(next - 1)
				if x.workSequence.CompareAndSet(next-1, next) {
					break
				}
			}
		}

		if cachedAvailable >= next {
			sequence := next
			event := x.ring.Get(sequence)
			x.failures.invoke(sequence, func() error {
				return x.handler.OnEvent(event)
			})
			processed = true
			continue
		}

		available, err := x.barrier.WaitFor(next)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				x.notifyTimeout()
				continue
			}
			if !errors.Is(err, ErrAlert) {
				x.logger.Err().
					Str(`processor`, x.name).
					Err(err).
					Log(`wait strategy failed`)
			}
			return
		}
		cachedAvailable = available
	}
}

func (x *WorkProcessor[T]) notifyTimeout() {
	h, ok := x.handler.(TimeoutHandler)
	if !ok {
		return
	}
	sequence := x.sequence.Get()
	x.failures.invoke(sequence, func() error {
		return h.OnTimeout(sequence)
	})
}

func (x *WorkProcessor[T]) Halt() {
	x.state.Store(stateHalted)
	x.barrier.Alert()
}

func (x *WorkProcessor[T]) IsRunning() bool {
	return x.state.Load() == stateRunning
}

func (x *WorkProcessor[T]) Sequence() SequenceReader {
	return &x.sequence
}

func (x *WorkProcessor[T]) Failures() uint64 {
	return x.failures.failures.Load()
}

func (x *WorkProcessor[T]) Name() string {
	return x.name
}
