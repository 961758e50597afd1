package disruptor

type (
	// EventHandler is the broadcast consumer capability: every handler
	// registered with a BatchEventProcessor sees every event, in sequence
	// order. endOfBatch is true for the last event currently available,
	// signalling a good point to flush batched side effects.
	//
	// The event must not be retained after OnEvent returns, the slot is
	// reused on the next lap. A returned error (or panic) is handled by the
	// processor's FailurePolicy, it never stops the processor.
	EventHandler[T any] interface {
		OnEvent(event *T, sequence int64, endOfBatch bool) error
	}

	// EventHandlerFunc adapts a function to EventHandler. Function values are
	// not comparable, so they cannot be looked up with Disruptor.After or
	// Disruptor.SequenceOf.
	EventHandlerFunc[T any] func(event *T, sequence int64, endOfBatch bool) error

	// WorkHandler is the competing consumer capability: each event is
	// delivered to exactly one WorkHandler of a WorkerPool, in no particular
	// order across the pool.
	WorkHandler[T any] interface {
		OnEvent(event *T) error
	}

	// WorkHandlerFunc adapts a function to WorkHandler.
	WorkHandlerFunc[T any] func(event *T) error

	// LifecycleAware handlers are notified when their processor's goroutine
	// starts and stops.
	LifecycleAware interface {
		OnStart()
		OnShutdown()
	}

	// BatchStartAware handlers are told the size of each batch before its
	// first event is delivered.
	BatchStartAware interface {
		OnBatchStart(batchSize int64)
	}

	// TimeoutHandler handlers are invoked when the wait strategy times out
	// (see TimeoutBlockingWaitStrategy), with the processor's current
	// sequence.
	TimeoutHandler interface {
		OnTimeout(sequence int64) error
	}
)

func (f EventHandlerFunc[T]) OnEvent(event *T, sequence int64, endOfBatch bool) error {
	return f(event, sequence, endOfBatch)
}

func (f WorkHandlerFunc[T]) OnEvent(event *T) error {
	return f(event)
}

func notifyStart(handler any) {
	if h, ok := handler.(LifecycleAware); ok {
		h.OnStart()
	}
}

func notifyShutdown(handler any) {
	if h, ok := handler.(LifecycleAware); ok {
		h.OnShutdown()
	}
}
