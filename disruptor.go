package disruptor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type (
	// Disruptor wires a RingBuffer to a graph of consumers, and manages
	// their lifecycle. Consumers are registered before Start, in dependency
	// order, via HandleEventsWith and the returned EventHandlerGroup.
	//
	// Wiring errors are sticky: the group (and every group derived from it)
	// carries the error, and Start returns the first one.
	Disruptor[T any] struct {
		ring             *RingBuffer[T]
		executor         Executor
		logger           *Logger
		processorOptions []ProcessorOption

		mu      sync.Mutex
		graph   consumerGraph
		err     error
		started atomic.Bool
	}

	// EventHandlerGroup is a set of consumers registered together (or
	// combined with And). Consumers registered from a group wait for every
	// member of the group.
	EventHandlerGroup[T any] struct {
		disruptor *Disruptor[T]
		nodes     []*consumerNode
		err       error
	}

	// Option configures New.
	Option func(c *disruptorConfig)

	disruptorConfig struct {
		ringOptions      []RingOption
		executor         Executor
		logger           *Logger
		processorOptions []ProcessorOption
	}
)

// WithRingOptions configures the underlying RingBuffer, e.g. the producer
// type or wait strategy.
func WithRingOptions(options ...RingOption) Option {
	return func(c *disruptorConfig) {
		c.ringOptions = append(c.ringOptions, options...)
	}
}

// WithExecutor sets what runs the consumer loops. Defaults to a
// GoroutineExecutor.
func WithExecutor(executor Executor) Option {
	return func(c *disruptorConfig) {
		c.executor = executor
	}
}

// WithLogger sets the logger for the disruptor, its ring buffer and every
// consumer. Per-consumer loggers may still be set with WithProcessorOptions.
func WithLogger(logger *Logger) Option {
	return func(c *disruptorConfig) {
		c.logger = logger
	}
}

// WithProcessorOptions applies options to every consumer created by the
// disruptor.
func WithProcessorOptions(options ...ProcessorOption) Option {
	return func(c *disruptorConfig) {
		c.processorOptions = append(c.processorOptions, options...)
	}
}

// New creates a Disruptor over a new RingBuffer of size slots.
func New[T any](factory EventFactory[T], size int, options ...Option) (*Disruptor[T], error) {
	var c disruptorConfig
	for _, o := range options {
		if o != nil {
			o(&c)
		}
	}

	var ringOptions []RingOption
	if c.logger != nil {
		ringOptions = append(ringOptions, WithRingLogger(c.logger))
	}
	ring, err := NewRingBuffer(factory, size, append(ringOptions, c.ringOptions...)...)
	if err != nil {
		return nil, err
	}

	if c.executor == nil {
		c.executor = new(GoroutineExecutor)
	}

	var processorOptions []ProcessorOption
	if c.logger != nil {
		processorOptions = append(processorOptions, WithProcessorLogger(c.logger))
	}

	return &Disruptor[T]{
		ring:             ring,
		executor:         c.executor,
		logger:           c.logger,
		processorOptions: append(processorOptions, c.processorOptions...),
	}, nil
}

// HandleEventsWith registers handlers as first stage consumers, each on its
// own BatchEventProcessor, gated on the producer cursor.
func (x *Disruptor[T]) HandleEventsWith(handlers ...EventHandler[T]) *EventHandlerGroup[T] {
	return x.handleEventsWith(nil, handlers)
}

// HandleEventsWithWorkerPool registers a first stage WorkerPool, with one
// worker per handler.
func (x *Disruptor[T]) HandleEventsWithWorkerPool(handlers ...WorkHandler[T]) *EventHandlerGroup[T] {
	return x.handleEventsWithWorkerPool(nil, handlers)
}

// After returns a group of already registered handlers (event or work
// handlers), so that further consumers may be gated on them.
func (x *Disruptor[T]) After(handlers ...any) *EventHandlerGroup[T] {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(handlers) == 0 {
		return x.fail(ErrNoHandlers)
	}

	var nodes []*consumerNode
	for _, h := range handlers {
		n, ok := x.graph.lookup(h)
		if !ok {
			return x.fail(fmt.Errorf("%w: %T", ErrUnknownHandler, h))
		}
		nodes = appendNode(nodes, n)
	}

	return &EventHandlerGroup[T]{disruptor: x, nodes: nodes, err: x.err}
}

func (x *Disruptor[T]) handleEventsWith(upstream []*consumerNode, handlers []EventHandler[T]) *EventHandlerGroup[T] {
	x.mu.Lock()
	defer x.mu.Unlock()

	keys := make([]any, len(handlers))
	for i, h := range handlers {
		if h == nil {
			return x.fail(ErrNilHandler)
		}
		keys[i] = h
	}
	if err := x.checkWiring(keys); err != nil {
		return x.fail(err)
	}

	barrier := x.ring.NewBarrier(nodeSequences(upstream)...)
	nodes := make([]*consumerNode, len(handlers))
	for i, h := range handlers {
		processor := NewBatchEventProcessor(x.ring, barrier, h, x.processorOptions...)
		nodes[i] = x.graph.add(batchConsumer{processor: processor}, keys[i:i+1], upstream)
	}

	x.updateGating(upstream, nodes)

	return &EventHandlerGroup[T]{disruptor: x, nodes: nodes, err: x.err}
}

func (x *Disruptor[T]) handleEventsWithWorkerPool(upstream []*consumerNode, handlers []WorkHandler[T]) *EventHandlerGroup[T] {
	x.mu.Lock()
	defer x.mu.Unlock()

	keys := make([]any, len(handlers))
	for i, h := range handlers {
		if h == nil {
			return x.fail(ErrNilHandler)
		}
		keys[i] = h
	}
	if err := x.checkWiring(keys); err != nil {
		return x.fail(err)
	}

	barrier := x.ring.NewBarrier(nodeSequences(upstream)...)
	pool, err := NewWorkerPool(x.ring, barrier, handlers, x.processorOptions...)
	if err != nil {
		return x.fail(err)
	}
	nodes := []*consumerNode{x.graph.add(poolConsumer[T]{pool: pool}, keys, upstream)}

	x.updateGating(upstream, nodes)

	return &EventHandlerGroup[T]{disruptor: x, nodes: nodes, err: x.err}
}

// checkWiring must be called with mu held.
func (x *Disruptor[T]) checkWiring(keys []any) error {
	if x.started.Load() {
		return ErrAlreadyStarted
	}
	if len(keys) == 0 {
		return ErrNoHandlers
	}
	return x.graph.checkKeys(keys)
}

// updateGating makes the new stage's sequences gate the producer, in place of
// the upstream stages it now trails.
func (x *Disruptor[T]) updateGating(upstream, nodes []*consumerNode) {
	x.ring.AddGatingSequences(nodeSequences(nodes)...)
	for _, s := range nodeSequences(upstream) {
		x.ring.RemoveGatingSequence(s)
	}
}

// fail must be called with mu held.
func (x *Disruptor[T]) fail(err error) *EventHandlerGroup[T] {
	if x.err == nil {
		x.err = err
	}
	x.logger.Err().
		Err(err).
		Log(`invalid consumer wiring`)
	return &EventHandlerGroup[T]{disruptor: x, err: err}
}

// Start validates the consumer graph, then hands every consumer to the
// executor, in registration order. It may only be called once.
func (x *Disruptor[T]) Start() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.err != nil {
		return x.err
	}
	if x.graph.hasCycle() {
		x.err = ErrCyclicDependency
		return x.err
	}
	if !x.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	for _, n := range x.graph.nodes {
		if err := n.consumer.start(x.executor); err != nil {
			return err
		}
	}

	x.logger.Info().
		Int(`consumers`, len(x.graph.nodes)).
		Int(`size`, x.ring.BufferSize()).
		Log(`disruptor started`)

	return nil
}

// Halt stops every consumer without waiting for the backlog.
func (x *Disruptor[T]) Halt() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, n := range x.graph.nodes {
		n.consumer.halt()
	}
	x.logger.Info().
		Int64(`cursor`, x.ring.Cursor()).
		Log(`disruptor halted`)
}

// Shutdown waits until every published event has been processed by every
// leaf consumer, then halts. Producers must have stopped publishing. If ctx
// is done first, consumers keep running and the returned error wraps both
// ErrShutdownIncomplete and the context error.
func (x *Disruptor[T]) Shutdown(ctx context.Context) error {
	b := Backoff{}.normalize().start()
	for x.HasBacklog() {
		if err := b.wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrShutdownIncomplete, err)
		}
	}
	x.Halt()
	return nil
}

// Wait blocks until every consumer goroutine has returned, if the executor
// supports it (GoroutineExecutor does), returning the first error.
func (x *Disruptor[T]) Wait() error {
	if w, ok := x.executor.(interface{ Wait() error }); ok {
		return w.Wait()
	}
	return nil
}

// HasBacklog reports whether any leaf consumer is behind the cursor.
func (x *Disruptor[T]) HasBacklog() bool {
	x.mu.Lock()
	leaves := x.graph.leafSequences()
	x.mu.Unlock()
	return x.ring.Cursor() > MinimumSequence(leaves, x.ring.Cursor())
}

// SequenceOf returns the progress of a registered handler. For a handler in
// a worker pool, that is the progress of the whole pool.
func (x *Disruptor[T]) SequenceOf(handler any) (int64, error) {
	x.mu.Lock()
	n, ok := x.graph.lookup(handler)
	x.mu.Unlock()
	if !ok {
		return InitialSequence, fmt.Errorf("%w: %T", ErrUnknownHandler, handler)
	}
	return MinimumSequence(n.consumer.sequences(), x.ring.Cursor()), nil
}

func (x *Disruptor[T]) PublishEvent(ctx context.Context, translator EventTranslator[T]) error {
	return x.ring.PublishEvent(ctx, translator)
}

func (x *Disruptor[T]) TryPublishEvent(translator EventTranslator[T]) error {
	return x.ring.TryPublishEvent(translator)
}

func (x *Disruptor[T]) RingBuffer() *RingBuffer[T] {
	return x.ring
}

func (x *Disruptor[T]) Cursor() int64 {
	return x.ring.Cursor()
}

// Then registers handlers gated on every consumer in the group.
func (x *EventHandlerGroup[T]) Then(handlers ...EventHandler[T]) *EventHandlerGroup[T] {
	return x.HandleEventsWith(handlers...)
}

func (x *EventHandlerGroup[T]) HandleEventsWith(handlers ...EventHandler[T]) *EventHandlerGroup[T] {
	if x.err != nil {
		return x
	}
	return x.disruptor.handleEventsWith(x.nodes, handlers)
}

// ThenHandleEventsWithWorkerPool registers a WorkerPool gated on every
// consumer in the group.
func (x *EventHandlerGroup[T]) ThenHandleEventsWithWorkerPool(handlers ...WorkHandler[T]) *EventHandlerGroup[T] {
	return x.HandleEventsWithWorkerPool(handlers...)
}

func (x *EventHandlerGroup[T]) HandleEventsWithWorkerPool(handlers ...WorkHandler[T]) *EventHandlerGroup[T] {
	if x.err != nil {
		return x
	}
	return x.disruptor.handleEventsWithWorkerPool(x.nodes, handlers)
}

// And combines two groups of the same disruptor.
func (x *EventHandlerGroup[T]) And(other *EventHandlerGroup[T]) *EventHandlerGroup[T] {
	if x.err != nil {
		return x
	}
	if other == nil || other.disruptor != x.disruptor {
		x.disruptor.mu.Lock()
		defer x.disruptor.mu.Unlock()
		return x.disruptor.fail(ErrForeignGroup)
	}
	if other.err != nil {
		return other
	}
	nodes := append([]*consumerNode(nil), x.nodes...)
	for _, n := range other.nodes {
		nodes = appendNode(nodes, n)
	}
	return &EventHandlerGroup[T]{disruptor: x.disruptor, nodes: nodes}
}

// AsSequenceBarrier returns a new barrier gated on every consumer in the
// group, for consumers managed outside the disruptor. It returns nil if the
// group carries an error.
func (x *EventHandlerGroup[T]) AsSequenceBarrier() *SequenceBarrier {
	if x.err != nil {
		return nil
	}
	return x.disruptor.ring.NewBarrier(nodeSequences(x.nodes)...)
}

// Err returns the wiring error carried by the group, if any.
func (x *EventHandlerGroup[T]) Err() error {
	return x.err
}

func nodeSequences(nodes []*consumerNode) (seqs []SequenceReader) {
	for _, n := range nodes {
		seqs = append(seqs, n.consumer.sequences()...)
	}
	return seqs
}

func appendNode(nodes []*consumerNode, n *consumerNode) []*consumerNode {
	for _, v := range nodes {
		if v == n {
			return nodes
		}
	}
	return append(nodes, n)
}
