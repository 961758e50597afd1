package disruptor

import (
	"reflect"

	cycle "github.com/joeycumines/go-detect-cycle/floyds"
)

type (
	// consumer is a startable stage of the graph: a single batch processor,
	// or a whole worker pool.
	consumer interface {
		start(executor Executor) error
		halt()
		sequences() []SequenceReader
	}

	consumerNode struct {
		id       int
		consumer consumer
		upstream []int
		leaf     bool
	}

	// consumerGraph records every registered consumer and the stages it
	// waits on. Nodes are appended in registration order, which is also the
	// start order. Handlers that are not comparable are not indexed, so
	// cannot be found by After or SequenceOf.
	consumerGraph struct {
		nodes []*consumerNode
		byKey map[any]*consumerNode
	}

	batchConsumer struct {
		processor EventProcessor
	}

	poolConsumer[T any] struct {
		pool *WorkerPool[T]
	}
)

func (x batchConsumer) start(executor Executor) error {
	executor.Execute(x.processor.Run)
	return nil
}

func (x batchConsumer) halt() { x.processor.Halt() }
func (x batchConsumer) sequences() []SequenceReader {
	return []SequenceReader{x.processor.Sequence()}
}

func (x poolConsumer[T]) start(executor Executor) error { return x.pool.Start(executor) }
func (x poolConsumer[T]) halt()                         { x.pool.Halt() }
func (x poolConsumer[T]) sequences() []SequenceReader   { return x.pool.WorkerSequences() }

// handlerKey returns handler if it may be used as a map key.
func handlerKey(handler any) any {
	if handler == nil || !reflect.TypeOf(handler).Comparable() {
		return nil
	}
	return handler
}

// checkKeys fails with ErrDuplicateHandler if any handler is already
// registered, or appears twice in handlers.
func (g *consumerGraph) checkKeys(handlers []any) error {
	seen := make(map[any]struct{}, len(handlers))
	for _, h := range handlers {
		key := handlerKey(h)
		if key == nil {
			continue
		}
		if _, ok := g.byKey[key]; ok {
			return ErrDuplicateHandler
		}
		if _, ok := seen[key]; ok {
			return ErrDuplicateHandler
		}
		seen[key] = struct{}{}
	}
	return nil
}

// add registers c, gated on the upstream nodes, which stop being leaves.
// The handlers must have passed checkKeys.
func (g *consumerGraph) add(c consumer, handlers []any, upstream []*consumerNode) *consumerNode {
	n := &consumerNode{
		id:       len(g.nodes),
		consumer: c,
		leaf:     true,
	}
	for _, u := range upstream {
		n.upstream = append(n.upstream, u.id)
		u.leaf = false
	}
	g.nodes = append(g.nodes, n)
	for _, h := range handlers {
		key := handlerKey(h)
		if key == nil {
			continue
		}
		if g.byKey == nil {
			g.byKey = make(map[any]*consumerNode)
		}
		g.byKey[key] = n
	}
	return n
}

func (g *consumerGraph) lookup(handler any) (*consumerNode, bool) {
	key := handlerKey(handler)
	if key == nil {
		return nil, false
	}
	n, ok := g.byKey[key]
	return n, ok
}

// leafSequences are the sequences of every stage no other stage waits on.
// The producer is gated on exactly these.
func (g *consumerGraph) leafSequences() (seqs []SequenceReader) {
	for _, n := range g.nodes {
		if n.leaf {
			seqs = append(seqs, n.consumer.sequences()...)
		}
	}
	return seqs
}

func (g *consumerGraph) hasCycle() bool {
	deps := make(map[int][]int, len(g.nodes))
	for _, n := range g.nodes {
		deps[n.id] = n.upstream
	}
	return dependencyCycle(deps)
}

func dependencyCycle[E comparable](deps map[E][]E) bool {
	var check func(k E, f cycle.BranchingDetector) bool
	check = func(k E, f cycle.BranchingDetector) bool {
		for _, v := range deps[k] {
			if func() bool {
				nf := f.Hare(v)
				defer nf.Clear()
				if !f.Ok() {
					return true
				}
				return check(v, nf)
			}() {
				return true
			}
		}
		return false
	}
	for k := range deps {
		if check(k, cycle.NewBranchingDetector(k, nil)) {
			return true
		}
	}
	return false
}
