package disruptor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stageHandler writes its own field of each event, after checking that
// every stage it depends on has already written theirs.
type stageHandler struct {
	write      func(e *testEvent, seq int64)
	check      func(e *testEvent, seq int64) bool
	violations atomic.Int64
	count      atomic.Int64
}

func (h *stageHandler) OnEvent(e *testEvent, seq int64, _ bool) error {
	if h.check != nil && !h.check(e, seq) {
		h.violations.Add(1)
	}
	if h.write != nil {
		h.write(e, seq)
	}
	h.count.Add(1)
	return nil
}

// Diamond: A and B run in parallel, C after both, D after C.
func TestDisruptorDiamondOrdering(t *testing.T) {
	const N = 50_000

	d, err := New(newTestEvent, 1<<8, WithRingOptions(WithProducerType(MultiProducer)))
	require.NoError(t, err)

	a := &stageHandler{write: func(e *testEvent, seq int64) { e.A = seq }}
	b := &stageHandler{write: func(e *testEvent, seq int64) { e.B = seq }}
	c := &stageHandler{
		check: func(e *testEvent, seq int64) bool { return e.A == seq && e.B == seq },
		write: func(e *testEvent, seq int64) { e.C = seq },
	}
	dd := &stageHandler{
		check: func(e *testEvent, seq int64) bool { return e.C == seq && e.A == seq && e.B == seq },
	}

	g := d.HandleEventsWith(a, b).Then(c).Then(dd)
	require.NoError(t, g.Err())
	require.NoError(t, d.Start())

	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < N/2; i++ {
				assert.NoError(t, d.PublishEvent(context.Background(), func(e *testEvent, seq int64) {
					e.Value = seq
				}))
			}
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	require.NoError(t, d.Wait())

	for name, h := range map[string]*stageHandler{`a`: a, `b`: b, `c`: c, `d`: dd} {
		assert.EqualValues(t, N, h.count.Load(), name)
		assert.Zero(t, h.violations.Load(), name)
	}

	seq, err := d.SequenceOf(dd)
	require.NoError(t, err)
	assert.EqualValues(t, N-1, seq)
	assert.False(t, d.HasBacklog())
}

// Only the leaves of the graph gate the producer.
func TestDisruptorGatingFollowsLeaves(t *testing.T) {
	d, err := New(newTestEvent, 8)
	require.NoError(t, err)

	a := &stageHandler{}
	b := &stageHandler{}
	d.HandleEventsWith(a).Then(b)
	require.NoError(t, d.Start())
	defer func() {
		d.Halt()
		require.NoError(t, d.Wait())
	}()

	ringSeq, ok := d.RingBuffer().Sequencer().(interface{ gatingSequences() []SequenceReader })
	require.True(t, ok)
	gating := ringSeq.gatingSequences()
	require.Len(t, gating, 1)

	leaf, _ := d.graph.lookup(b)
	assert.Same(t, leaf.consumer.sequences()[0], gating[0])
}

// A worker pool stage feeding a broadcast stage: every event is handled once
// by the pool, and the next stage sees the pool's writes.
func TestDisruptorWorkerPoolStage(t *testing.T) {
	const N = 20_000

	d, err := New(newTestEvent, 1<<8)
	require.NoError(t, err)

	seen := make([]int32, N)
	workers := make([]WorkHandler[testEvent], 3)
	for i := range workers {
		workers[i] = WorkHandlerFunc[testEvent](func(e *testEvent) error {
			atomic.AddInt32(&seen[e.Value], 1)
			e.A = e.Value
			return nil
		})
	}
	after := &stageHandler{check: func(e *testEvent, seq int64) bool { return e.A == seq }}

	require.NoError(t, d.HandleEventsWithWorkerPool(workers...).Then(after).Err())
	require.NoError(t, d.Start())

	for i := 0; i < N; i++ {
		require.NoError(t, d.PublishEvent(context.Background(), func(e *testEvent, seq int64) { e.Value = seq }))
	}
	require.NoError(t, d.Shutdown(context.Background()))
	require.NoError(t, d.Wait())

	for i := range seen {
		require.EqualValues(t, 1, seen[i], "value %d", i)
	}
	assert.EqualValues(t, N, after.count.Load())
	assert.Zero(t, after.violations.Load())
}

func TestDisruptorAfterAndGroups(t *testing.T) {
	d, err := New(newTestEvent, 16)
	require.NoError(t, err)

	a := &stageHandler{write: func(e *testEvent, seq int64) { e.A = seq }}
	b := &stageHandler{write: func(e *testEvent, seq int64) { e.B = seq }}
	c := &stageHandler{check: func(e *testEvent, seq int64) bool { return e.A == seq && e.B == seq }}

	ga := d.HandleEventsWith(a)
	gb := d.HandleEventsWith(b)
	require.NoError(t, ga.And(gb).Err())
	require.NotNil(t, ga.And(gb).AsSequenceBarrier())

	require.NoError(t, d.After(a, b).Then(c).Err())
	require.NoError(t, d.Start())

	for i := 0; i < 8; i++ {
		require.NoError(t, d.TryPublishEvent(func(e *testEvent, seq int64) {}))
	}
	require.NoError(t, d.Shutdown(context.Background()))
	require.NoError(t, d.Wait())
	assert.Zero(t, c.violations.Load())
	assert.EqualValues(t, 8, c.count.Load())
	assert.EqualValues(t, 7, d.Cursor())
}

func TestDisruptorWiringErrors(t *testing.T) {
	newDisruptor := func(t *testing.T) *Disruptor[testEvent] {
		d, err := New(newTestEvent, 8)
		require.NoError(t, err)
		return d
	}

	t.Run(`no handlers`, func(t *testing.T) {
		d := newDisruptor(t)
		assert.ErrorIs(t, d.HandleEventsWith().Err(), ErrNoHandlers)
		assert.ErrorIs(t, d.Start(), ErrNoHandlers)
	})

	t.Run(`nil handler`, func(t *testing.T) {
		d := newDisruptor(t)
		assert.ErrorIs(t, d.HandleEventsWith(nil).Err(), ErrNilHandler)
		assert.ErrorIs(t, d.HandleEventsWithWorkerPool(nil).Err(), ErrNilHandler)
	})

	t.Run(`duplicate handler`, func(t *testing.T) {
		d := newDisruptor(t)
		h := &stageHandler{}
		assert.ErrorIs(t, d.HandleEventsWith(h, h).Err(), ErrDuplicateHandler)

		d = newDisruptor(t)
		require.NoError(t, d.HandleEventsWith(h).Err())
		g := d.HandleEventsWith(h)
		assert.ErrorIs(t, g.Err(), ErrDuplicateHandler)
		// sticky through derived groups
		assert.ErrorIs(t, g.Then(&stageHandler{}).Err(), ErrDuplicateHandler)
		assert.ErrorIs(t, d.Start(), ErrDuplicateHandler)
	})

	t.Run(`func handlers are never duplicates`, func(t *testing.T) {
		d := newDisruptor(t)
		f := EventHandlerFunc[testEvent](func(*testEvent, int64, bool) error { return nil })
		require.NoError(t, d.HandleEventsWith(f, f).Err())
		_, err := d.SequenceOf(f)
		assert.ErrorIs(t, err, ErrUnknownHandler)
	})

	t.Run(`unknown handler`, func(t *testing.T) {
		d := newDisruptor(t)
		assert.ErrorIs(t, d.After(&stageHandler{}).Err(), ErrUnknownHandler)
		assert.ErrorIs(t, d.After().Err(), ErrNoHandlers)
		_, err := d.SequenceOf(&stageHandler{})
		assert.ErrorIs(t, err, ErrUnknownHandler)
	})

	t.Run(`foreign group`, func(t *testing.T) {
		d1, d2 := newDisruptor(t), newDisruptor(t)
		g1 := d1.HandleEventsWith(&stageHandler{})
		g2 := d2.HandleEventsWith(&stageHandler{})
		assert.ErrorIs(t, g1.And(g2).Err(), ErrForeignGroup)
		assert.Nil(t, g1.And(g2).AsSequenceBarrier())
	})

	t.Run(`after start`, func(t *testing.T) {
		d := newDisruptor(t)
		require.NoError(t, d.HandleEventsWith(&stageHandler{}).Err())
		require.NoError(t, d.Start())
		assert.ErrorIs(t, d.Start(), ErrAlreadyStarted)
		assert.ErrorIs(t, d.HandleEventsWith(&stageHandler{}).Err(), ErrAlreadyStarted)
		d.Halt()
		require.NoError(t, d.Wait())
	})
}

func TestDisruptorStartRejectsCycles(t *testing.T) {
	d, err := New(newTestEvent, 8)
	require.NoError(t, err)
	a, b := &stageHandler{}, &stageHandler{}
	d.HandleEventsWith(a).Then(b)

	// the public API only links to existing stages, so close the loop by hand
	na, _ := d.graph.lookup(a)
	nb, _ := d.graph.lookup(b)
	na.upstream = append(na.upstream, nb.id)

	assert.ErrorIs(t, d.Start(), ErrCyclicDependency)
	assert.ErrorIs(t, d.Start(), ErrCyclicDependency)
}

func TestDependencyCycle(t *testing.T) {
	for _, tc := range []struct {
		name  string
		deps  map[int][]int
		cycle bool
	}{
		{`empty`, map[int][]int{}, false},
		{`chain`, map[int][]int{0: nil, 1: {0}, 2: {1}}, false},
		{`diamond`, map[int][]int{0: nil, 1: nil, 2: {0, 1}, 3: {2}}, false},
		{`self`, map[int][]int{0: {0}}, true},
		{`pair`, map[int][]int{0: {1}, 1: {0}}, true},
		{`long`, map[int][]int{0: {3}, 1: {0}, 2: {1}, 3: {2}, 4: {3}}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.cycle, dependencyCycle(tc.deps))
		})
	}
}

func TestDisruptorShutdownTimeout(t *testing.T) {
	d, err := New(newTestEvent, 8)
	require.NoError(t, err)

	release := make(chan struct{})
	blocker := &stageHandler{write: func(*testEvent, int64) { <-release }}
	require.NoError(t, d.HandleEventsWith(blocker).Err())
	require.NoError(t, d.Start())
	require.NoError(t, d.PublishEvent(context.Background(), func(*testEvent, int64) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.Shutdown(ctx)
	assert.ErrorIs(t, err, ErrShutdownIncomplete)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, d.HasBacklog())

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
	require.NoError(t, d.Wait())
	assert.EqualValues(t, 1, blocker.count.Load())
}

type customExecutor struct {
	wg    sync.WaitGroup
	tasks atomic.Int32
}

func (x *customExecutor) Execute(task func() error) {
	x.tasks.Add(1)
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		_ = task()
	}()
}

func TestDisruptorCustomExecutor(t *testing.T) {
	executor := new(customExecutor)
	d, err := New(newTestEvent, 8, WithExecutor(executor), WithProcessorOptions(WithProcessorName(t.Name())))
	require.NoError(t, err)

	pool := []WorkHandler[testEvent]{
		WorkHandlerFunc[testEvent](func(*testEvent) error { return nil }),
		WorkHandlerFunc[testEvent](func(*testEvent) error { return nil }),
	}
	d.HandleEventsWith(&stageHandler{}).ThenHandleEventsWithWorkerPool(pool...)
	require.NoError(t, d.Start())
	assert.EqualValues(t, 3, executor.tasks.Load())

	require.NoError(t, d.PublishEvent(context.Background(), func(*testEvent, int64) {}))
	require.NoError(t, d.Shutdown(context.Background()))
	// custom executors are waited on by their owner
	require.NoError(t, d.Wait())
	executor.wg.Wait()
}
