package disruptor

import (
	"context"
	"math/bits"
	"runtime"
	"sync/atomic"
)

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops

// multiProducerSequencer lets any number of goroutines claim concurrently.
// The cursor is the highest *claimed* sequence, so consumers must consult the
// availability buffer to find what has actually been published.
type multiProducerSequencer struct {
	sequencerBase
	_ [64]byte
	// slowest gating sequence as last observed by any producer
	gatingCache Sequence
	// per slot, the lap (seq >> indexShift) that last published it
	available  []atomic.Int32
	indexMask  int64
	indexShift uint
}

func newMultiProducerSequencer(bufferSize int, waitStrategy WaitStrategy, backoff Backoff) *multiProducerSequencer {
	x := &multiProducerSequencer{
		available:  make([]atomic.Int32, bufferSize),
		indexMask:  int64(bufferSize - 1),
		indexShift: uint(bits.TrailingZeros(uint(bufferSize))),
	}
	x.init(x, bufferSize, waitStrategy, backoff)
	x.gatingCache.Set(InitialSequence)
	for i := range x.available {
		x.available[i].Store(-1)
	}
	return x
}

func (x *multiProducerSequencer) Next(ctx context.Context, n int64) (int64, error) {
	atomic.AddUint64(&x.counters.claimAttempts, 1)
	if err := x.checkClaim(n); err != nil {
		atomic.AddUint64(&x.counters.failedClaims, 1)
		return InitialSequence, err
	}

	var (
		b       backoffState
		stalled bool
		spins   uint32
	)
	for {
		current := x.cursor.Get()
		next := current + n
		wrapPoint := next - x.bufferSize
		cached := x.gatingCache.Get()

		if wrapPoint > cached || cached > current {
			// re-read the real minimum on every blocked attempt: other producers
			// move the cursor, so the candidate claim is stale after any wait
			gatingSeq := minimumWith(x.gatingSequences(), current)
			if wrapPoint > gatingSeq {
				if !stalled {
					stalled = true
					b = x.backoff.start()
					atomic.AddUint64(&x.counters.wrapStalls, 1)
				}
				if err := b.wait(ctx); err != nil {
					atomic.AddUint64(&x.counters.failedClaims, 1)
					return InitialSequence, err
				}
				atomic.AddUint64(&x.counters.wrapRetries, 1)
				continue
			}
			x.gatingCache.Set(gatingSeq)
			continue
		}

		// only the goroutine whose CAS succeeds owns (current, next]
		if x.cursor.CompareAndSet(current, next) {
			atomic.AddUint64(&x.counters.claimedSlots, uint64(n))
			return next, nil
		}
		atomic.AddUint64(&x.counters.casRetries, 1)
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

func (x *multiProducerSequencer) TryNext(n int64) (int64, error) {
	atomic.AddUint64(&x.counters.claimAttempts, 1)
	if err := x.checkClaim(n); err != nil {
		atomic.AddUint64(&x.counters.failedClaims, 1)
		return InitialSequence, err
	}

	var spins uint32
	for {
		current := x.cursor.Get()
		next := current + n
		if !x.hasCapacity(n, current) {
			atomic.AddUint64(&x.counters.failedClaims, 1)
			return InitialSequence, ErrInsufficientCapacity
		}
		if x.cursor.CompareAndSet(current, next) {
			atomic.AddUint64(&x.counters.claimedSlots, uint64(n))
			return next, nil
		}
		atomic.AddUint64(&x.counters.casRetries, 1)
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

func (x *multiProducerSequencer) hasCapacity(n, current int64) bool {
	wrapPoint := current + n - x.bufferSize
	cached := x.gatingCache.Get()
	if wrapPoint > cached || cached > current {
		minSeq := minimumWith(x.gatingSequences(), current)
		x.gatingCache.Set(minSeq)
		if wrapPoint > minSeq {
			return false
		}
	}
	return true
}

func (x *multiProducerSequencer) Publish(seq int64) {
	atomic.AddUint64(&x.counters.publishes, 1)
	x.setAvailable(seq)
	x.waitStrategy.SignalAllWhenBlocking()
}

func (x *multiProducerSequencer) PublishRange(lo, hi int64) {
	atomic.AddUint64(&x.counters.publishes, 1)
	for seq := lo; seq <= hi; seq++ {
		x.setAvailable(seq)
	}
	x.waitStrategy.SignalAllWhenBlocking()
}

// setAvailable is the release store of the lap marker: the payload write
// happens-before any consumer observing the marker.
func (x *multiProducerSequencer) setAvailable(seq int64) {
	x.available[seq&x.indexMask].Store(x.lap(seq))
}

func (x *multiProducerSequencer) IsAvailable(seq int64) bool {
	return x.available[seq&x.indexMask].Load() == x.lap(seq)
}

func (x *multiProducerSequencer) HighestPublishedSequence(low, high int64) int64 {
	for seq := low; seq <= high; seq++ {
		if !x.IsAvailable(seq) {
			return seq - 1
		}
	}
	return high
}

func (x *multiProducerSequencer) RemainingCapacity() int64 {
	produced := x.cursor.Get()
	consumed := minimumWith(x.gatingSequences(), produced)
	return x.bufferSize - (produced - consumed)
}

func (x *multiProducerSequencer) lap(seq int64) int32 {
	return int32(uint64(seq) >> x.indexShift)
}
