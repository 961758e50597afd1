package disruptor

import (
	"context"
	"sync/atomic"
)

// singleProducerSequencer is not safe for concurrent claims: exactly one
// goroutine may call Next/TryNext/Publish. Consumers only ever read the
// cursor, which is published with a release store.
type singleProducerSequencer struct {
	sequencerBase
	_ [64]byte
	// claimed but possibly unpublished, owner only
	nextValue int64
	// slowest gating sequence as last observed, owner only
	cachedValue int64
	_           [64]byte
}

func newSingleProducerSequencer(bufferSize int, waitStrategy WaitStrategy, backoff Backoff) *singleProducerSequencer {
	x := &singleProducerSequencer{
		nextValue:   InitialSequence,
		cachedValue: InitialSequence,
	}
	x.init(x, bufferSize, waitStrategy, backoff)
	return x
}

func (x *singleProducerSequencer) Next(ctx context.Context, n int64) (int64, error) {
	atomic.AddUint64(&x.counters.claimAttempts, 1)
	if err := x.checkClaim(n); err != nil {
		atomic.AddUint64(&x.counters.failedClaims, 1)
		return InitialSequence, err
	}

	next := x.nextValue + n
	wrapPoint := next - x.bufferSize

	// the cached minimum holds until the claim would lap it
	if wrapPoint > x.cachedValue {
		minSeq := minimumWith(x.gatingSequences(), x.nextValue)
		if wrapPoint > minSeq {
			atomic.AddUint64(&x.counters.wrapStalls, 1)
			b := x.backoff.start()
			for wrapPoint > minSeq {
				if err := b.wait(ctx); err != nil {
					atomic.AddUint64(&x.counters.failedClaims, 1)
					return InitialSequence, err
				}
				atomic.AddUint64(&x.counters.wrapRetries, 1)
				minSeq = minimumWith(x.gatingSequences(), x.nextValue)
			}
		}
		x.cachedValue = minSeq
	}

	x.nextValue = next
	atomic.AddUint64(&x.counters.claimedSlots, uint64(n))
	return next, nil
}

func (x *singleProducerSequencer) TryNext(n int64) (int64, error) {
	atomic.AddUint64(&x.counters.claimAttempts, 1)
	if err := x.checkClaim(n); err != nil {
		atomic.AddUint64(&x.counters.failedClaims, 1)
		return InitialSequence, err
	}

	next := x.nextValue + n
	wrapPoint := next - x.bufferSize
	if wrapPoint > x.cachedValue {
		minSeq := minimumWith(x.gatingSequences(), x.nextValue)
		if wrapPoint > minSeq {
			atomic.AddUint64(&x.counters.failedClaims, 1)
			return InitialSequence, ErrInsufficientCapacity
		}
		x.cachedValue = minSeq
	}

	x.nextValue = next
	atomic.AddUint64(&x.counters.claimedSlots, uint64(n))
	return next, nil
}

func (x *singleProducerSequencer) Publish(seq int64) {
	atomic.AddUint64(&x.counters.publishes, 1)
	// release: the payload write happens-before the cursor is observed
	x.cursor.LazySet(seq)
	x.waitStrategy.SignalAllWhenBlocking()
}

func (x *singleProducerSequencer) PublishRange(_, hi int64) {
	x.Publish(hi)
}

func (x *singleProducerSequencer) IsAvailable(seq int64) bool {
	current := x.cursor.Get()
	return seq <= current && seq > current-x.bufferSize
}

func (x *singleProducerSequencer) HighestPublishedSequence(_, high int64) int64 {
	return high
}

func (x *singleProducerSequencer) RemainingCapacity() int64 {
	produced := x.nextValue
	consumed := minimumWith(x.gatingSequences(), produced)
	return x.bufferSize - (produced - consumed)
}
