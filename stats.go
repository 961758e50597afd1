package disruptor

import (
	"sync/atomic"
)

// SequencerStats is a snapshot of a sequencer's counters.
type SequencerStats struct {
	ClaimAttempts uint64 // calls to Next/TryNext
	ClaimedSlots  uint64 // sequences successfully claimed
	WrapStalls    uint64 // claims that found the ring full and had to wait
	WrapRetries   uint64 // backoff steps taken while the ring was full
	FailedClaims  uint64 // claims that returned an error
	CASRetries    uint64 // lost cursor races (multi-producer only)
	Publishes     uint64 // Publish/PublishRange calls
}

type sequencerCounters struct {
	claimAttempts uint64
	claimedSlots  uint64
	wrapStalls    uint64
	wrapRetries   uint64
	failedClaims  uint64
	casRetries    uint64
	publishes     uint64
}

func (c *sequencerCounters) snapshot() SequencerStats {
	return SequencerStats{
		ClaimAttempts: atomic.LoadUint64(&c.claimAttempts),
		ClaimedSlots:  atomic.LoadUint64(&c.claimedSlots),
		WrapStalls:    atomic.LoadUint64(&c.wrapStalls),
		WrapRetries:   atomic.LoadUint64(&c.wrapRetries),
		FailedClaims:  atomic.LoadUint64(&c.failedClaims),
		CASRetries:    atomic.LoadUint64(&c.casRetries),
		Publishes:     atomic.LoadUint64(&c.publishes),
	}
}
