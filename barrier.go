package disruptor

import (
	"sync/atomic"
)

// SequenceBarrier is a consumer stage's view of the ring: the producer
// cursor, the wait strategy, and the upstream sequences the stage must not
// overtake. Alert is the only way to stop a consumer parked in WaitFor.
type SequenceBarrier struct {
	sequencer    Sequencer
	waitStrategy WaitStrategy
	cursor       SequenceReader
	dependents   []SequenceReader
	alerted      atomic.Bool
}

var _ Alerter = (*SequenceBarrier)(nil)

func newSequenceBarrier(sequencer Sequencer, waitStrategy WaitStrategy, cursor SequenceReader, deps []SequenceReader) *SequenceBarrier {
	x := &SequenceBarrier{
		sequencer:    sequencer,
		waitStrategy: waitStrategy,
		cursor:       cursor,
	}
	if len(deps) == 0 {
		// a first stage is gated by production alone
		x.dependents = []SequenceReader{cursor}
	} else {
		x.dependents = append([]SequenceReader(nil), deps...)
	}
	return x
}

// WaitFor returns the highest sequence the stage may consume, which is
// normally >= seq. With multiple producers the result is clamped to the
// contiguously published prefix, so it may be seq-1 while a claimed slot is
// still being written. ErrAlert is returned once the barrier is alerted.
func (x *SequenceBarrier) WaitFor(seq int64) (int64, error) {
	if err := x.CheckAlert(); err != nil {
		return InitialSequence, err
	}

	available, err := x.waitStrategy.WaitFor(seq, x.cursor, x.dependents, x)
	if err != nil {
		return InitialSequence, err
	}

	if available < seq {
		return available, nil
	}

	return x.sequencer.HighestPublishedSequence(seq, available), nil
}

// Cursor is the minimum of the stage's dependencies, i.e. how far it could
// read without waiting (ignoring unpublished multi-producer slots).
func (x *SequenceBarrier) Cursor() int64 {
	return MinimumSequence(x.dependents, x.cursor.Get())
}

func (x *SequenceBarrier) IsAlerted() bool {
	return x.alerted.Load()
}

// Alert flags the barrier and wakes any consumer blocked on it. The next (or
// current) WaitFor returns ErrAlert.
func (x *SequenceBarrier) Alert() {
	x.alerted.Store(true)
	x.waitStrategy.SignalAllWhenBlocking()
}

// ClearAlert resets the flag, allowing the stage to be restarted.
func (x *SequenceBarrier) ClearAlert() {
	x.alerted.Store(false)
}

func (x *SequenceBarrier) CheckAlert() error {
	if x.alerted.Load() {
		return ErrAlert
	}
	return nil
}
