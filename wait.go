package disruptor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Alerter is the cancellation token threaded through WaitFor. It is
	// checked before blocking and on every wake.
	Alerter interface {
		IsAlerted() bool
	}

	// WaitStrategy decides how a consumer waits for a sequence to become
	// available, and how producers wake waiting consumers.
	WaitStrategy interface {
		// WaitFor blocks until every sequence in deps is >= seq, returning
		// their minimum. The cursor is what producers signal on; deps are the
		// consumer's upstream stages (or the cursor itself, for a first
		// stage). It returns ErrAlert once alert reports true, and may return
		// ErrTimeout, for strategies that support it.
		WaitFor(seq int64, cursor SequenceReader, deps []SequenceReader, alert Alerter) (int64, error)

		// SignalAllWhenBlocking wakes every consumer blocked in WaitFor.
		SignalAllWhenBlocking()
	}

	// BlockingWaitStrategy parks consumers on a condition variable until a
	// producer publishes. It is the default, trading latency for CPU.
	// Instances must be created with NewBlockingWaitStrategy.
	BlockingWaitStrategy struct {
		mu   sync.Mutex
		cond sync.Cond
	}

	// TimeoutBlockingWaitStrategy blocks like BlockingWaitStrategy, but
	// gives up with ErrTimeout after Timeout, allowing processors to run
	// periodic work (see TimeoutHandler).
	TimeoutBlockingWaitStrategy struct {
		timeout time.Duration
		waiters atomic.Int32
		mu      sync.Mutex
		ch      chan struct{}
	}

	// YieldingWaitStrategy spins briefly, then yields the processor on every
	// retry. Low latency, at the cost of a busy core per idle consumer.
	YieldingWaitStrategy struct {
		Spins int
	}

	// BusySpinWaitStrategy never yields. Only appropriate when every
	// consumer has a dedicated core.
	BusySpinWaitStrategy struct{}

	// SleepingWaitStrategy spins, yields, then sleeps for Sleep between
	// checks.
	SleepingWaitStrategy struct {
		Retries int
		Sleep   time.Duration
	}
)

var (
	_ WaitStrategy = (*BlockingWaitStrategy)(nil)
	_ WaitStrategy = (*TimeoutBlockingWaitStrategy)(nil)
	_ WaitStrategy = YieldingWaitStrategy{}
	_ WaitStrategy = BusySpinWaitStrategy{}
	_ WaitStrategy = SleepingWaitStrategy{}
)

func NewBlockingWaitStrategy() *BlockingWaitStrategy {
	x := &BlockingWaitStrategy{}
	x.cond.L = &x.mu
	return x
}

func (x *BlockingWaitStrategy) WaitFor(seq int64, cursor SequenceReader, deps []SequenceReader, alert Alerter) (int64, error) {
	if cursor.Get() < seq {
		x.mu.Lock()
		for cursor.Get() < seq {
			// checked under the lock, Alert signals under the same lock
			if alert.IsAlerted() {
				x.mu.Unlock()
				return InitialSequence, ErrAlert
			}
			x.cond.Wait()
		}
		x.mu.Unlock()
	}
	return spinForDependents(seq, cursor, deps, alert)
}

func (x *BlockingWaitStrategy) SignalAllWhenBlocking() {
	x.mu.Lock()
	x.cond.Broadcast()
	x.mu.Unlock()
}

// NewTimeoutBlockingWaitStrategy defaults timeout to 1ms, if <= 0.
func NewTimeoutBlockingWaitStrategy(timeout time.Duration) *TimeoutBlockingWaitStrategy {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return &TimeoutBlockingWaitStrategy{
		timeout: timeout,
		ch:      make(chan struct{}),
	}
}

func (x *TimeoutBlockingWaitStrategy) WaitFor(seq int64, cursor SequenceReader, deps []SequenceReader, alert Alerter) (int64, error) {
	if cursor.Get() < seq {
		x.waiters.Add(1)
		timer := time.NewTimer(x.timeout)
		err := func() error {
			defer x.waiters.Add(-1)
			for {
				x.mu.Lock()
				ch := x.ch
				x.mu.Unlock()
				// the waiter count was raised before this load, so a producer
				// publishing after it is guaranteed to close ch
				if cursor.Get() >= seq {
					return nil
				}
				if alert.IsAlerted() {
					return ErrAlert
				}
				select {
				case <-ch:
				case <-timer.C:
					return ErrTimeout
				}
			}
		}()
		timer.Stop()
		if err != nil {
			return InitialSequence, err
		}
	}
	return spinForDependents(seq, cursor, deps, alert)
}

func (x *TimeoutBlockingWaitStrategy) SignalAllWhenBlocking() {
	if x.waiters.Load() == 0 {
		return
	}
	x.mu.Lock()
	close(x.ch)
	x.ch = make(chan struct{})
	x.mu.Unlock()
}

func (x YieldingWaitStrategy) WaitFor(seq int64, cursor SequenceReader, deps []SequenceReader, alert Alerter) (int64, error) {
	spins := x.Spins
	if spins <= 0 {
		spins = 100
	}
	for {
		if available := MinimumSequence(deps, cursor.Get()); available >= seq {
			return available, nil
		}
		if alert.IsAlerted() {
			return InitialSequence, ErrAlert
		}
		if spins > 0 {
			spins--
		} else {
			runtime.Gosched()
		}
	}
}

func (YieldingWaitStrategy) SignalAllWhenBlocking() {}

func (BusySpinWaitStrategy) WaitFor(seq int64, cursor SequenceReader, deps []SequenceReader, alert Alerter) (int64, error) {
	for {
		if available := MinimumSequence(deps, cursor.Get()); available >= seq {
			return available, nil
		}
		if alert.IsAlerted() {
			return InitialSequence, ErrAlert
		}
	}
}

func (BusySpinWaitStrategy) SignalAllWhenBlocking() {}

func (x SleepingWaitStrategy) WaitFor(seq int64, cursor SequenceReader, deps []SequenceReader, alert Alerter) (int64, error) {
	retries := x.Retries
	if retries <= 0 {
		retries = 200
	}
	sleep := x.Sleep
	if sleep <= 0 {
		sleep = 100 * time.Microsecond
	}
	for {
		if available := MinimumSequence(deps, cursor.Get()); available >= seq {
			return available, nil
		}
		if alert.IsAlerted() {
			return InitialSequence, ErrAlert
		}
		switch {
		case retries > 100:
			retries--
		case retries > 0:
			retries--
			runtime.Gosched()
		default:
			time.Sleep(sleep)
		}
	}
}

func (SleepingWaitStrategy) SignalAllWhenBlocking() {}

// spinForDependents waits for upstream stages once the cursor has passed seq.
// Upstream stages don't signal, and are expected to be close behind.
func spinForDependents(seq int64, cursor SequenceReader, deps []SequenceReader, alert Alerter) (int64, error) {
	var spins uint32
	for {
		if available := MinimumSequence(deps, cursor.Get()); available >= seq {
			return available, nil
		}
		if alert.IsAlerted() {
			return InitialSequence, ErrAlert
		}
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}
