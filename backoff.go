package disruptor

import (
	"context"
	"runtime"
	"time"

	"github.com/valyala/fastrand"
)

const (
	defaultBackoffSpins = 64 // same cadence as the Gosched throttle in the hot loops
	defaultBackoffYield = time.Microsecond
)

// Backoff configures how a producer waits when the ring is full relative to
// the slowest gating consumer. Wrap stalls are expected to be short, so the
// producer never blocks on an OS primitive: it spins, then yields the
// processor, then sleeps for short jittered intervals.
//
// The zero value is valid, see the field docs for defaults.
type Backoff struct {
	// Spins is the number of busy retries before the producer starts
	// yielding, and the number of yielding retries before it starts to sleep.
	// **Defaults to 64, if 0.** Negative disables spinning and yielding.
	Spins int

	// Yield is the base sleep once spinning and yielding have not cleared
	// the wrap point. **Defaults to 1µs, if 0.**
	Yield time.Duration

	// MaxSleep is the upper bound for the jittered sleep. Jitter keeps
	// competing producers from retrying in lock step.
	// **Defaults to 4x Yield, if <= Yield.**
	MaxSleep time.Duration

	// MaxRetries bounds the number of retries of a single claim, if positive,
	// after which the claim fails with ErrInsufficientCapacity.
	// **Defaults to unbounded, if 0.**
	MaxRetries int
}

type backoffState struct {
	cfg      Backoff
	attempts int
}

func (x Backoff) normalize() Backoff {
	if x.Spins == 0 {
		x.Spins = defaultBackoffSpins
	}
	if x.Yield <= 0 {
		x.Yield = defaultBackoffYield
	}
	if x.MaxSleep <= x.Yield {
		x.MaxSleep = x.Yield * 4
	}
	return x
}

func (x Backoff) start() backoffState {
	return backoffState{cfg: x}
}

// wait performs one retry step. It returns ErrInsufficientCapacity once the
// retry bound is exhausted, or the context error if ctx is done.
func (b *backoffState) wait(ctx context.Context) error {
	b.attempts++
	if b.cfg.MaxRetries > 0 && b.attempts > b.cfg.MaxRetries {
		return ErrInsufficientCapacity
	}

	spins := b.cfg.Spins
	if spins < 0 {
		spins = 0
	}

	switch {
	case b.attempts <= spins:
		// busy retry, ctx checked periodically only
		if b.attempts%16 != 0 {
			return nil
		}
	case b.attempts <= spins*2:
		runtime.Gosched()
	default:
		sleep := b.cfg.Yield
		if jitter := b.cfg.MaxSleep - b.cfg.Yield; jitter > 0 {
			sleep += time.Duration(fastrand.Uint32n(uint32(min(jitter, time.Duration(1<<31)))))
		}
		if ctx == nil {
			time.Sleep(sleep)
			return nil
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		return nil
	}

	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}
