package disruptor

import (
	"sync/atomic"
)

type (
	// FailurePolicy decides whether a failed handler invocation is retried.
	// attempt starts at 1. Once it returns false the event is skipped: the
	// processor's sequence advances past it and it is never redelivered.
	FailurePolicy interface {
		ShouldRetry(err error, sequence int64, attempt int) bool
	}

	// FailurePolicyFunc adapts a function to FailurePolicy.
	FailurePolicyFunc func(err error, sequence int64, attempt int) bool

	// SkipFailures never retries. This is the default: a failing event is
	// reported and dropped, keeping the pipeline live.
	SkipFailures struct{}

	// RetryFailures retries each failing event up to Retries more times,
	// then skips it.
	RetryFailures struct {
		Retries int
	}

	// FailureHook observes every event that was skipped after failing.
	FailureHook func(err error, sequence int64)

	// failureTracker is the per-processor failure accounting shared by the
	// batch and work processors.
	failureTracker struct {
		name     string
		logger   *Logger
		policy   FailurePolicy
		hook     FailureHook
		failures atomic.Uint64
		retries  atomic.Uint64
	}
)

func (f FailurePolicyFunc) ShouldRetry(err error, sequence int64, attempt int) bool {
	return f(err, sequence, attempt)
}

func (SkipFailures) ShouldRetry(error, int64, int) bool { return false }

func (x RetryFailures) ShouldRetry(_ error, _ int64, attempt int) bool {
	return attempt <= x.Retries
}

// invoke calls fn until it succeeds or the policy gives up, recovering
// panics as *HandlerPanicError.
func (x *failureTracker) invoke(sequence int64, fn func() error) {
	for attempt := 1; ; attempt++ {
		err := callRecovered(fn)
		if err == nil {
			return
		}
		if x.policy.ShouldRetry(err, sequence, attempt) {
			x.retries.Add(1)
			x.logger.Debug().
				Str(`processor`, x.name).
				Int64(`sequence`, sequence).
				Int(`attempt`, attempt).
				Err(err).
				Log(`retrying failed event`)
			continue
		}
		x.skip(err, sequence, attempt)
		return
	}
}

func (x *failureTracker) skip(err error, sequence int64, attempts int) {
	x.failures.Add(1)
	if _, ok := failureLogLimiter.Allow(x.name); ok {
		x.logger.Err().
			Str(`processor`, x.name).
			Int64(`sequence`, sequence).
			Int(`attempts`, attempts).
			Err(err).
			Log(`skipping failed event`)
	}
	if x.hook != nil {
		x.hook(err, sequence)
	}
}

func callRecovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Value: r}
		}
	}()
	return fn()
}
