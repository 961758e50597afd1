package disruptor

import (
	"golang.org/x/sync/errgroup"
)

type (
	// Executor runs each consumer loop on its own goroutine. Every task
	// blocks until its processor is halted, so an Executor with fewer
	// goroutines than consumers will deadlock the pipeline.
	Executor interface {
		Execute(task func() error)
	}

	// ExecutorFunc adapts a function to Executor.
	ExecutorFunc func(task func() error)

	// GoroutineExecutor starts one goroutine per task, collecting the first
	// error. The zero value is ready to use.
	GoroutineExecutor struct {
		group errgroup.Group
	}
)

var (
	_ Executor = ExecutorFunc(nil)
	_ Executor = (*GoroutineExecutor)(nil)
)

func (f ExecutorFunc) Execute(task func() error) {
	f(task)
}

func (x *GoroutineExecutor) Execute(task func() error) {
	x.group.Go(task)
}

// Wait blocks until every task has returned, returning the first non-nil
// error.
func (x *GoroutineExecutor) Wait() error {
	return x.group.Wait()
}
