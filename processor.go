package disruptor

import (
	"github.com/google/uuid"
)

const (
	stateIdle int32 = iota
	stateHalted
	stateRunning
)

type (
	// EventProcessor is a consumer execution loop. Run blocks the calling
	// goroutine until Halt is called, and is what gets handed to an Executor.
	EventProcessor interface {
		Run() error
		Halt()
		IsRunning() bool
		// Sequence is the processor's progress, shared read-only with
		// downstream barriers and the producer's gating set.
		Sequence() SequenceReader
	}

	// ProcessorOption configures a BatchEventProcessor, WorkProcessor or
	// WorkerPool.
	ProcessorOption func(c *processorConfig)

	processorConfig struct {
		name   string
		logger *Logger
		policy FailurePolicy
		hook   FailureHook
	}
)

// WithProcessorName names the processor in log output. Defaults to a random
// UUID. Worker pools suffix it with the worker index.
func WithProcessorName(name string) ProcessorOption {
	return func(c *processorConfig) {
		c.name = name
	}
}

func WithProcessorLogger(logger *Logger) ProcessorOption {
	return func(c *processorConfig) {
		c.logger = logger
	}
}

// WithFailurePolicy replaces the default SkipFailures policy.
func WithFailurePolicy(policy FailurePolicy) ProcessorOption {
	return func(c *processorConfig) {
		c.policy = policy
	}
}

// WithFailureHook registers a callback for events skipped after failing.
func WithFailureHook(hook FailureHook) ProcessorOption {
	return func(c *processorConfig) {
		c.hook = hook
	}
}

func newProcessorConfig(options []ProcessorOption) processorConfig {
	var c processorConfig
	for _, o := range options {
		if o != nil {
			o(&c)
		}
	}
	if c.name == `` {
		c.name = uuid.NewString()
	}
	if c.policy == nil {
		c.policy = SkipFailures{}
	}
	return c
}

func (x *failureTracker) init(c processorConfig) {
	x.name = c.name
	x.logger = c.logger
	x.policy = c.policy
	x.hook = c.hook
}
