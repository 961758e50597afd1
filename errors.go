package disruptor

import (
	"fmt"
)

var (
	ErrInvalidBufferSize    = fmt.Errorf("buffer size must be a power of 2 and > 0")
	ErrNilFactory           = fmt.Errorf("nil event factory")
	ErrInvalidClaim         = fmt.Errorf("claim size must be > 0 and <= buffer size")
	ErrInsufficientCapacity = fmt.Errorf("insufficient capacity")

	// ErrAlert is returned by a SequenceBarrier (and the wait strategies it
	// delegates to) once the barrier has been alerted. It is a control-flow
	// signal, processors treat it as a request to stop.
	ErrAlert = fmt.Errorf("sequence barrier alerted")

	// ErrTimeout is returned by wait strategies that give up after a deadline.
	ErrTimeout = fmt.Errorf("timeout")

	ErrAlreadyRunning     = fmt.Errorf("processor is already running")
	ErrAlreadyStarted     = fmt.Errorf("disruptor already started")
	ErrNoHandlers         = fmt.Errorf("no handlers")
	ErrNilHandler         = fmt.Errorf("nil handler")
	ErrDuplicateHandler   = fmt.Errorf("handler registered more than once")
	ErrUnknownHandler     = fmt.Errorf("handler is not registered")
	ErrCyclicDependency   = fmt.Errorf("consumer dependency graph contains a cycle")
	ErrForeignGroup       = fmt.Errorf("handler group belongs to another disruptor")
	ErrShutdownIncomplete = fmt.Errorf("consumers did not catch up before shutdown")
)

// HandlerPanicError wraps a value recovered from a panicking handler.
type HandlerPanicError struct {
	Value any
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap exposes the recovered value if it was itself an error.
func (e *HandlerPanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
