package engine

import "errors"

// Engine errors
var (
	ErrEngineStopped       = errors.New("engine is stopped")
	ErrTaskPanicked        = errors.New("task panicked")
	ErrShutdownTimedOut    = errors.New("engine shutdown timed out")
	ErrInvalidCycleSpec    = errors.New("invalid cycle schedule")
	ErrDetachedWaitTimeout = errors.New("timed out waiting for detached tasks")
)
