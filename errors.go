package modrefresh

import (
	"errors"
)

// Coordinator errors
var (
	// Argument errors
	ErrNilHost    = errors.New("host runtime is nil")
	ErrNilModule  = errors.New("module handle is nil")
	ErrNilContext = errors.New("install context is nil")

	// Refresh protocol errors
	ErrHostRefreshFailed = errors.New("host refresh invocation failed")
	ErrSubscribeFailed   = errors.New("failed to subscribe to refresh completion")
	ErrWaitCancelled     = errors.New("refresh wait cancelled")

	// Config errors
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrInvalidWaitTimeout         = errors.New("wait timeout must be positive")
	ErrInvalidDetachedWorkers     = errors.New("detached workers must be at least 1")
	ErrInvalidCycleSchedule       = errors.New("invalid cycle schedule")
	ErrUnsupportedConfigFormat    = errors.New("unsupported config format")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrConfigFeederError          = errors.New("config feeder error")
	ErrMetricsRegistrationFailure = errors.New("failed to register refresh metrics")
)
