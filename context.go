package modrefresh

import "context"

// InstallContext is the handle an installation cycle gives to its running tasks.
type InstallContext interface {
	// AddTaskToCurrentCycle queues t into the cycle that is currently executing.
	// Detached tasks may be handed to a separate worker instead.
	AddTaskToCurrentCycle(t Task)

	// Log writes a cycle-scoped log line with key-value args.
	Log(msg string, args ...any)
}

// Task is a unit of work executed by the installation engine.
type Task interface {
	// Execute runs the task. A returned error is reported as a task failure;
	// the engine decides whether the triggering install is retried later.
	Execute(ctx context.Context, ic InstallContext) error

	// SortKey orders tasks within a cycle; lower keys run first.
	SortKey() string

	// IsDetached reports whether the task may run outside the cycle's
	// strict ordering, on a separate worker.
	IsDetached() bool
}
