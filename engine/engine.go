// Package engine runs installation cycles.
//
// A cycle executes its queued tasks one at a time, in sort key order, on the
// calling goroutine. Tasks may add more tasks to the running cycle through
// their modrefresh.InstallContext. Detached tasks bypass the ordering and run
// on a worker pool, possibly overlapping later cycles.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/robfig/cron/v3"
)

// CycleReport summarizes one cycle.
type CycleReport struct {
	Cycle    int64         `json:"cycle"`
	Executed int           `json:"executed"`
	Failed   int           `json:"failed"`
	Detached int           `json:"detached"`
	Requeued int           `json:"requeued"`
	Duration time.Duration `json:"duration"`
}

// Engine queues tasks and runs them in cycles.
type Engine struct {
	logger   modrefresh.Logger
	schedule string

	mu      sync.Mutex
	queued  []modrefresh.Task
	cycle   int64
	stopped bool

	runMu sync.Mutex

	pool *detachedPool

	lifecycleMu sync.Mutex
	started     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	cron        *cron.Cron
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger; cycle contexts log through it.
func WithLogger(logger modrefresh.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDetachedWorkers sets the size of the detached task pool.
func WithDetachedWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pool.workers = n
		}
	}
}

// WithCycleSchedule runs a cycle on the given cron schedule once started.
func WithCycleSchedule(spec string) Option {
	return func(e *Engine) {
		e.schedule = spec
	}
}

// New creates an engine. Call Start to run detached tasks and scheduled cycles.
func New(opts ...Option) *Engine {
	e := &Engine{logger: modrefresh.NopLogger{}}
	e.pool = newDetachedPool(2, e.logger, e.runDetached)
	for _, opt := range opts {
		opt(e)
	}
	e.pool.logger = e.logger
	return e
}

// Enqueue adds t to the next cycle; detached tasks go straight to the pool.
func (e *Engine) Enqueue(t modrefresh.Task) {
	if t == nil {
		return
	}
	if t.IsDetached() {
		e.submitDetached(t)
		return
	}
	e.mu.Lock()
	e.queued = append(e.queued, t)
	e.mu.Unlock()
}

// Context returns an InstallContext for callers outside a cycle, such as an
// admin endpoint. Tasks it adds run in the next cycle.
func (e *Engine) Context() modrefresh.InstallContext {
	return queueContext{engine: e, scope: "queue"}
}

// Queued returns the number of tasks waiting for the next cycle.
func (e *Engine) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queued)
}

// DetachedBacklog returns the number of detached tasks not yet picked up.
func (e *Engine) DetachedBacklog() int {
	return e.pool.pending()
}

// Cycles returns the number of cycles run so far.
func (e *Engine) Cycles() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle
}

// RunCycle executes every queued task. Cycles never overlap. Task failures
// do not stop the cycle; they are joined into the returned error. When ctx
// ends mid-cycle the remaining tasks are requeued for the next cycle.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return CycleReport{}, ErrEngineStopped
	}
	tasks := e.queued
	e.queued = nil
	e.cycle++
	report := CycleReport{Cycle: e.cycle}
	e.mu.Unlock()

	start := time.Now()
	cc := newCycleContext(e, report.Cycle, tasks)
	e.logger.Debug("Starting cycle", "cycle", report.Cycle, "tasks", len(tasks))

	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("cycle %d interrupted: %w", report.Cycle, err))
			break
		}
		t, ok := cc.next()
		if !ok {
			break
		}
		report.Executed++
		if err := e.execute(ctx, cc, t); err != nil {
			report.Failed++
			errs = append(errs, err)
		}
	}

	remaining, detached := cc.close()
	report.Detached = detached
	report.Requeued = len(remaining)
	if len(remaining) > 0 {
		e.mu.Lock()
		e.queued = append(remaining, e.queued...)
		e.mu.Unlock()
	}
	report.Duration = time.Since(start)

	err := errors.Join(errs...)
	if report.Executed > 0 || err != nil {
		e.logger.Info("Cycle finished", "cycle", report.Cycle, "executed", report.Executed,
			"failed", report.Failed, "detached", report.Detached, "duration", report.Duration)
	}
	return report, err
}

// execute runs one task, turning panics into ErrTaskPanicked.
func (e *Engine) execute(ctx context.Context, ic modrefresh.InstallContext, t modrefresh.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v: %v", ErrTaskPanicked, t, r)
		}
		if err != nil {
			e.logger.Error("Task failed", "task", fmt.Sprint(t), "error", err)
		}
	}()

	if err := t.Execute(ctx, ic); err != nil {
		return fmt.Errorf("task %v: %w", t, err)
	}
	return nil
}

func (e *Engine) submitDetached(t modrefresh.Task) {
	if err := e.pool.submit(t); err != nil {
		e.logger.Warn("Dropping detached task", "task", fmt.Sprint(t), "error", err)
		return
	}
	e.logger.Debug("Submitted detached task", "task", fmt.Sprint(t))
}

func (e *Engine) runDetached(ctx context.Context, t modrefresh.Task) {
	_ = e.execute(ctx, queueContext{engine: e, scope: "detached"}, t)
}

// WaitDetached blocks until all submitted detached tasks have run.
func (e *Engine) WaitDetached(ctx context.Context) error {
	if err := e.pool.wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDetachedWaitTimeout, err)
	}
	return nil
}

// Start launches the detached workers and, if configured, scheduled cycles.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started {
		return nil
	}

	e.logger.Info("Starting engine", "detachedWorkers", e.pool.workers, "schedule", e.schedule)
	e.runCtx, e.cancel = context.WithCancel(ctx)
	e.pool.start(e.runCtx)

	if e.schedule != "" {
		e.cron = cron.New()
		if _, err := e.cron.AddFunc(e.schedule, e.scheduledCycle); err != nil {
			e.pool.stop()
			e.cancel()
			return fmt.Errorf("%w '%s': %w", ErrInvalidCycleSpec, e.schedule, err)
		}
		e.cron.Start()
	}

	e.started = true
	return nil
}

func (e *Engine) scheduledCycle() {
	if _, err := e.RunCycle(e.runCtx); err != nil {
		e.logger.Error("Scheduled cycle failed", "error", err)
	}
}

// Stop halts scheduled cycles, waits for detached tasks until ctx ends,
// then stops the workers. Later RunCycle calls fail with ErrEngineStopped.
func (e *Engine) Stop(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	if !e.started {
		e.pool.stop()
		return nil
	}
	e.logger.Info("Stopping engine")

	var timedOut bool
	if e.cron != nil {
		select {
		case <-e.cron.Stop().Done():
		case <-ctx.Done():
			timedOut = true
		}
	}
	if err := e.pool.wait(ctx); err != nil {
		timedOut = true
	}

	e.cancel()
	e.pool.stop()
	e.started = false

	if timedOut {
		e.logger.Warn("Engine shutdown timed out")
		return ErrShutdownTimedOut
	}
	e.logger.Info("Engine stopped")
	return nil
}
