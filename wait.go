package modrefresh

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// completionWaiter is the listener a refresh task subscribes while it waits.
// Signals are ignored until arm is called right before the refresh request,
// so events from refreshes started by someone else are not counted.
// The done channel holds one slot: the first signal completes the wait and
// later or coalesced signals are dropped.
type completionWaiter struct {
	id      string
	armed   atomic.Bool
	signals atomic.Int64
	done    chan struct{}
}

func newCompletionWaiter() *completionWaiter {
	return &completionWaiter{
		id:   "refresh-waiter-" + uuid.NewString(),
		done: make(chan struct{}, 1),
	}
}

func (w *completionWaiter) ListenerID() string { return w.id }

func (w *completionWaiter) RefreshCompleted() {
	if !w.armed.Load() {
		return
	}
	w.signals.Add(1)
	select {
	case w.done <- struct{}{}:
	default:
	}
}

func (w *completionWaiter) arm() {
	w.armed.Store(true)
}

// executeBatch runs one refresh batch: immediate batches use the bounded
// wait protocol, detached batches only start the refresh. The outcome is
// logged, recorded and returned for every path.
func (c *Coordinator) executeBatch(ctx context.Context, ic InstallContext, b RefreshBatch) RefreshResult {
	res := RefreshResult{
		ID:      newRefreshID(),
		Batch:   b.Kind,
		Modules: b.IDs(),
		Started: time.Now(),
	}

	n := len(b.Modules)
	ic.Log(fmt.Sprintf("Refreshing %d modules", n), "modules", moduleNames(b.Modules), "batch", b.Kind)

	switch b.Kind {
	case BatchDetached:
		res.Outcome, res.Err = c.refreshDetached(ctx, b.Modules)
	default:
		res.Outcome, res.Signals, res.Err = c.refreshAndWait(ctx, ic, b.Modules, c.WaitTimeout())
	}
	res.Elapsed = time.Since(res.Started)

	if res.Err != nil {
		c.logger.Error("Module refresh failed", "modules", res.Modules, "outcome", res.Outcome, "error", res.Err)
	}
	ic.Log(fmt.Sprintf("Done refreshing %d modules", n), "outcome", res.Outcome, "elapsed", res.Elapsed)

	c.record(res)
	return res
}

// refreshAndWait subscribes for the completion event, starts the refresh and
// waits for the first event, the timeout, or ctx. A timeout counts as done:
// the host keeps making progress on its own and the wait is never retried.
func (c *Coordinator) refreshAndWait(ctx context.Context, ic InstallContext, modules []ModuleHandle, timeout time.Duration) (Outcome, int64, error) {
	waiter := newCompletionWaiter()
	if err := c.host.SubscribeCompletion(waiter); err != nil {
		return OutcomeFailed, 0, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	defer func() {
		if err := c.host.UnsubscribeCompletion(waiter); err != nil {
			c.logger.Warn("Failed to unsubscribe refresh listener", "listener", waiter.id, "error", err)
		}
	}()

	waiter.arm()
	if err := c.host.RefreshModules(ctx, modules); err != nil {
		return OutcomeFailed, 0, fmt.Errorf("%w: %w", ErrHostRefreshFailed, err)
	}

	ic.Log(fmt.Sprintf("Waiting up to %s for modules refresh", timeout))
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waiter.done:
		return OutcomeCompleted, waiter.signals.Load(), nil
	case <-timer.C:
		c.logger.Warn("No refresh completion event received within timeout, aborting wait",
			"timeout", timeout, "modules", moduleIDs(modules))
		return OutcomeTimedOut, waiter.signals.Load(), nil
	case <-ctx.Done():
		return OutcomeCancelled, waiter.signals.Load(), fmt.Errorf("%w: %w", ErrWaitCancelled, ctx.Err())
	}
}

// refreshDetached starts the refresh and returns without waiting.
func (c *Coordinator) refreshDetached(ctx context.Context, modules []ModuleHandle) (Outcome, error) {
	if err := c.host.RefreshModules(ctx, modules); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %w", ErrHostRefreshFailed, err)
	}
	return OutcomeDispatched, nil
}

// IsHostRefreshFailure reports whether err came from the host rejecting a batch.
func IsHostRefreshFailure(err error) bool {
	return errors.Is(err, ErrHostRefreshFailed)
}

func newRefreshID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "refresh-" + id.String()
}
