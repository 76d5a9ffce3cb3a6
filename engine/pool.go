package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/eapache/queue"
	"golang.org/x/sync/errgroup"
)

// detachedPool runs detached tasks off-cycle. Submitted tasks wait in a FIFO
// backlog until a worker picks them up; submitting never blocks the cycle.
type detachedPool struct {
	workers int
	logger  modrefresh.Logger
	run     func(ctx context.Context, t modrefresh.Task)

	mu       sync.Mutex
	closed   bool
	backlog  *queue.Queue
	wake     chan struct{}
	inflight sync.WaitGroup

	group  *errgroup.Group
	cancel context.CancelFunc
}

func newDetachedPool(workers int, logger modrefresh.Logger, run func(ctx context.Context, t modrefresh.Task)) *detachedPool {
	if workers < 1 {
		workers = 1
	}
	return &detachedPool{
		workers: workers,
		logger:  logger,
		run:     run,
		backlog: queue.New(),
		wake:    make(chan struct{}, 1),
	}
}

func (p *detachedPool) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	p.cancel = cancel
	p.group = group

	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			return p.work(ctx, i)
		})
	}
}

// submit queues t for a worker. It fails once the pool has been stopped.
func (p *detachedPool) submit(t modrefresh.Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrEngineStopped
	}
	p.inflight.Add(1)
	p.backlog.Add(t)
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *detachedPool) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *detachedPool) pop() modrefresh.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backlog.Length() == 0 {
		return nil
	}
	t, _ := p.backlog.Remove().(modrefresh.Task)
	if p.backlog.Length() > 0 {
		p.notify()
	}
	return t
}

// work runs tasks until ctx ends and returns the context's error, which
// cancels the sibling workers through the group.
func (p *detachedPool) work(ctx context.Context, id int) error {
	p.logger.Debug("Starting detached worker", "id", id)
	for {
		t := p.pop()
		if t == nil {
			select {
			case <-p.wake:
				continue
			case <-ctx.Done():
				p.logger.Debug("Detached worker stopping", "id", id)
				return ctx.Err()
			}
		}
		p.run(ctx, t)
		p.inflight.Done()
	}
}

// wait blocks until every submitted task has run or ctx ends.
func (p *detachedPool) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop cancels the workers and drops tasks that never started. Later
// submissions are refused.
func (p *detachedPool) stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		if err := p.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("Detached workers stopped", "error", err)
		}
		p.cancel = nil
	}

	p.mu.Lock()
	dropped := p.backlog.Length()
	for p.backlog.Length() > 0 {
		p.backlog.Remove()
		p.inflight.Done()
	}
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warn("Dropped detached tasks on shutdown", "count", dropped)
	}
}

func (p *detachedPool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.Length()
}
