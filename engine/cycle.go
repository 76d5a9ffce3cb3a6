package engine

import (
	"slices"
	"sort"
	"sync"

	"github.com/GoCodeAlone/modrefresh"
)

// cycleContext is the modrefresh.InstallContext of a running cycle.
// It holds the cycle's remaining tasks sorted by key. Once the cycle has
// finished, added tasks go to the next cycle instead.
type cycleContext struct {
	engine *Engine
	cycle  int64

	mu       sync.Mutex
	tasks    []modrefresh.Task
	detached int
	closed   bool
}

func newCycleContext(e *Engine, cycle int64, tasks []modrefresh.Task) *cycleContext {
	c := &cycleContext{engine: e, cycle: cycle}
	for _, t := range tasks {
		c.AddTaskToCurrentCycle(t)
	}
	return c
}

// AddTaskToCurrentCycle implements modrefresh.InstallContext. Tasks with equal
// sort keys keep their insertion order.
func (c *cycleContext) AddTaskToCurrentCycle(t modrefresh.Task) {
	if t == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.engine.Enqueue(t)
		return
	}
	if t.IsDetached() {
		c.detached++
		c.mu.Unlock()
		c.engine.submitDetached(t)
		return
	}
	key := t.SortKey()
	i := sort.Search(len(c.tasks), func(i int) bool { return c.tasks[i].SortKey() > key })
	c.tasks = slices.Insert(c.tasks, i, t)
	c.mu.Unlock()
}

// Log implements modrefresh.InstallContext.
func (c *cycleContext) Log(msg string, args ...any) {
	c.engine.logger.Info(msg, append([]any{"cycle", c.cycle}, args...)...)
}

func (c *cycleContext) next() (modrefresh.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tasks) == 0 {
		return nil, false
	}
	t := c.tasks[0]
	c.tasks = c.tasks[1:]
	return t, true
}

// close ends the cycle and returns the tasks it never ran.
func (c *cycleContext) close() (remaining []modrefresh.Task, detached int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	remaining = c.tasks
	c.tasks = nil
	return remaining, c.detached
}

// queueContext is the modrefresh.InstallContext handed out between cycles
// and to detached tasks: added tasks run in the next cycle.
type queueContext struct {
	engine *Engine
	scope  string
}

func (q queueContext) AddTaskToCurrentCycle(t modrefresh.Task) {
	q.engine.Enqueue(t)
}

func (q queueContext) Log(msg string, args ...any) {
	q.engine.logger.Info(msg, append([]any{"scope", q.scope}, args...)...)
}
