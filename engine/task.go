package engine

import (
	"context"

	"github.com/GoCodeAlone/modrefresh"
)

// Sort keys for the ordinary tasks of a cycle. Refresh tasks use
// modrefresh.RefreshSortKey and therefore run after all of them.
const (
	SortKeyUninstall = "20-"
	SortKeyInstall   = "40-"
	SortKeyUpdate    = "50-"
)

// TaskFunc is the body of a FuncTask.
type TaskFunc func(ctx context.Context, ic modrefresh.InstallContext) error

// FuncTask adapts a function to modrefresh.Task.
type FuncTask struct {
	name     string
	sortKey  string
	detached bool
	fn       TaskFunc
}

// NewTask creates an in-cycle task.
func NewTask(name, sortKey string, fn TaskFunc) *FuncTask {
	return &FuncTask{name: name, sortKey: sortKey, fn: fn}
}

// NewDetachedTask creates a task that runs on the detached worker pool.
func NewDetachedTask(name, sortKey string, fn TaskFunc) *FuncTask {
	return &FuncTask{name: name, sortKey: sortKey, detached: true, fn: fn}
}

func (t *FuncTask) Execute(ctx context.Context, ic modrefresh.InstallContext) error {
	if t.fn == nil {
		return nil
	}
	return t.fn(ctx, ic)
}

func (t *FuncTask) SortKey() string  { return t.sortKey }
func (t *FuncTask) IsDetached() bool { return t.detached }
func (t *FuncTask) String() string   { return t.name }
