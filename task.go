package modrefresh

import "context"

// RefreshSortKey sorts refresh tasks after the install, update and
// uninstall tasks of the same cycle.
const RefreshSortKey = "60-"

// RefreshTask drains the coordinator's pending set and refreshes the batch.
// It carries no state of its own: several may be queued for one cycle and
// only the first to run finds work.
type RefreshTask struct {
	coordinator *Coordinator
}

// NewRefreshTask returns a task draining c's pending set.
func NewRefreshTask(c *Coordinator) *RefreshTask {
	return &RefreshTask{coordinator: c}
}

func (t *RefreshTask) Execute(ctx context.Context, ic InstallContext) error {
	return t.coordinator.runRefreshTask(ctx, ic)
}

func (t *RefreshTask) SortKey() string  { return RefreshSortKey }
func (t *RefreshTask) IsDetached() bool { return false }
func (t *RefreshTask) String() string   { return "RefreshTask" }

// DetachedRefreshTask refreshes a batch captured when it was created and
// returns without waiting for the completion event.
type DetachedRefreshTask struct {
	coordinator *Coordinator
	batch       RefreshBatch
}

// Batch returns the batch this task refreshes.
func (t *DetachedRefreshTask) Batch() RefreshBatch {
	return t.batch
}

func (t *DetachedRefreshTask) Execute(ctx context.Context, ic InstallContext) error {
	return t.coordinator.executeBatch(ctx, ic, t.batch).Err
}

func (t *DetachedRefreshTask) SortKey() string  { return RefreshSortKey }
func (t *DetachedRefreshTask) IsDetached() bool { return true }
func (t *DetachedRefreshTask) String() string   { return "DetachedRefreshTask" }
