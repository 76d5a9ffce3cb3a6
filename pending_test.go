package modrefresh

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingSet_AddIsIdempotent(t *testing.T) {
	p := NewPendingSet()

	assert.True(t, p.Add(1))
	assert.False(t, p.Add(1))
	assert.True(t, p.Add(2))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []ModuleID{1, 2}, p.Snapshot())
}

func TestPendingSet_DrainIsIdempotent(t *testing.T) {
	p := NewPendingSet()
	p.Add(3)
	p.Add(1)

	assert.ElementsMatch(t, []ModuleID{1, 3}, p.Drain())
	assert.Empty(t, p.Drain())
	assert.Zero(t, p.Len())
}

func TestPendingSet_MarkAndEnqueueRunsUnderLock(t *testing.T) {
	p := NewPendingSet()

	var enqueued int
	added := p.MarkAndEnqueue(5, func() {
		enqueued++
		// The id is already visible to the enqueue callback.
		assert.Equal(t, []ModuleID{5}, p.snapshotLocked())
	})
	assert.True(t, added)
	assert.False(t, p.MarkAndEnqueue(5, func() { enqueued++ }))
	assert.Equal(t, 2, enqueued, "every mark queues a task, even for known ids")
}

func TestPendingSet_ConcurrentMarksDrainOnce(t *testing.T) {
	p := NewPendingSet()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.MarkAndEnqueue(ModuleID(i%10), nil)
		}()
	}
	wg.Wait()

	assert.Len(t, p.Drain(), 10)
	assert.Empty(t, p.Drain())
}

func (p *PendingSet) snapshotLocked() []ModuleID {
	ids := make([]ModuleID, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	return ids
}
