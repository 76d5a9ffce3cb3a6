package modrefresh

import (
	"slices"
	"sync"
)

// PendingSet is the set of module IDs waiting for a refresh.
//
// One PendingSet is shared by every trigger and refresh task of an engine.
// All access goes through its atomic operations; the lock is never held
// across host calls or the refresh wait.
type PendingSet struct {
	mu  sync.Mutex
	ids map[ModuleID]struct{}
}

// NewPendingSet creates an empty pending set.
func NewPendingSet() *PendingSet {
	return &PendingSet{ids: make(map[ModuleID]struct{})}
}

// Add inserts id and reports whether it was not already present.
func (p *PendingSet) Add(id ModuleID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(id)
}

// MarkAndEnqueue inserts id and calls enqueue while still holding the lock,
// so no drain can observe the id without a draining task also being queued.
func (p *PendingSet) MarkAndEnqueue(id ModuleID, enqueue func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	added := p.addLocked(id)
	if enqueue != nil {
		enqueue()
	}
	return added
}

func (p *PendingSet) addLocked(id ModuleID) bool {
	if _, exists := p.ids[id]; exists {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

// Drain swaps the set for an empty one and returns the previous members.
// The returned batch is unordered.
func (p *PendingSet) Drain() []ModuleID {
	p.mu.Lock()
	drained := p.ids
	p.ids = make(map[ModuleID]struct{})
	p.mu.Unlock()

	batch := make([]ModuleID, 0, len(drained))
	for id := range drained {
		batch = append(batch, id)
	}
	return batch
}

// Len returns the number of pending IDs.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// Snapshot returns the pending IDs in ascending order without draining them.
func (p *PendingSet) Snapshot() []ModuleID {
	p.mu.Lock()
	ids := make([]ModuleID, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	slices.Sort(ids)
	return ids
}
