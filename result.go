package modrefresh

import (
	"sync"
	"time"
)

// Outcome describes how a refresh batch ended.
type Outcome string

const (
	// OutcomeCompleted means the host signalled completion within the wait timeout.
	OutcomeCompleted Outcome = "completed"
	// OutcomeTimedOut means no completion event arrived in time; the wait was abandoned.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeCancelled means the task's context ended while waiting.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed means the host rejected the refresh.
	OutcomeFailed Outcome = "failed"
	// OutcomeDetached means a hazardous batch was handed to a detached task.
	OutcomeDetached Outcome = "detached"
	// OutcomeDispatched means a detached task started the refresh without waiting.
	OutcomeDispatched Outcome = "dispatched"
)

// RefreshResult records one execution of a refresh batch.
type RefreshResult struct {
	ID      string        `json:"id"`
	Batch   BatchKind     `json:"batch"`
	Modules []ModuleID    `json:"modules"`
	Outcome Outcome       `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
	Signals int64         `json:"signals"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`

	Err error `json:"-"`
}

// DefaultHistorySize is the number of results a coordinator keeps.
const DefaultHistorySize = 32

// resultHistory is a bounded, oldest-first log of refresh results.
type resultHistory struct {
	mu    sync.Mutex
	items []RefreshResult
	max   int
}

func newResultHistory(max int) *resultHistory {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &resultHistory{max: max}
}

func (h *resultHistory) add(res RefreshResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, res)
	if over := len(h.items) - h.max; over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
}

func (h *resultHistory) list() []RefreshResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RefreshResult, len(h.items))
	copy(out, h.items)
	return out
}
