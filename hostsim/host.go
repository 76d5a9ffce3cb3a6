// Package hostsim provides an in-memory module host runtime.
//
// Host implements modrefresh.HostRuntime. Refreshes complete on a background
// goroutine after a configurable delay, and the completion event can be
// dropped or the refresh rejected to exercise the coordinator's recovery paths.
package hostsim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/modrefresh"
)

// ErrListenerNotSubscribed is returned when unsubscribing an unknown listener.
var ErrListenerNotSubscribed = errors.New("listener not subscribed")

// ErrUnknownModule is returned for operations on modules the host never installed.
var ErrUnknownModule = errors.New("unknown module")

// Module is a module installed in the simulated host.
type Module struct {
	id           modrefresh.ModuleID
	name         string
	capabilities []modrefresh.Capability
}

func (m *Module) ID() modrefresh.ModuleID { return m.id }
func (m *Module) Name() string            { return m.name }
func (m *Module) String() string          { return fmt.Sprintf("%s [%s]", m.name, m.id) }

// Capabilities returns the capabilities the module exports.
func (m *Module) Capabilities() []modrefresh.Capability {
	return slices.Clone(m.capabilities)
}

// Host is an in-memory modrefresh.HostRuntime.
type Host struct {
	mu        sync.RWMutex
	modules   map[modrefresh.ModuleID]*Module
	listeners map[string]modrefresh.CompletionListener
	calls     [][]modrefresh.ModuleID

	nextID atomic.Int64

	refreshDelay time.Duration
	dropEvents   bool
	failure      error

	subscribes atomic.Int64
	inflight   sync.WaitGroup
	logger     modrefresh.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithRefreshDelay sets how long a refresh takes before its completion event fires.
func WithRefreshDelay(d time.Duration) Option {
	return func(h *Host) { h.refreshDelay = d }
}

// WithDroppedEvents makes the host finish refreshes without notifying listeners.
func WithDroppedEvents() Option {
	return func(h *Host) { h.dropEvents = true }
}

// WithLogger sets the host's logger.
func WithLogger(logger modrefresh.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates an empty host. Module IDs start at 1.
func New(opts ...Option) *Host {
	h := &Host{
		modules:   make(map[modrefresh.ModuleID]*Module),
		listeners: make(map[string]modrefresh.CompletionListener),
		logger:    modrefresh.NopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Install adds a module exporting capabilities and returns it.
func (h *Host) Install(name string, capabilities ...modrefresh.Capability) *Module {
	m := &Module{
		id:           modrefresh.ModuleID(h.nextID.Add(1)),
		name:         name,
		capabilities: slices.Clone(capabilities),
	}
	h.mu.Lock()
	h.modules[m.id] = m
	h.mu.Unlock()
	h.logger.Debug("Module installed", "module", m.id, "name", name)
	return m
}

// Uninstall removes a module; later Resolve calls for its ID fail.
func (h *Host) Uninstall(id modrefresh.ModuleID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.modules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	delete(h.modules, id)
	return nil
}

// Modules returns the installed modules ordered by ID.
func (h *Host) Modules() []*Module {
	h.mu.RLock()
	out := make([]*Module, 0, len(h.modules))
	for _, m := range h.modules {
		out = append(out, m)
	}
	h.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Module) int { return int(a.id - b.id) })
	return out
}

// Resolve implements modrefresh.HostRuntime.
func (h *Host) Resolve(id modrefresh.ModuleID) (modrefresh.ModuleHandle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.modules[id]
	if !ok {
		return nil, false
	}
	return m, true
}

// ExportedCapabilities implements modrefresh.HostRuntime.
func (h *Host) ExportedCapabilities(m modrefresh.ModuleHandle) []modrefresh.Capability {
	h.mu.RLock()
	defer h.mu.RUnlock()
	installed, ok := h.modules[m.ID()]
	if !ok {
		return nil
	}
	return slices.Clone(installed.capabilities)
}

// RefreshModules implements modrefresh.HostRuntime. It records the call and,
// unless a failure is set, fires one completion event after the refresh delay.
func (h *Host) RefreshModules(_ context.Context, modules []modrefresh.ModuleHandle) error {
	ids := make([]modrefresh.ModuleID, len(modules))
	for i, m := range modules {
		ids[i] = m.ID()
	}

	h.mu.Lock()
	failure := h.failure
	h.calls = append(h.calls, ids)
	delay := h.refreshDelay
	drop := h.dropEvents
	h.mu.Unlock()

	if failure != nil {
		return failure
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		if drop {
			h.logger.Debug("Refresh finished, completion event dropped", "modules", ids)
			return
		}
		h.FireCompletion()
	}()
	return nil
}

// FireCompletion notifies every subscribed listener once.
func (h *Host) FireCompletion() {
	h.mu.RLock()
	listeners := make([]modrefresh.CompletionListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.RUnlock()

	for _, l := range listeners {
		l.RefreshCompleted()
	}
}

// SubscribeCompletion implements modrefresh.HostRuntime.
func (h *Host) SubscribeCompletion(l modrefresh.CompletionListener) error {
	h.mu.Lock()
	h.listeners[l.ListenerID()] = l
	h.mu.Unlock()
	h.subscribes.Add(1)
	return nil
}

// UnsubscribeCompletion implements modrefresh.HostRuntime.
func (h *Host) UnsubscribeCompletion(l modrefresh.CompletionListener) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[l.ListenerID()]; !ok {
		return fmt.Errorf("%w: %s", ErrListenerNotSubscribed, l.ListenerID())
	}
	delete(h.listeners, l.ListenerID())
	return nil
}

// SetFailure makes subsequent refreshes fail with err; nil clears it.
func (h *Host) SetFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failure = err
}

// SetRefreshDelay changes the delay of subsequent refreshes.
func (h *Host) SetRefreshDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshDelay = d
}

// SetDropEvents toggles dropping of completion events.
func (h *Host) SetDropEvents(drop bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropEvents = drop
}

// RefreshCalls returns the module IDs of every RefreshModules call, in call order.
func (h *Host) RefreshCalls() [][]modrefresh.ModuleID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([][]modrefresh.ModuleID, len(h.calls))
	for i, c := range h.calls {
		out[i] = slices.Clone(c)
	}
	return out
}

// Subscribes returns how many times SubscribeCompletion was called.
func (h *Host) Subscribes() int64 {
	return h.subscribes.Load()
}

// Listeners returns the number of currently subscribed listeners.
func (h *Host) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Wait blocks until every started refresh has finished or ctx ends.
func (h *Host) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
