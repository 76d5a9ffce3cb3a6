package modrefresh

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultWaitTimeout bounds how long a refresh task waits for the host's
// completion event before treating the refresh as done.
const DefaultWaitTimeout = 90 * time.Second

// NoModule is used as the self module of a coordinator whose hosting module
// is unknown; no real module ever has this ID.
const NoModule ModuleID = -1

// Coordinator batches refresh requests made during an installation cycle and
// refreshes them through the host runtime.
//
// Triggers call MarkForRefresh, which records the module in the shared
// PendingSet and queues a RefreshTask into the current cycle. The first
// RefreshTask to run drains the set; later ones find it empty and do nothing.
type Coordinator struct {
	host    HostRuntime
	pending *PendingSet
	logger  Logger
	metrics *Metrics

	mu          sync.RWMutex
	waitTimeout time.Duration
	classifier  *HazardClassifier

	observers *observerRegistry
	history   *resultHistory
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for coordinator-level messages.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPendingSet shares an existing pending set with the coordinator.
func WithPendingSet(p *PendingSet) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.pending = p
		}
	}
}

// WithWaitTimeout sets the bounded wait for the host's completion event.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithClassifier sets the hazard classifier.
func WithClassifier(hc *HazardClassifier) Option {
	return func(c *Coordinator) {
		if hc != nil {
			c.classifier = hc
		}
	}
}

// WithMetrics records refresh outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithHistorySize sets how many refresh results History keeps.
func WithHistorySize(n int) Option {
	return func(c *Coordinator) {
		c.history = newResultHistory(n)
	}
}

// NewCoordinator creates a coordinator refreshing modules in host.
func NewCoordinator(host HostRuntime, opts ...Option) (*Coordinator, error) {
	if host == nil {
		return nil, ErrNilHost
	}

	c := &Coordinator{
		host:        host,
		pending:     NewPendingSet(),
		logger:      NopLogger{},
		waitTimeout: DefaultWaitTimeout,
		classifier:  NewHazardClassifier(NoModule, DefaultHazardousCapabilities...),
		history:     newResultHistory(DefaultHistorySize),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.observers = newObserverRegistry(c.logger)

	return c, nil
}

// NewCoordinatorFromConfig creates a coordinator using the wait timeout,
// hazard list and history size from cfg. Options are applied after cfg.
func NewCoordinatorFromConfig(host HostRuntime, cfg *Config, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithWaitTimeout(cfg.WaitTimeout()),
		WithClassifier(classifier),
		WithHistorySize(cfg.HistorySize),
	}
	return NewCoordinator(host, append(base, opts...)...)
}

// Pending returns the coordinator's pending set.
func (c *Coordinator) Pending() *PendingSet {
	return c.pending
}

// WaitTimeout returns the current bounded wait duration.
func (c *Coordinator) WaitTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waitTimeout
}

// Classifier returns the current hazard classifier.
func (c *Coordinator) Classifier() *HazardClassifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classifier
}

// SetConfig applies a new wait timeout and hazard list. Waits already in
// progress keep the timeout they started with. A config without selfModule
// keeps the current self module; it is never reset to NoModule.
func (c *Coordinator) SetConfig(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if cfg.SelfModule == "" {
		classifier = NewHazardClassifier(c.classifier.Self(), classifier.Capabilities()...)
	}
	c.waitTimeout = cfg.WaitTimeout()
	c.classifier = classifier
	c.mu.Unlock()

	c.logger.Info("Refresh configuration updated",
		"waitTimeout", cfg.WaitTimeout(), "self", classifier.Self(), "capabilities", cfg.HazardousCapabilities)
	return nil
}

// History returns the most recent refresh results, oldest first.
func (c *Coordinator) History() []RefreshResult {
	return c.history.list()
}

// MarkForRefresh records m for refresh and queues a RefreshTask into the
// cycle of ic. Both happen under the pending set's lock.
func (c *Coordinator) MarkForRefresh(ic InstallContext, m ModuleHandle) {
	if m == nil {
		c.logger.Warn("Ignoring refresh request", "error", ErrNilModule)
		return
	}
	c.MarkIDForRefresh(ic, m.ID())
}

// MarkIDForRefresh is MarkForRefresh keyed by module ID.
func (c *Coordinator) MarkIDForRefresh(ic InstallContext, id ModuleID) {
	if ic == nil {
		c.logger.Warn("Ignoring refresh request", "module", id, "error", ErrNilContext)
		return
	}

	added := c.pending.MarkAndEnqueue(id, func() {
		ic.AddTaskToCurrentCycle(&RefreshTask{coordinator: c})
	})
	c.metrics.setPending(c.pending.Len())
	c.logger.Debug("Module marked for refresh", "module", id, "new", added)
	c.emit(context.Background(), EventTypeRefreshRequested, RefreshRequestedData{Module: id})
}

// runRefreshTask is the body of RefreshTask.Execute.
func (c *Coordinator) runRefreshTask(ctx context.Context, ic InstallContext) error {
	ids := c.pending.Drain()
	c.metrics.setPending(c.pending.Len())
	if len(ids) == 0 {
		return nil
	}

	modules := c.resolve(ids)
	if len(modules) == 0 {
		return nil
	}

	started := time.Now()
	verdict, reason := c.Classifier().Classify(c.host, modules)
	if verdict == Hazardous {
		ic.AddTaskToCurrentCycle(&DetachedRefreshTask{coordinator: c, batch: Detached(modules)})
		elapsed := time.Since(started)
		ic.Log(fmt.Sprintf("Async refreshing of %d modules required", len(modules)),
			"modules", moduleNames(modules), "reason", reason, "elapsed", elapsed)
		c.record(RefreshResult{
			ID:      newRefreshID(),
			Batch:   BatchDetached,
			Modules: moduleIDs(modules),
			Outcome: OutcomeDetached,
			Reason:  reason,
			Started: started,
			Elapsed: elapsed,
		})
		return nil
	}

	res := c.executeBatch(ctx, ic, Immediate(modules))
	return res.Err
}

// resolve maps pending IDs to live modules, dropping the ones already gone.
func (c *Coordinator) resolve(ids []ModuleID) []ModuleHandle {
	modules := make([]ModuleHandle, 0, len(ids))
	for _, id := range ids {
		m, ok := c.host.Resolve(id)
		if !ok || m == nil {
			c.logger.Debug("Unable to refresh module - already gone", "module", id)
			continue
		}
		c.logger.Debug("Will refresh module", "module", id, "name", m.Name())
		modules = append(modules, m)
	}
	return modules
}

func (c *Coordinator) record(res RefreshResult) {
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	c.history.add(res)
	c.metrics.observe(res)
	c.emit(context.Background(), eventTypeForOutcome(res.Outcome), newRefreshEventData(res))
}
