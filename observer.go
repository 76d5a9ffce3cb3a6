// Package modrefresh provides Observer pattern interfaces for refresh events.
// Events use the CloudEvents specification so they can be forwarded to
// external systems unchanged.
package modrefresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer receives refresh events from a Subject.
type Observer interface {
	// OnEvent is called for each event the observer is subscribed to.
	// Observers should return quickly; they run on their own goroutine.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject is implemented by the Coordinator.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered to eventTypes.
	// An empty filter receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers event to every interested observer without blocking.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers describes the registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventSource is the CloudEvents source of every coordinator event.
const EventSource = "modrefresh/coordinator"

// Refresh event types, in reverse domain notation.
const (
	EventTypeRefreshRequested  = "com.modrefresh.refresh.requested"
	EventTypeRefreshCompleted  = "com.modrefresh.refresh.completed"
	EventTypeRefreshTimedOut   = "com.modrefresh.refresh.timedout"
	EventTypeRefreshCancelled  = "com.modrefresh.refresh.cancelled"
	EventTypeRefreshFailed     = "com.modrefresh.refresh.failed"
	EventTypeRefreshDetached   = "com.modrefresh.refresh.detached"
	EventTypeRefreshDispatched = "com.modrefresh.refresh.dispatched"
)

func eventTypeForOutcome(o Outcome) string {
	switch o {
	case OutcomeCompleted:
		return EventTypeRefreshCompleted
	case OutcomeTimedOut:
		return EventTypeRefreshTimedOut
	case OutcomeCancelled:
		return EventTypeRefreshCancelled
	case OutcomeDetached:
		return EventTypeRefreshDetached
	case OutcomeDispatched:
		return EventTypeRefreshDispatched
	default:
		return EventTypeRefreshFailed
	}
}

// RefreshRequestedData is the payload of EventTypeRefreshRequested.
type RefreshRequestedData struct {
	Module ModuleID `json:"module"`
}

// RefreshEventData is the payload of every refresh outcome event.
type RefreshEventData struct {
	RefreshID string     `json:"refreshId"`
	Batch     string     `json:"batch"`
	Modules   []ModuleID `json:"modules"`
	Outcome   Outcome    `json:"outcome"`
	Reason    string     `json:"reason,omitempty"`
	Signals   int64      `json:"signals"`
	ElapsedMS int64      `json:"elapsedMs"`
	Error     string     `json:"error,omitempty"`
}

func newRefreshEventData(res RefreshResult) RefreshEventData {
	return RefreshEventData{
		RefreshID: res.ID,
		Batch:     res.Batch.String(),
		Modules:   res.Modules,
		Outcome:   res.Outcome,
		Reason:    res.Reason,
		Signals:   res.Signals,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Error:     res.Error,
	}
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer calling handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// NewCloudEvent creates a CloudEvent with a time-ordered ID and JSON data.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID uses UUIDv7 so IDs sort by creation time.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

type observerRegistry struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
}

func newObserverRegistry(logger Logger) *observerRegistry {
	return &observerRegistry{
		observers: make(map[string]*observerRegistration),
		logger:    logger,
	}
}

func (r *observerRegistry) register(observer Observer, eventTypes ...string) {
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	r.mu.Lock()
	r.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	r.mu.Unlock()

	r.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
}

func (r *observerRegistry) unregister(observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, observer.ObserverID())
}

func (r *observerRegistry) interested(eventType string) []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Observer, 0, len(r.observers))
	for _, reg := range r.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[eventType] {
			continue
		}
		out = append(out, reg.observer)
	}
	return out
}

func (r *observerRegistry) info() []ObserverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := make([]ObserverInfo, 0, len(r.observers))
	for _, reg := range r.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return info
}

// RegisterObserver implements Subject.
func (c *Coordinator) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return fmt.Errorf("register observer: observer is nil")
	}
	c.observers.register(observer, eventTypes...)
	return nil
}

// UnregisterObserver implements Subject.
func (c *Coordinator) UnregisterObserver(observer Observer) error {
	if observer != nil {
		c.observers.unregister(observer)
	}
	return nil
}

// GetObservers implements Subject.
func (c *Coordinator) GetObservers() []ObserverInfo {
	return c.observers.info()
}

// NotifyObservers implements Subject. Each observer runs on its own
// goroutine; panics and errors are logged, never propagated.
func (c *Coordinator) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	observers := c.observers.interested(event.Type())
	if len(observers) == 0 {
		return nil
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}

	for _, observer := range observers {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()
			if err := observer.OnEvent(ctx, event); err != nil {
				c.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

func (c *Coordinator) emit(ctx context.Context, eventType string, data any) {
	if err := c.NotifyObservers(ctx, NewCloudEvent(eventType, EventSource, data, nil)); err != nil {
		c.logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}
