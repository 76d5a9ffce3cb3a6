package modrefresh

import "context"

// CapabilityLister reports the capabilities a module exports.
type CapabilityLister interface {
	ExportedCapabilities(m ModuleHandle) []Capability
}

// HostRuntime is the module runtime the coordinator refreshes modules in.
//
// RefreshModules is asynchronous: it starts relinking and returns. Completion
// is reported later to every subscribed CompletionListener, from the host's
// own goroutines. The host may coalesce several refreshes into one event.
type HostRuntime interface {
	CapabilityLister

	// Resolve returns the live module for id, or false when the module is gone.
	Resolve(id ModuleID) (ModuleHandle, bool)

	// RefreshModules starts a refresh of the given modules. A returned error
	// means the host rejected the batch.
	RefreshModules(ctx context.Context, modules []ModuleHandle) error

	SubscribeCompletion(l CompletionListener) error
	UnsubscribeCompletion(l CompletionListener) error
}

// CompletionListener receives the host's "refresh completed" signal.
type CompletionListener interface {
	// ListenerID identifies the listener for subscribe/unsubscribe bookkeeping.
	ListenerID() string

	// RefreshCompleted is called once per completion event the host fires.
	// It must not block.
	RefreshCompleted()
}
