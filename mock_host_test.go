package modrefresh

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testModule struct {
	id   ModuleID
	name string
}

func (m *testModule) ID() ModuleID   { return m.id }
func (m *testModule) Name() string   { return m.name }
func (m *testModule) String() string { return fmt.Sprintf("%s [%s]", m.name, m.id) }

// mockHost is a testify mock of HostRuntime. It remembers the last
// subscribed listener so tests can fire completion events at it.
type mockHost struct {
	mock.Mock

	mu       sync.Mutex
	listener CompletionListener
}

func (h *mockHost) Resolve(id ModuleID) (ModuleHandle, bool) {
	args := h.Called(id)
	m, _ := args.Get(0).(ModuleHandle)
	return m, args.Bool(1)
}

func (h *mockHost) ExportedCapabilities(m ModuleHandle) []Capability {
	args := h.Called(m)
	caps, _ := args.Get(0).([]Capability)
	return caps
}

func (h *mockHost) RefreshModules(ctx context.Context, modules []ModuleHandle) error {
	return h.Called(ctx, modules).Error(0)
}

func (h *mockHost) SubscribeCompletion(l CompletionListener) error {
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()
	return h.Called(l).Error(0)
}

func (h *mockHost) UnsubscribeCompletion(l CompletionListener) error {
	return h.Called(l).Error(0)
}

func (h *mockHost) fire() {
	h.mu.Lock()
	l := h.listener
	h.mu.Unlock()
	if l != nil {
		l.RefreshCompleted()
	}
}

// newMockHost returns a host resolving modules and exporting caps for each.
func newMockHost(modules ...*testModule) *mockHost {
	h := &mockHost{}
	for _, m := range modules {
		h.On("Resolve", m.ID()).Return(m, true).Maybe()
		h.On("ExportedCapabilities", m).Return([]Capability(nil)).Maybe()
	}
	return h
}

func (h *mockHost) expectSubscription() {
	h.On("SubscribeCompletion", mock.Anything).Return(nil).Once()
	h.On("UnsubscribeCompletion", mock.Anything).Return(nil).Once()
}

func batchOf(ids ...ModuleID) any {
	return mock.MatchedBy(func(modules []ModuleHandle) bool {
		if len(modules) != len(ids) {
			return false
		}
		want := make(map[ModuleID]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		for _, m := range modules {
			if !want[m.ID()] {
				return false
			}
		}
		return true
	})
}

// recordingContext is an InstallContext that keeps queued tasks and log lines.
type recordingContext struct {
	mu    sync.Mutex
	tasks []Task
	logs  []string
	args  map[string][]any
}

func (r *recordingContext) AddTaskToCurrentCycle(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

func (r *recordingContext) Log(msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
	if r.args == nil {
		r.args = make(map[string][]any)
	}
	r.args[msg] = args
}

// logArg returns the value logged under key with msg.
func (r *recordingContext) logArg(msg, key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	args := r.args[msg]
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key {
			return args[i+1], true
		}
	}
	return nil, false
}

func (r *recordingContext) queued() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Task(nil), r.tasks...)
}

func (r *recordingContext) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

// testLogger records log messages by level.
type testLogger struct {
	mu      sync.Mutex
	entries map[string][]string
}

func newTestLogger() *testLogger {
	return &testLogger{entries: make(map[string][]string)}
}

func (l *testLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[level] = append(l.entries[level], msg)
}

func (l *testLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *testLogger) Error(msg string, _ ...any) { l.log("error", msg) }
func (l *testLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *testLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }

func (l *testLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries[level]...)
}

func newTestCoordinator(t *testing.T, host HostRuntime, opts ...Option) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(host, opts...)
	require.NoError(t, err)
	return c
}
