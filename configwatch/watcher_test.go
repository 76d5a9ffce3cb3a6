package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/GoCodeAlone/modrefresh/hostsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWatcher_AppliesChangedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh.yaml")
	writeFile(t, path, "waitTimeoutSeconds: 5\n")

	applied := make(chan *modrefresh.Config, 4)
	w := New(path, func(cfg *modrefresh.Config) error {
		applied <- cfg
		return nil
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeFile(t, path, "waitTimeoutSeconds: 9\n")

	select {
	case cfg := <-applied:
		assert.Equal(t, 9, cfg.WaitTimeoutSeconds)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not applied")
	}
	assert.Eventually(t, func() bool { return w.Applied() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestWatcher_KeepsConfigOnInvalidChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refresh.yaml")
	writeFile(t, path, "waitTimeoutSeconds: 5\n")

	c, err := modrefresh.NewCoordinator(nopHost{}, modrefresh.WithWaitTimeout(5*time.Second))
	require.NoError(t, err)

	w := New(path, c.SetConfig, WithDebounce(20*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeFile(t, path, "waitTimeoutSeconds: -3\n")
	// Unrelated files in the same directory are ignored.
	writeFile(t, filepath.Join(dir, "other.yaml"), "waitTimeoutSeconds: 1\n")

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, w.Applied())
	assert.Equal(t, 5*time.Second, c.WaitTimeout())

	writeFile(t, path, "waitTimeoutSeconds: 8\nselfModule: \"4\"\n")
	assert.Eventually(t, func() bool { return c.WaitTimeout() == 8*time.Second }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, modrefresh.ModuleID(4), c.Classifier().Self())
}

func TestWatcher_ReloadKeepsSelfModuleHazardous(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh.yaml")
	writeFile(t, path, "waitTimeoutSeconds: 5\nhazardousCapabilities: [\"example.com/log\"]\n")

	host := hostsim.New()
	self := host.Install("refreshd")
	c, err := modrefresh.NewCoordinator(host,
		modrefresh.WithClassifier(modrefresh.NewHazardClassifier(self.ID(), "example.com/log")))
	require.NoError(t, err)

	verdict, _ := c.Classifier().Classify(host, []modrefresh.ModuleHandle{self})
	require.Equal(t, modrefresh.Hazardous, verdict)

	w := New(path, c.SetConfig, WithDebounce(20*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeFile(t, path, "waitTimeoutSeconds: 7\nhazardousCapabilities: [\"example.com/http\"]\n")
	assert.Eventually(t, func() bool { return c.WaitTimeout() == 7*time.Second }, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, self.ID(), c.Classifier().Self())
	verdict, reason := c.Classifier().Classify(host, []modrefresh.ModuleHandle{self})
	assert.Equal(t, modrefresh.Hazardous, verdict)
	assert.Contains(t, reason, "hosts the refresh coordinator")
}

func TestWatcher_StartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh.yaml")
	writeFile(t, path, "waitTimeoutSeconds: 5\n")

	w := New(path, func(*modrefresh.Config) error { return nil })
	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop(), "stopping twice is a no-op")
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing", "refresh.yaml"), func(*modrefresh.Config) error { return nil })
	assert.Error(t, w.Start(context.Background()))
}

// nopHost is a host runtime with no modules.
type nopHost struct{}

func (nopHost) ExportedCapabilities(modrefresh.ModuleHandle) []modrefresh.Capability { return nil }
func (nopHost) Resolve(modrefresh.ModuleID) (modrefresh.ModuleHandle, bool)           { return nil, false }
func (nopHost) RefreshModules(context.Context, []modrefresh.ModuleHandle) error       { return nil }
func (nopHost) SubscribeCompletion(modrefresh.CompletionListener) error               { return nil }
func (nopHost) UnsubscribeCompletion(modrefresh.CompletionListener) error             { return nil }
