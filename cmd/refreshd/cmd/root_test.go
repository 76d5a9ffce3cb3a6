package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "refreshd")
	assert.Contains(t, out, "run")
	assert.Contains(t, out, "config")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "refreshd vdev")
}

func TestConfigSampleCommand(t *testing.T) {
	out, err := executeCommand(t, "config", "sample")
	require.NoError(t, err)
	assert.Contains(t, out, "waitTimeoutSeconds: 90")

	out, err = executeCommand(t, "config", "sample", "--format", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "waitTimeoutSeconds = 90")

	_, err = executeCommand(t, "config", "sample", "--format", "ini")
	assert.Error(t, err)
}

func TestConfigSampleAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refreshd.yaml")

	out, err := executeCommand(t, "config", "sample", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Sample config written to")

	out, err = executeCommand(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (wait timeout 1m30s, 2 detached workers)")

	require.NoError(t, os.WriteFile(path, []byte("waitTimeoutSeconds: 0\n"), 0o600))
	out, err = executeCommand(t, "config", "validate", path)
	require.NoError(t, err, "a zero wait timeout takes the default")
	assert.Contains(t, out, "wait timeout 1m30s")

	require.NoError(t, os.WriteFile(path, []byte("detachedWorkers: -1\n"), 0o600))
	_, err = executeCommand(t, "config", "validate", path)
	assert.ErrorIs(t, err, modrefresh.ErrInvalidDetachedWorkers)

	require.NoError(t, os.WriteFile(path, []byte("waitTimeoutSeconds: -5\n"), 0o600))
	_, err = executeCommand(t, "config", "validate", path)
	assert.ErrorIs(t, err, modrefresh.ErrInvalidWaitTimeout)
}

func TestRun_StopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refreshd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adminAddr: \"127.0.0.1:0\"\ncycleSchedule: \"@every 1s\"\n"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := Run(ctx, &RunOptions{
		ConfigFile:      path,
		LogLevel:        "error",
		Modules:         4,
		RefreshDelay:    time.Millisecond,
		UpdateInterval:  20 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	})
	assert.NoError(t, err)
}

func TestRun_InvalidLogLevel(t *testing.T) {
	err := Run(context.Background(), &RunOptions{LogLevel: "loud"})
	assert.Error(t, err)
}
