package modrefresh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 90, cfg.WaitTimeoutSeconds)
	assert.Equal(t, DefaultWaitTimeout, cfg.WaitTimeout())
	assert.Empty(t, cfg.SelfModule)
	assert.Equal(t, []string{"org.slf4j", "javax.servlet.http", "log/slog", "net/http"}, cfg.HazardousCapabilities)
	assert.Equal(t, 2, cfg.DetachedWorkers)
	assert.Equal(t, "@every 5s", cfg.CycleSchedule)
	assert.Equal(t, ":8089", cfg.AdminAddr)
	assert.Equal(t, DefaultHistorySize, cfg.HistorySize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfigFile(t, "refresh.yaml", `
waitTimeoutSeconds: 5
selfModule: "3"
hazardousCapabilities:
  - example.com/log
cycleSchedule: "*/2 * * * *"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.WaitTimeout())
	assert.Equal(t, "*/2 * * * *", cfg.CycleSchedule)
	assert.Equal(t, 2, cfg.DetachedWorkers, "unset fields take their defaults")

	classifier, err := cfg.Classifier()
	require.NoError(t, err)
	assert.Equal(t, ModuleID(3), classifier.Self())
	assert.Equal(t, []Capability{"example.com/log"}, classifier.Capabilities())
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeConfigFile(t, "refresh.toml", `
waitTimeoutSeconds = 12
detachedWorkers = 4
adminAddr = "127.0.0.1:9000"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.WaitTimeoutSeconds)
	assert.Equal(t, 4, cfg.DetachedWorkers)
	assert.Equal(t, "127.0.0.1:9000", cfg.AdminAddr)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "refresh.yaml", "waitTimeoutSeconds: 5\n")
	t.Setenv("MODREFRESH_WAIT_TIMEOUT_SECONDS", "7")
	t.Setenv("MODREFRESH_SELF_MODULE", "11")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.WaitTimeoutSeconds)
	assert.Equal(t, "11", cfg.SelfModule)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("MODREFRESH_DETACHED_WORKERS", "3")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DetachedWorkers)
	assert.Equal(t, 90, cfg.WaitTimeoutSeconds)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		err     error
	}{
		{name: "negative timeout", file: "c.yaml", content: "waitTimeoutSeconds: -1\n", err: ErrInvalidWaitTimeout},
		{name: "negative workers", file: "c.yaml", content: "detachedWorkers: -2\n", err: ErrInvalidDetachedWorkers},
		{name: "bad schedule", file: "c.yaml", content: "cycleSchedule: not a schedule\n", err: ErrInvalidCycleSchedule},
		{name: "unknown format", file: "c.ini", content: "a=b\n", err: ErrUnsupportedConfigFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestConfig_InvalidSelfModule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelfModule = "coordinator"

	assert.Error(t, cfg.Validate())
	_, err := cfg.Classifier()
	assert.Error(t, err)
}

func TestSampleConfig(t *testing.T) {
	for _, format := range []string{"yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			data, err := SampleConfig(format)
			require.NoError(t, err)
			assert.Contains(t, string(data), "waitTimeoutSeconds")

			cfg, err := LoadConfig(writeConfigFile(t, "sample."+format, string(data)))
			require.NoError(t, err)
			assert.Equal(t, DefaultConfig(), cfg)
		})
	}

	_, err := SampleConfig("xml")
	assert.ErrorIs(t, err, ErrUnsupportedConfigFormat)
}

func TestProcessConfigDefaults(t *testing.T) {
	type nested struct {
		Name string `default:"inner"`
	}
	type sample struct {
		Timeout time.Duration `default:"1m30s"`
		Enabled bool          `default:"true"`
		Ratio   float64       `default:"0.5"`
		Count   int           `default:"3"`
		Kept    int           `default:"9"`
		Inner   nested
	}

	s := &sample{Kept: 1}
	require.NoError(t, ProcessConfigDefaults(s))
	assert.Equal(t, 90*time.Second, s.Timeout)
	assert.True(t, s.Enabled)
	assert.InDelta(t, 0.5, s.Ratio, 0.0001)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 1, s.Kept)
	assert.Equal(t, "inner", s.Inner.Name)

	assert.ErrorIs(t, ProcessConfigDefaults(nil), ErrConfigNil)
	assert.ErrorIs(t, ProcessConfigDefaults(sample{}), ErrConfigNotPointer)
	n := 1
	assert.ErrorIs(t, ProcessConfigDefaults(&n), ErrConfigNotStruct)

	type badSlice struct {
		Values []int `default:"[1]"`
	}
	assert.ErrorIs(t, ProcessConfigDefaults(&badSlice{}), ErrUnsupportedTypeForDefault)
}
