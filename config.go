package modrefresh

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds the coordinator and engine settings.
//
// Values are read from a YAML, TOML or JSON file, then from MODREFRESH_*
// environment variables, and finally `default` tags fill whatever is still unset.
type Config struct {
	// WaitTimeoutSeconds bounds the wait for the host's completion event.
	// Zero counts as unset and takes the default.
	WaitTimeoutSeconds int `yaml:"waitTimeoutSeconds" toml:"waitTimeoutSeconds" json:"waitTimeoutSeconds" env:"MODREFRESH_WAIT_TIMEOUT_SECONDS" default:"90" desc:"Seconds to wait for the refresh completion event"`

	// SelfModule is the ID of the module hosting the coordinator. Empty means unknown.
	SelfModule string `yaml:"selfModule" toml:"selfModule" json:"selfModule" env:"MODREFRESH_SELF_MODULE" desc:"ID of the module hosting the coordinator"`

	// HazardousCapabilities are the capabilities whose exporters are refreshed detached.
	HazardousCapabilities []string `yaml:"hazardousCapabilities" toml:"hazardousCapabilities" json:"hazardousCapabilities" default:"[\"org.slf4j\",\"javax.servlet.http\",\"log/slog\",\"net/http\"]" desc:"Capabilities the coordinator's logging and transport depend on"`

	// DetachedWorkers is the number of workers running detached tasks.
	DetachedWorkers int `yaml:"detachedWorkers" toml:"detachedWorkers" json:"detachedWorkers" env:"MODREFRESH_DETACHED_WORKERS" default:"2" desc:"Workers for detached refresh tasks"`

	// CycleSchedule is a cron spec for running installation cycles. Empty disables it.
	CycleSchedule string `yaml:"cycleSchedule" toml:"cycleSchedule" json:"cycleSchedule" env:"MODREFRESH_CYCLE_SCHEDULE" default:"@every 5s" desc:"Cron schedule for installation cycles"`

	// AdminAddr is the listen address of the admin HTTP server.
	AdminAddr string `yaml:"adminAddr" toml:"adminAddr" json:"adminAddr" env:"MODREFRESH_ADMIN_ADDR" default:":8089" desc:"Admin HTTP listen address"`

	// HistorySize is the number of refresh results kept for inspection.
	HistorySize int `yaml:"historySize" toml:"historySize" json:"historySize" default:"32" desc:"Refresh results kept in history"`
}

// DefaultConfig returns a Config holding only default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	// Defaults are static tags on Config; an error here is a programming mistake.
	if err := ProcessConfigDefaults(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads path (YAML, TOML or JSON by extension) and the environment
// into a Config, applies defaults and validates the result. An empty path
// reads only the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	builder := config.New()

	if path != "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			builder.AddFeeder(feeder.Yaml{Path: path})
		case ".toml":
			builder.AddFeeder(feeder.Toml{Path: path})
		case ".json":
			builder.AddFeeder(feeder.Json{Path: path})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedConfigFormat, ext)
		}
	}
	builder.AddFeeder(feeder.Env{})
	builder.AddStruct(cfg)

	if err := builder.Feed(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFeederError, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.WaitTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWaitTimeout, c.WaitTimeoutSeconds)
	}
	if c.DetachedWorkers < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidDetachedWorkers, c.DetachedWorkers)
	}
	if c.CycleSchedule != "" {
		if _, err := cron.ParseStandard(c.CycleSchedule); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCycleSchedule, err)
		}
	}
	if _, err := c.selfModule(); err != nil {
		return err
	}
	return nil
}

// WaitTimeout returns WaitTimeoutSeconds as a duration.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// Classifier builds the hazard classifier described by the config.
func (c *Config) Classifier() (*HazardClassifier, error) {
	self, err := c.selfModule()
	if err != nil {
		return nil, err
	}
	caps := make([]Capability, len(c.HazardousCapabilities))
	for i, name := range c.HazardousCapabilities {
		caps[i] = Capability(name)
	}
	return NewHazardClassifier(self, caps...), nil
}

func (c *Config) selfModule() (ModuleID, error) {
	if c.SelfModule == "" {
		return NoModule, nil
	}
	id, err := ParseModuleID(c.SelfModule)
	if err != nil {
		return NoModule, fmt.Errorf("invalid selfModule %q: %w", c.SelfModule, err)
	}
	return id, nil
}

// SampleConfig renders the default configuration as "yaml" or "toml".
func SampleConfig(format string) ([]byte, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(format) {
	case "yaml", "yml":
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sample config: %w", err)
		}
		return out, nil
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to marshal sample config: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedConfigFormat, format)
	}
}
