package openiap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/openiap/openiap-go/internal/native"
)

// Environment variables read by ConfigFromEnv and LoadConfig.
const (
	EnvURL              = "OPENIAP_URL"
	EnvLibraryPath      = "OPENIAP_LIBRARY_PATH"
	EnvPollInterval     = "OPENIAP_POLL_INTERVAL"
	EnvDisableAnalytics = "OPENIAP_DISABLE_ANALYTICS"
)

// Config represents client configuration.
type Config struct {
	// URL of the OpenIAP server, used when Connect is given an empty url.
	URL string `yaml:"url"`

	// LibraryPath locates the native core. Empty searches the working
	// directory, ./lib and the executable's directory for the platform's
	// default file name.
	LibraryPath string `yaml:"library_path"`

	// AgentName and AgentVersion identify this SDK to the server.
	// Default: "go" and Version
	AgentName    string `yaml:"agent_name"`
	AgentVersion string `yaml:"agent_version"`

	// DefaultTimeout is applied to the core for server commands. Zero keeps
	// the core's own default.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// CallbackTimeout bounds how long Future.Await waits for a native
	// completion. Zero waits for the context only and is accepted only with
	// an injected Library: the loaded core may call back without a response
	// block, and such a request is released by this timeout alone.
	// Default: 2m
	CallbackTimeout time.Duration `yaml:"callback_timeout"`

	// PollInterval is the period of every subscription pump.
	// Default: 1s
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxDrainPerCycle caps the events a pump pulls per tick; zero drains
	// until the native queue is empty.
	// Default: 100
	MaxDrainPerCycle int `yaml:"max_drain_per_cycle"`

	// AnalyticsKey enables anonymous usage events. Empty disables them.
	AnalyticsKey      string `yaml:"analytics_key"`
	AnalyticsEndpoint string `yaml:"analytics_endpoint"`

	// Logger receives the SDK's structured logs. Default: zap.NewNop()
	Logger *zap.Logger `yaml:"-"`

	// Library replaces the loaded core. The client does not close it.
	Library native.Library `yaml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AgentName:        "go",
		AgentVersion:     Version,
		CallbackTimeout:  2 * time.Minute,
		PollInterval:     time.Second,
		MaxDrainPerCycle: 100,
		Logger:           zap.NewNop(),
	}
}

// ConfigFromEnv returns DefaultConfig with environment overrides applied.
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML file over DefaultConfig, then applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvURL); v != "" && c.URL == "" {
		c.URL = v
	}
	if v := os.Getenv(EnvLibraryPath); v != "" {
		c.LibraryPath = v
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return invalid("config", EnvPollInterval, err.Error())
		}
		c.PollInterval = d
	}
	if v := os.Getenv(EnvDisableAnalytics); v != "" {
		if off, _ := strconv.ParseBool(v); off {
			c.AnalyticsKey = ""
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return invalid("config", "poll_interval", "must be positive")
	case c.CallbackTimeout < 0:
		return invalid("config", "callback_timeout", "must not be negative")
	case c.DefaultTimeout < 0:
		return invalid("config", "default_timeout", "must not be negative")
	case c.MaxDrainPerCycle < 0:
		return invalid("config", "max_drain_per_cycle", "must not be negative")
	}
	return nil
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// seconds converts d to the whole-second int32 the core expects; -1 selects
// the core default.
func seconds(d time.Duration) int32 {
	if d <= 0 {
		return -1
	}
	s := int32(d / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
