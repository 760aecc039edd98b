// Package config loads and validates the agent configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors.
var (
	// ErrNoDeviceAddr indicates a missing device address.
	ErrNoDeviceAddr = errors.New("device address is required")

	// ErrNoCredential indicates a missing token with dynamic refresh
	// disabled.
	ErrNoCredential = errors.New("token is required unless dynamic credential mode is enabled")
)

// Defaults applied by ApplyDefaults.
const (
	DefaultMaxAttempts      = 5
	DefaultInitialBackoff   = time.Second
	DefaultMaxBackoff       = 30 * time.Second
	DefaultRefreshInterval  = 5 * time.Minute
	DefaultOperationTimeout = 5 * time.Second
	DefaultGraceDelay       = 500 * time.Millisecond
)

// Duration wraps time.Duration for YAML. It accepts Go duration strings
// ("30s", "1m30s") and bare integers interpreted as milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the agent configuration surface. Zero values are filled by
// ApplyDefaults; Validate rejects unusable combinations.
type Config struct {
	// DeviceAddr is the device's network address.
	DeviceAddr string `yaml:"device_addr"`

	// Token is the fixed operator-supplied credential. Optional when
	// DynamicCredential is set.
	Token string `yaml:"token"`

	// DynamicCredential enables out-of-band credential retrieval and
	// periodic refresh.
	DynamicCredential bool `yaml:"dynamic_credential"`

	// MaxAttempts bounds one login attempt sequence.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff is the delay before the second login attempt.
	InitialBackoff Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the doubling retry delay.
	MaxBackoff Duration `yaml:"max_backoff"`

	// RefreshInterval is the periodic credential refresh cadence.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// OperationTimeout is the per-operation caller deadline.
	OperationTimeout Duration `yaml:"operation_timeout"`

	// ForceRestart requests a host restart on terminal failures even on a
	// shared host.
	ForceRestart bool `yaml:"force_restart"`

	// Isolated overrides isolated-instance detection when set.
	Isolated *bool `yaml:"isolated"`

	// GraceDelay is how long a scheduled exit waits before terminating.
	GraceDelay Duration `yaml:"grace_delay"`

	// LogLevel is the operational log level ("debug", "info", "warn",
	// "error").
	LogLevel string `yaml:"log_level"`

	// EventLogFile, when set, appends CBOR session events to this path.
	EventLogFile string `yaml:"event_log_file"`
}

// Load reads and parses a YAML configuration file, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = Duration(DefaultInitialBackoff)
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = Duration(DefaultMaxBackoff)
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = Duration(DefaultRefreshInterval)
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = Duration(DefaultOperationTimeout)
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = Duration(DefaultGraceDelay)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for unusable combinations.
func (c *Config) Validate() error {
	if c.DeviceAddr == "" {
		return ErrNoDeviceAddr
	}
	if c.Token == "" && !c.DynamicCredential {
		return ErrNoCredential
	}
	if c.InitialBackoff > c.MaxBackoff {
		return fmt.Errorf("initial backoff %v exceeds cap %v",
			c.InitialBackoff.Std(), c.MaxBackoff.Std())
	}
	return nil
}
