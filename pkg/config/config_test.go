package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device_addr: "192.168.1.40:8443"
token: "abc123"
max_attempts: 3
initial_backoff: 500ms
max_backoff: 10s
operation_timeout: 2s
force_restart: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.40:8443", cfg.DeviceAddr)
	assert.Equal(t, "abc123", cfg.Token)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialBackoff.Std())
	assert.Equal(t, 10*time.Second, cfg.MaxBackoff.Std())
	assert.Equal(t, 2*time.Second, cfg.OperationTimeout.Std())
	assert.True(t, cfg.ForceRestart)

	// Unset fields got defaults.
	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval.Std())
	assert.Equal(t, DefaultGraceDelay, cfg.GraceDelay.Std())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.Isolated)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "device_addr: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDuration_IntegerMilliseconds(t *testing.T) {
	path := writeConfig(t, `
device_addr: "dev:1"
token: "t"
initial_backoff: 1500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.InitialBackoff.Std())
}

func TestDuration_Invalid(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte("initial_backoff: fast"), &cfg)
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultInitialBackoff, cfg.InitialBackoff.Std())
	assert.Equal(t, DefaultMaxBackoff, cfg.MaxBackoff.Std())
	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval.Std())
	assert.Equal(t, DefaultOperationTimeout, cfg.OperationTimeout.Std())
	assert.Equal(t, DefaultGraceDelay, cfg.GraceDelay.Std())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Config{DeviceAddr: "dev:1", Token: "t"}
		cfg.ApplyDefaults()
		return cfg
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.DeviceAddr = ""
	assert.ErrorIs(t, cfg.Validate(), ErrNoDeviceAddr)

	cfg = base()
	cfg.Token = ""
	assert.ErrorIs(t, cfg.Validate(), ErrNoCredential)

	cfg = base()
	cfg.Token = ""
	cfg.DynamicCredential = true
	assert.NoError(t, cfg.Validate(), "dynamic mode needs no fixed token")

	cfg = base()
	cfg.InitialBackoff = Duration(time.Minute)
	cfg.MaxBackoff = Duration(time.Second)
	assert.Error(t, cfg.Validate())
}

func TestIsolatedOverrideParsed(t *testing.T) {
	path := writeConfig(t, `
device_addr: "dev:1"
token: "t"
isolated: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Isolated)
	assert.True(t, *cfg.Isolated)
}
