package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
connection:
  kind: tcp
  address: 192.168.0.10
  port: 35000
session:
  deep_scan: true
  command_wait_ms: 1500
vehicle:
  model: generic-can
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp", cfg.Connection.Kind)
	assert.Equal(t, "192.168.0.10", cfg.Connection.Address)
	assert.True(t, cfg.Session.DeepScan)
	assert.Equal(t, 1500*time.Millisecond, cfg.Session.CommandWait())
	assert.Equal(t, "generic-can", cfg.Vehicle.Model)
	// unset fields fall back to defaults
	assert.Equal(t, 5*time.Second, cfg.Connection.Timeout())
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
connection:
  address: /dev/ttyUSB0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serial", cfg.Connection.Kind)
	assert.Equal(t, 38400, cfg.Connection.BaudRate)
	assert.Equal(t, 2*time.Second, cfg.Session.CommandWait())
	assert.Equal(t, "generic", cfg.Vehicle.Model)
}

func TestLoadRejectsBadBaudRate(t *testing.T) {
	path := writeConfig(t, `
connection:
  kind: serial
  address: /dev/ttyUSB0
  baud_rate: 12345
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	path := writeConfig(t, `
connection:
  kind: carrier-pigeon
  address: somewhere
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
