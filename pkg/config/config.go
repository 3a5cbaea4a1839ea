// Package config loads the scanner configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionConfig selects and parameterizes the adapter link.
type ConnectionConfig struct {
	Kind      string `yaml:"kind" json:"kind"` // serial, bluetooth, tcp
	Address   string `yaml:"address" json:"address"`
	Port      int    `yaml:"port" json:"port"`
	BaudRate  int    `yaml:"baud_rate" json:"baudRate"`
	TimeoutMs int    `yaml:"timeout_ms" json:"timeoutMs"`
}

// SessionConfig tunes the diagnostic session.
type SessionConfig struct {
	DeepScan           bool   `yaml:"deep_scan" json:"deepScan"`
	TestActuators      bool   `yaml:"test_actuators" json:"testActuators"`
	PerformAdaptations bool   `yaml:"perform_adaptations" json:"performAdaptations"`
	CommandWaitMs      int    `yaml:"command_wait_ms" json:"commandWaitMs"`
	CSVLog             string `yaml:"csv_log" json:"csvLog"`
	TraceLog           string `yaml:"trace_log" json:"traceLog"`
}

// VehicleConfig picks a built-in model or declares an explicit ECU
// list.
type VehicleConfig struct {
	Model string `yaml:"model" json:"model"`
	ECUs  []struct {
		Name string `yaml:"name" json:"name"`
		Addr byte   `yaml:"addr" json:"addr"`
	} `yaml:"ecus" json:"ecus"`
}

type Config struct {
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Session    SessionConfig    `yaml:"session" json:"session"`
	Vehicle    VehicleConfig    `yaml:"vehicle" json:"vehicle"`
}

// Default returns a config that talks to a serial adapter on the given
// port with the usual ELM327 settings.
func Default() Config {
	return Config{
		Connection: ConnectionConfig{
			Kind:      "serial",
			BaudRate:  38400,
			Port:      35000,
			TimeoutMs: 5000,
		},
		Session: SessionConfig{
			CommandWaitMs: 2000,
		},
		Vehicle: VehicleConfig{Model: "generic"},
	}
}

// Load reads path and fills unset fields with defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Connection.Kind == "" {
		c.Connection.Kind = "serial"
	}
	if c.Connection.BaudRate == 0 {
		c.Connection.BaudRate = 38400
	}
	if c.Connection.Port == 0 {
		c.Connection.Port = 35000
	}
	if c.Connection.TimeoutMs == 0 {
		c.Connection.TimeoutMs = 5000
	}
	if c.Session.CommandWaitMs == 0 {
		c.Session.CommandWaitMs = 2000
	}
	if c.Vehicle.Model == "" && len(c.Vehicle.ECUs) == 0 {
		c.Vehicle.Model = "generic"
	}
}

var validBauds = map[int]bool{9600: true, 19200: true, 38400: true, 57600: true, 115200: true}

func (c *Config) validate() error {
	switch c.Connection.Kind {
	case "serial":
		if !validBauds[c.Connection.BaudRate] {
			return fmt.Errorf("unsupported baud rate %d", c.Connection.BaudRate)
		}
	case "bluetooth", "tcp":
	default:
		return fmt.Errorf("unknown connection kind %q", c.Connection.Kind)
	}
	return nil
}

// Timeout returns the connection timeout as a duration.
func (c ConnectionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CommandWait returns the per-command wait as a duration.
func (c SessionConfig) CommandWait() time.Duration {
	return time.Duration(c.CommandWaitMs) * time.Millisecond
}
