// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the ubike YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Log       LogConfig       `yaml:"log"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Redis     RedisConfig     `yaml:"redis"`
}

// SerialConfig describes the UART to the drive board. Empty Port means no
// serial connection is configured.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	DataBits    int           `yaml:"data_bits"`
	StopBits    int           `yaml:"stop_bits"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Emulate8N1  bool          `yaml:"emulate_8n1"` // 7N2 framing on an 8N1 UART
}

// SimulatorConfig configures the drive board simulator
type SimulatorConfig struct {
	RPM int `yaml:"rpm"`
}

// ProtocolConfig selects protocol variants
type ProtocolConfig struct {
	ChecksumMode string `yaml:"checksum_mode"` // modulo or legacy
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MonitorConfig configures the HTTP status server. Empty Addr disables it.
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig configures the telemetry publisher. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud:        38400,
			DataBits:    7,
			StopBits:    2,
			ReadTimeout: 100 * time.Millisecond,
		},
		Simulator: SimulatorConfig{
			RPM: 80,
		},
		Protocol: ProtocolConfig{
			ChecksumMode: "modulo",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Key:     "ubike",
			Channel: "ubike",
		},
	}
}

// Load reads path on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.DataBits != 7 && c.Serial.DataBits != 8 {
		return fmt.Errorf("serial.data_bits must be 7 or 8, got %d", c.Serial.DataBits)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits must be 1 or 2, got %d", c.Serial.StopBits)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial.read_timeout must be positive, got %s", c.Serial.ReadTimeout)
	}
	if c.Simulator.RPM < 0 || c.Simulator.RPM > 0xFFFF {
		return fmt.Errorf("simulator.rpm out of range: %d", c.Simulator.RPM)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
