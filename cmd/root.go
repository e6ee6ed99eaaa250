// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/nategreco/uBike/internal/config"
	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	// Serial connection flags
	portName    string
	baudRate    int
	readTimeout time.Duration
	emulate8N1  bool

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// General flags
	configPath   string
	logLevel     string
	logFormat    string
	checksumMode string
)

var (
	cfg = config.Default()
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "ubike",
	Short: "Ergometer serial protocol toolkit",
	Long: `ubike - A CLI tool for the ASCII serial protocol between a bike controller
and the ergometer drive board.

Provides a drive board simulator, a bike controller, and commands for raw
frame logging, error detection and capture replay.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 38400]
  WebSocket: --url ws://host/path [--username user]

The serial line runs 7 data bits, no parity, 2 stop bits. Use --emulate-8n1
on adapters that only support 8 data bits.

For WebSocket authentication, the password is read from the UBIKE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings may also come from a YAML file (--config). Flags given on the command
line take precedence.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringVarP(&portName, "port", "p", "", "Serial port device")
	flags.IntVarP(&baudRate, "baud", "b", 38400, "Baud rate (serial only)")
	flags.DurationVar(&readTimeout, "read-timeout", 100*time.Millisecond, "Transport read timeout")
	flags.BoolVar(&emulate8N1, "emulate-8n1", false, "Emulate 7N2 framing on an 8N1 UART")

	// WebSocket connection flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// General flags
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	flags.StringVar(&checksumMode, "checksum", "modulo", "Checksum mode (modulo or legacy; legacy keeps modulo for the CONFIG 2 frames)")
}

// loadSettings merges the config file and explicitly set flags, then
// configures the logger
func loadSettings(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("read-timeout") {
		cfg.Serial.ReadTimeout = readTimeout
	}
	if flags.Changed("emulate-8n1") {
		cfg.Serial.Emulate8N1 = emulate8N1
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("checksum") {
		cfg.Protocol.ChecksumMode = checksumMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return setupLogger(cfg.Log)
}

// setupLogger configures the shared logger
func setupLogger(lc config.LogConfig) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if lc.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// codec returns the frame codec for the configured checksum mode
func codec() (ergolink.Codec, error) {
	mode, err := ergolink.ParseChecksumMode(cfg.Protocol.ChecksumMode)
	if err != nil {
		return ergolink.Codec{}, err
	}
	return ergolink.Codec{Mode: mode}, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
