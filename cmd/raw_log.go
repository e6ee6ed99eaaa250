// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/spf13/cobra"
)

var rawLogRecordPath string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display frames as they arrive.

Every frame on the bus is shown, requests from the controller as well as
replies and acknowledgments from the drive board, with timestamp, command
kind and decoded parameter (incline in degrees).

Use --record to also write a capture file for the replay command.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecordPath, "record", "", "Write a capture file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	c, err := codec()
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var capture *ergolink.CaptureWriter
	if rawLogRecordPath != "" {
		f, err := os.Create(rawLogRecordPath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		capture = ergolink.NewCaptureWriter(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("ubike - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	reader := ergolink.NewLineReader(conn)
	for {
		line, err := reader.ReadLine(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ergolink.ErrReadTimeout):
			continue
		case errors.Is(err, ergolink.ErrLineTooLong):
			fmt.Printf("[ERROR] %v\n", err)
			continue
		default:
			return err
		}

		if capture != nil {
			if err := capture.Record(ergolink.DirectionRX, line); err != nil {
				log.Warnf("Capture write failed: %v", err)
			}
		}

		packet, err := c.Decode(line)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		fmt.Print(ergolink.FormatPacket(packet))
	}
}
