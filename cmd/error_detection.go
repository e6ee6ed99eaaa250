// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track framing errors, unknown commands and anomalous values with statistics.

This command validates each line and detects:
  - Malformed frames (bad start character, bad terminator, invalid hex)
  - Checksum mismatches and oversized lines
  - Payloads that match no known command
  - Anomalous parameters (incline above 60 raw, resistance outside 15-190,
    RPM above 250)
  - Statistics and trends (packet rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Errors before the first valid frame are counted but not reported, since the
connection may have been opened in the middle of a line.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// lineEvent is one line received after synchronization
type lineEvent struct {
	packet           *ergolink.Packet
	cmd              ergolink.Command
	err              error
	validationErrors []ergolink.ValidationError
}

// scanBus reads lines until ctx ends or the transport fails. Errors before
// the first valid frame are only counted. emit receives a syncMsg once and a
// lineEvent for every line after that.
func scanBus(ctx context.Context, conn Connection, c ergolink.Codec, emit func(tea.Msg)) error {
	reader := ergolink.NewLineReader(conn)
	synchronized := false
	invalidLines := 0

	for {
		line, err := reader.ReadLine(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ergolink.ErrReadTimeout):
			continue
		case errors.Is(err, ergolink.ErrLineTooLong):
			if synchronized {
				emit(lineEvent{err: err})
			} else {
				invalidLines++
			}
			continue
		default:
			return err
		}

		packet, command, err := c.DecodeLine(line)
		if err != nil {
			if synchronized {
				emit(lineEvent{err: err})
			} else {
				invalidLines++
			}
			continue
		}

		if !synchronized {
			// First frame, we're now synchronized
			synchronized = true
			emit(syncMsg{invalidLines: invalidLines})
		}

		emit(lineEvent{
			packet:           packet,
			cmd:              command,
			validationErrors: ergolink.ValidateCommand(command),
		})
	}
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		return runTUIMode(ctx, conn, connInfo, c)
	}
	return runTextMode(ctx, conn, connInfo, c)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> LINE DISCARDED <<<\n\n")
}

// printUnknownCommand prints a frame that matched no command
func printUnknownCommand(packet *ergolink.Packet) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;36mUNKNOWN:\033[0m node=0x%02X func=0x%02X payload=%X\n\n",
		timestamp, packet.Node(), packet.Function(), packet.Payload())
}

// printValidationErrors prints validation errors for a command
func printValidationErrors(packet *ergolink.Packet, command ergolink.Command, errs []ergolink.ValidationError) {
	timestamp := packet.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (node 0x%02X)\n", timestamp, ergolink.FormatKind(command.Kind), packet.Node())
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, err := range errs {
		fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		switch err.Type {
		case ergolink.AnomalyInclineRange:
			if raw, ok := err.Details["raw"].(uint16); ok {
				fmt.Printf("    Incline=%.1f° (raw %d)\n", ergolink.InclineDegrees(raw), raw)
			}

		case ergolink.AnomalyResistanceRange:
			if level, ok := err.Details["level"].(uint16); ok {
				fmt.Printf("    Resistance=%d (valid: %d to %d)\n", level, ergolink.ResistanceMin, ergolink.ResistanceMax)
			}

		case ergolink.AnomalyHighRPM:
			if rpm, ok := err.Details["rpm"].(uint16); ok {
				fmt.Printf("    RPM=%d (max %d)\n", rpm, ergolink.MaxPlausibleRPM)
			}
		}
	}

	fmt.Printf("  >>> PACKET FLAGGED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, conn Connection, connInfo string, c ergolink.Codec) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Create TUI program
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	// Reader goroutine
	scanErr := make(chan error, 1)
	go func() {
		err := scanBus(ctx, conn, c, p.Send)
		scanErr <- err
		if err != nil {
			p.Quit()
		}
	}()

	// Run TUI
	_, err := p.Run()
	cancel()
	if readErr := <-scanErr; readErr != nil {
		return readErr
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, conn Connection, connInfo string, c ergolink.Codec) error {
	fmt.Printf("ubike - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := ergolink.NewStatistics()

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking line reads
	events := make(chan tea.Msg, 16)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- scanBus(ctx, conn, c, func(msg tea.Msg) {
			select {
			case events <- msg:
			case <-ctx.Done():
			}
		})
	}()

	for {
		select {
		case msg := <-events:
			switch ev := msg.(type) {
			case syncMsg:
				if ev.invalidLines > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid lines\n\n", ev.invalidLines)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}

			case lineEvent:
				if ev.err != nil {
					stats.RecordError(ev.err)
					printDecodeError(ev.err)
					continue
				}

				stats.RecordCommand(ev.cmd, ev.validationErrors)

				// Print packet or error based on mode
				switch {
				case len(ev.validationErrors) > 0:
					printValidationErrors(ev.packet, ev.cmd, ev.validationErrors)
				case ev.cmd.Kind == ergolink.KindUnknown:
					printUnknownCommand(ev.packet)
				case showAll:
					fmt.Print(ergolink.FormatPacket(ev.packet))
				}
			}

		case <-statsTicker.C:
			// Print statistics
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-scanErr:
			fmt.Println()
			fmt.Print(stats.String())
			return err
		}
	}
}
