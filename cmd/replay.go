// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/nategreco/uBike/pkg/simulator"
	"github.com/spf13/cobra"
)

var (
	replaySimulate bool
	replayRPM      int
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a capture file recorded by raw_log or simulate",
	Long: `Print every line of a capture file in human-readable format.

Capture files are written with --record by raw_log and simulate. Each line is
shown with its direction (RX/TX), timestamp and decoded command.

With --simulate, the received lines are fed through a freshly started
simulator instead, and the replies it would have sent are shown next to each
request. This reproduces a bench session without any hardware.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replaySimulate, "simulate", false, "Feed received lines through a simulator")
	replayCmd.Flags().IntVar(&replayRPM, "rpm", 80, "Cadence reported by the simulator")
}

func runReplay(cmd *cobra.Command, args []string) error {
	c, err := codec()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()

	var sim *simulator.Simulator
	if replaySimulate {
		rpm := cfg.Simulator.RPM
		if cmd.Flags().Changed("rpm") {
			rpm = replayRPM
		}
		sim = simulator.New(rpm, simulator.WithLogger(log))
	}

	stats, err := replayCapture(f, os.Stdout, c, sim)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(stats.String())
	return nil
}

// replayCapture prints every record of a capture. With a simulator, only
// received lines are used and each is answered by sim.
func replayCapture(r io.Reader, w io.Writer, c ergolink.Codec, sim *simulator.Simulator) (*ergolink.Statistics, error) {
	reader := ergolink.NewCaptureReader(r)
	stats := ergolink.NewStatistics()

	var replies bytes.Buffer
	var dispatcher *ergolink.Dispatcher
	if sim != nil {
		dispatcher = ergolink.NewDispatcher(&replies, sim,
			ergolink.WithCodec(c),
			ergolink.WithLogger(log),
			ergolink.WithStatistics(stats),
		)
	}

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		timestamp := rec.Timestamp().Format("15:04:05.000")

		if dispatcher == nil {
			printCaptureLine(w, c, timestamp, rec.Direction, rec.Line, stats)
			continue
		}
		if rec.Direction != ergolink.DirectionRX {
			continue
		}

		fmt.Fprintf(w, "[%s] %s %q\n", timestamp, rec.Direction, rec.Line)
		replies.Reset()
		command, err := dispatcher.ProcessLine(rec.Line)
		switch {
		case err != nil:
			fmt.Fprintf(w, "  [ERROR] %v\n", err)
		case replies.Len() == 0:
			fmt.Fprintf(w, "  %s (no reply)\n", command)
		default:
			fmt.Fprintf(w, "  %s -> %s\n", command, describeReply(c, replies.Bytes()))
		}
	}
}

// describeReply decodes a reply written by the simulator
func describeReply(c ergolink.Codec, line []byte) string {
	_, reply, err := c.DecodeLine(line)
	if err != nil {
		return fmt.Sprintf("[ERROR] %v %q", err, line)
	}
	return fmt.Sprintf("%s %q", reply, line)
}

// printCaptureLine prints one recorded line with its decoded command
func printCaptureLine(w io.Writer, c ergolink.Codec, timestamp string, dir ergolink.Direction, line []byte, stats *ergolink.Statistics) {
	_, command, err := c.DecodeLine(line)
	if err != nil {
		stats.RecordError(err)
		fmt.Fprintf(w, "[%s] %s [ERROR] %v %q\n", timestamp, dir, err, line)
		return
	}
	if dir == ergolink.DirectionTX {
		stats.RecordSent()
	}
	stats.RecordCommand(command, ergolink.ValidateCommand(command))
	fmt.Fprintf(w, "[%s] %s %s\n", timestamp, dir, ergolink.FormatKind(command.Kind))
	fmt.Fprint(w, ergolink.FormatCommandDetails(command))
}
