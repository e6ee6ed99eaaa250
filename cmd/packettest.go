// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
frame. It ignores invalid lines and waits for a complete frame with a
matching checksum.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error

Useful for checking wiring, baud rate and 7N2/8N1 settings.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

// packetTestResult is the outcome of waitForPacket
type packetTestResult struct {
	packet       *ergolink.Packet
	invalidLines int
	err          error
}

// waitForPacket reads lines until one decodes, the transport fails or ctx ends
func waitForPacket(ctx context.Context, conn Connection, c ergolink.Codec) packetTestResult {
	reader := ergolink.NewLineReader(conn)
	invalid := 0
	for {
		line, err := reader.ReadLine(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return packetTestResult{invalidLines: invalid, err: ctx.Err()}
		case errors.Is(err, ergolink.ErrReadTimeout):
			continue
		case ergolink.IsFramingError(err):
			invalid++
			continue
		default:
			return packetTestResult{invalidLines: invalid, err: err}
		}

		packet, err := c.Decode(line)
		if err != nil {
			// Ignore decode errors, just count invalid lines
			invalid++
			continue
		}
		return packetTestResult{packet: packet, invalidLines: invalid}
	}
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	c, err := codec()
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("ubike - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	res := waitForPacket(ctx, conn, c)
	switch {
	case res.packet != nil:
		if res.invalidLines > 0 {
			fmt.Printf("(skipped %d invalid lines before sync)\n", res.invalidLines)
		}
		command := ergolink.Classify(res.packet.Payload())
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  Kind: %s\n", command)
		fmt.Printf("  Node: 0x%02X\n", res.packet.Node())
		fmt.Printf("  Length: %d bytes\n", len(res.packet.Payload()))
		fmt.Printf("  Checksum: 0x%02X\n", res.packet.Checksum())
		conn.Close()
		os.Exit(0)

	case errors.Is(res.err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
		conn.Close()
		os.Exit(1)

	default:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", res.err)
		conn.Close()
		os.Exit(2)
	}

	return nil
}
