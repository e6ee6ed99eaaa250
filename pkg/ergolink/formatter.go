// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	cmd := Classify(p.payload)

	result := fmt.Sprintf("[%s] %s node=0x%02X func=0x%02X len=%d sum=0x%02X\n",
		timestamp, FormatKind(cmd.Kind), p.Node(), p.Function(), len(p.payload), p.checksum)
	result += FormatCommandDetails(cmd)
	return result
}

// FormatKind returns the human-readable name for a command kind
func FormatKind(k Kind) string {
	switch k {
	case KindReadRPM:
		return "READ_RPM"
	case KindReplyRPM:
		return "REPLY_RPM"
	case KindSetResistance:
		return "SET_RESISTANCE"
	case KindAckResistance:
		return "ACK_RESISTANCE"
	case KindSetIncline:
		return "SET_INCLINE"
	case KindAckIncline:
		return "ACK_INCLINE"
	case KindReadIncline:
		return "READ_INCLINE"
	case KindReplyIncline:
		return "REPLY_INCLINE"
	case KindConfig:
		return "CONFIG"
	case KindConfigAck:
		return "CONFIG_ACK"
	default:
		return "UNKNOWN"
	}
}

// FormatCommandDetails formats the parameter of a command based on its kind
func FormatCommandDetails(c Command) string {
	switch c.Kind {
	case KindReadRPM, KindReadIncline:
		return "  (no parameter)\n"

	case KindReplyRPM:
		return fmt.Sprintf("  Actual RPM: %d\n", c.Value)

	case KindSetResistance:
		return fmt.Sprintf("  Set resistance: %d\n", c.Value)

	case KindAckResistance:
		return fmt.Sprintf("  Acknowledge resistance: %d\n", c.Value)

	case KindSetIncline:
		return fmt.Sprintf("  Set incline: %s\n", formatIncline(c.Value))

	case KindAckIncline:
		return fmt.Sprintf("  Acknowledge incline: %s\n", formatIncline(c.Value))

	case KindReplyIncline:
		return fmt.Sprintf("  Actual incline: %s\n", formatIncline(c.Value))

	case KindConfig:
		return fmt.Sprintf("  Configure cmd %d\n", c.Step)

	case KindConfigAck:
		return fmt.Sprintf("  Configure ack %d\n", c.Step)
	}

	return "  Payload: " + formatHex(c.Payload) + "\n"
}

// formatIncline shows a raw incline value with its angle
func formatIncline(raw uint16) string {
	return fmt.Sprintf("%.1f° (raw=%d)", InclineDegrees(raw), raw)
}

// formatHex returns a spaced hex dump, 16 bytes per row
func formatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n           ")
		}
		fmt.Fprintf(&b, "%02X ", v)
	}
	return strings.TrimRight(b.String(), " ")
}
