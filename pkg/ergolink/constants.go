// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ergolink implements the ASCII-framed serial protocol spoken between
// a bike controller and the ergometer drive board.
//
// A frame is a colon, the payload bytes as uppercase hex, a one byte
// two's complement checksum as hex and CR LF:
//
//	:510300020000AB\r\n
//
// Payloads follow the Modbus ASCII layout (node, function code, register
// address, value) but only the fixed set of commands in the command table is
// understood. This package provides framing, checksum validation, command
// classification, dispatch, formatting, statistics and capture files.
package ergolink

// Protocol framing
const (
	StartChar  = ':'
	Terminator = "\r\n"
)

// Line size limits
const (
	MaxPayloadSize = 16                           // bytes after hex decoding
	MaxLineSize    = 1 + MaxPayloadSize*2 + 2 + 2 // start + payload + checksum + CRLF
)

// Node identifiers on the ergometer bus
const (
	NodeIncline    = 0x41
	NodeRPM        = 0x51
	NodeResistance = 0x61
)

// Modbus function codes used by the bus
const (
	FuncReadHolding  = 0x03
	FuncWriteHolding = 0x06
)

// Incline wire encoding: degrees = raw/2 - 10
const (
	InclineLevelRaw = 20 // 0 degrees
	InclineStartRaw = 10 // simulated actuator position at power up
	InclineMaxRaw   = 60
)

// Resistance magnitude limits applied by the controller
const (
	ResistanceMin     = 15
	ResistanceMax     = 190
	ResistanceInitial = 0x3A
)

// Kind identifies a command in the command table
type Kind int

// Command kinds
const (
	KindUnknown Kind = iota
	KindReadRPM
	KindReplyRPM
	KindSetResistance
	KindAckResistance
	KindSetIncline
	KindAckIncline
	KindReadIncline
	KindReplyIncline
	KindConfig
	KindConfigAck
)

// ConfigSteps is the number of configuration handshake commands
const ConfigSteps = 6

// ChecksumMode selects how the frame checksum is computed
type ChecksumMode int

// Checksum modes
const (
	// ChecksumModulo is the two's complement of the byte sum modulo 0x100.
	ChecksumModulo ChecksumMode = iota
	// ChecksumLegacy reproduces the bench script that subtracts 0x100 once and
	// drops the first three characters of the hex text. It only agrees with
	// ChecksumModulo when the residue is in 0x10..0xFF and the sum is below 0x100.
	ChecksumLegacy
)

// String returns the configuration name of the mode
func (m ChecksumMode) String() string {
	switch m {
	case ChecksumModulo:
		return "modulo"
	case ChecksumLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}
