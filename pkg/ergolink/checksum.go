// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Checksum computes the two's complement checksum of the payload bytes.
// The byte sum of payload plus checksum is 0 modulo 0x100.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return -sum
}

// legacyFixedFrames are sent verbatim by the bench script with their modulo
// checksum, since the legacy formula yields a single digit for them.
var legacyFixedFrames = [][]byte{
	{NodeResistance, FuncWriteHolding, 0x00, 0x08, 0x00, 0xBE}, // CONFIG 2
	{NodeResistance, FuncWriteHolding, 0x01, 0x08, 0x00, 0xBE}, // CONFIG_ACK 2
}

// ChecksumText returns the checksum characters transmitted for payload in the
// given mode.
func (m ChecksumMode) ChecksumText(payload []byte) string {
	if m == ChecksumLegacy && !isLegacyFixedFrame(payload) {
		return legacyChecksumText(payload)
	}
	return fmt.Sprintf("%02X", Checksum(payload))
}

func isLegacyFixedFrame(payload []byte) bool {
	for _, f := range legacyFixedFrames {
		if bytes.Equal(payload, f) {
			return true
		}
	}
	return false
}

// legacyChecksumText subtracts 0x100 from the byte sum once and keeps the hex
// text after its first three characters ("-0x" or "0x" plus one digit).
func legacyChecksumText(payload []byte) string {
	sum := 0
	for _, b := range payload {
		sum += int(b)
	}
	sum -= 0x100

	var text string
	if sum < 0 {
		text = "-0x" + strconv.FormatInt(int64(-sum), 16)
	} else {
		text = "0x" + strconv.FormatInt(int64(sum), 16)
	}
	if len(text) <= 3 {
		return ""
	}
	return strings.ToUpper(text[3:])
}

// ParseChecksumMode parses a configuration value into a ChecksumMode
func ParseChecksumMode(s string) (ChecksumMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "modulo":
		return ChecksumModulo, nil
	case "legacy":
		return ChecksumLegacy, nil
	default:
		return ChecksumModulo, fmt.Errorf("unknown checksum mode %q (use modulo or legacy)", s)
	}
}
