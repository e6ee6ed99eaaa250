// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Encode frames a command with the default codec
func Encode(cmd Command) ([]byte, error) {
	return DefaultCodec.Encode(cmd)
}

// MustEncode frames a command with the default codec.
// Panics on encoding error (use Encode for error handling).
func MustEncode(cmd Command) []byte {
	line, err := Encode(cmd)
	if err != nil {
		panic(fmt.Sprintf("ergolink: encode error: %v", err))
	}
	return line
}

// Encode serializes the command payload and frames it
func (c Codec) Encode(cmd Command) ([]byte, error) {
	payload, err := cmd.Bytes()
	if err != nil {
		return nil, err
	}
	return c.EncodePayload(payload)
}

// EncodePayload frames a binary payload: start character, payload as
// uppercase hex, checksum and terminator.
func (c Codec) EncodePayload(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	sum := c.Mode.ChecksumText(payload)
	if len(sum) != 2 {
		return nil, fmt.Errorf("%w: %q for payload %X", ErrLegacyChecksumRange, sum, payload)
	}

	var b strings.Builder
	b.Grow(1 + len(payload)*2 + 2 + len(Terminator))
	b.WriteByte(StartChar)
	b.WriteString(strings.ToUpper(hex.EncodeToString(payload)))
	b.WriteString(sum)
	b.WriteString(Terminator)
	return []byte(b.String()), nil
}
