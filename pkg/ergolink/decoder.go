// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Codec frames and unframes payloads with a given checksum mode
type Codec struct {
	Mode ChecksumMode
}

// DefaultCodec uses the modulo checksum spoken by the controller firmware
var DefaultCodec = Codec{Mode: ChecksumModulo}

// Decode validates a framed line with the default codec
func Decode(line []byte) (*Packet, error) {
	return DefaultCodec.Decode(line)
}

// Decode validates the envelope of one line and returns its packet.
// The line must include the CR LF terminator.
func (c Codec) Decode(line []byte) (*Packet, error) {
	if len(line) == 0 || line[0] != StartChar {
		var got []byte
		if len(line) > 0 {
			got = line[:1]
		}
		return nil, fmt.Errorf("%w: %q", ErrBadStart, got)
	}
	if !bytes.HasSuffix(line, []byte(Terminator)) {
		return nil, fmt.Errorf("%w: %q", ErrBadTerminator, line[max(len(line)-2, 0):])
	}
	if len(line) > MaxLineSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrLineTooLong, len(line), MaxLineSize)
	}

	body := line[1 : len(line)-len(Terminator)]
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: missing checksum", ErrInvalidHex)
	}
	hexPayload, hexSum := body[:len(body)-2], body[len(body)-2:]

	payload := make([]byte, hex.DecodedLen(len(hexPayload)))
	if _, err := hex.Decode(payload, hexPayload); err != nil {
		return nil, fmt.Errorf("%w: payload %q: %v", ErrInvalidHex, hexPayload, err)
	}
	var sum [1]byte
	if _, err := hex.Decode(sum[:], hexSum); err != nil {
		return nil, fmt.Errorf("%w: checksum %q: %v", ErrInvalidHex, hexSum, err)
	}

	expected := c.Mode.ChecksumText(payload)
	if !strings.EqualFold(expected, string(hexSum)) {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrChecksum, expected, hexSum)
	}

	return &Packet{
		payload:   payload,
		checksum:  sum[0],
		timestamp: time.Now(),
	}, nil
}

// Decoder splits a byte stream into lines and decodes each one
type Decoder struct {
	codec     Codec
	buffer    []byte
	discard   bool // dropping an oversized line until its terminator
	rawBuffer []byte
}

// NewDecoder creates a stream decoder using the default codec
func NewDecoder() *Decoder {
	return DefaultCodec.NewDecoder()
}

// NewDecoder creates a stream decoder using this codec
func (c Codec) NewDecoder() *Decoder {
	return &Decoder{
		codec:     c,
		buffer:    make([]byte, 0, MaxLineSize),
		rawBuffer: make([]byte, 0, MaxLineSize),
	}
}

// Reset drops any partial line
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
	d.rawBuffer = d.rawBuffer[:0]
	d.discard = false
}

// GetRawBytes returns the bytes of the last completed or current line
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte.
// Returns a completed packet, or nil if the line is incomplete.
// Returns an error if the completed line is invalid.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	if len(d.buffer) == 0 {
		d.rawBuffer = d.rawBuffer[:0]
	}
	d.rawBuffer = append(d.rawBuffer, b)

	if d.discard {
		if b == '\n' {
			d.Reset()
		}
		return nil, nil
	}

	d.buffer = append(d.buffer, b)
	if b != '\n' {
		if len(d.buffer) > MaxLineSize {
			d.buffer = d.buffer[:0]
			d.discard = true
			return nil, fmt.Errorf("%w: no terminator within %d bytes", ErrLineTooLong, MaxLineSize)
		}
		return nil, nil
	}

	packet, err := d.codec.Decode(d.buffer)
	d.buffer = d.buffer[:0]
	return packet, err
}

// DecodeLine decodes one complete line and classifies its payload
func (c Codec) DecodeLine(line []byte) (*Packet, Command, error) {
	packet, err := c.Decode(line)
	if err != nil {
		return nil, Command{}, err
	}
	return packet, Classify(packet.Payload()), nil
}
