// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Command is one classified frame payload. Value is only meaningful for kinds
// that carry a parameter, Step only for KindConfig and KindConfigAck, and
// Payload only for KindUnknown.
type Command struct {
	Kind    Kind
	Value   uint16
	Step    int
	Payload []byte
}

// tableEntry describes the fixed binary code of one command. Entries with
// param set are followed by a big-endian 16 bit parameter.
type tableEntry struct {
	kind  Kind
	step  int
	code  []byte
	param bool
}

// commandTable lists every known command. Requests come before their replies
// and acknowledgments. Matching compares the full payload length, so no entry
// can shadow another.
var commandTable = []tableEntry{
	{kind: KindReadRPM, code: []byte{NodeRPM, FuncReadHolding, 0x00, 0x02, 0x00, 0x00}},
	{kind: KindReplyRPM, code: []byte{NodeRPM, FuncReadHolding, 0x02, 0x01, 0x02}, param: true},
	{kind: KindSetResistance, code: []byte{NodeResistance, FuncWriteHolding, 0x00, 0x05}, param: true},
	{kind: KindAckResistance, code: []byte{NodeResistance, FuncWriteHolding, 0x01, 0x05}, param: true},
	{kind: KindSetIncline, code: []byte{NodeIncline, FuncWriteHolding, 0x00, 0x01}, param: true},
	{kind: KindAckIncline, code: []byte{NodeIncline, FuncWriteHolding, 0x01, 0x01}, param: true},
	{kind: KindReadIncline, code: []byte{NodeIncline, FuncReadHolding, 0x00, 0x02, 0x00, 0x00}},
	{kind: KindReplyIncline, code: []byte{NodeIncline, FuncReadHolding, 0x02, 0x01, 0x02}, param: true},

	// Configuration handshake sent by the controller after power up
	{kind: KindConfig, step: 1, code: []byte{NodeResistance, FuncWriteHolding, 0x00, 0x07, 0x00, 0x0F}},
	{kind: KindConfig, step: 2, code: []byte{NodeResistance, FuncWriteHolding, 0x00, 0x08, 0x00, 0xBE}},
	{kind: KindConfig, step: 3, code: []byte{NodeIncline, FuncWriteHolding, 0x00, 0x06, 0x00, 0x00}},
	{kind: KindConfig, step: 4, code: []byte{NodeIncline, FuncWriteHolding, 0x00, 0x07, 0x00, 0x3C}},
	{kind: KindConfig, step: 5, code: []byte{NodeIncline, FuncWriteHolding, 0x00, 0x09, 0x00, 0x14}},
	{kind: KindConfig, step: 6, code: []byte{NodeIncline, FuncWriteHolding, 0x00, 0x08, 0x00, 0x3C}},
	{kind: KindConfigAck, step: 1, code: []byte{NodeResistance, FuncWriteHolding, 0x01, 0x07, 0x00, 0x0F}},
	{kind: KindConfigAck, step: 2, code: []byte{NodeResistance, FuncWriteHolding, 0x01, 0x08, 0x00, 0xBE}},
	{kind: KindConfigAck, step: 3, code: []byte{NodeIncline, FuncWriteHolding, 0x01, 0x06, 0x00, 0x00}},
	{kind: KindConfigAck, step: 4, code: []byte{NodeIncline, FuncWriteHolding, 0x01, 0x07, 0x00, 0x3C}},
	{kind: KindConfigAck, step: 5, code: []byte{NodeIncline, FuncWriteHolding, 0x01, 0x09, 0x00, 0x14}},
	{kind: KindConfigAck, step: 6, code: []byte{NodeIncline, FuncWriteHolding, 0x01, 0x08, 0x00, 0x3C}},
}

// Classify matches a decoded payload against the command table. Payloads
// matching no entry are returned as KindUnknown with a copy of the payload.
func Classify(payload []byte) Command {
	for _, e := range commandTable {
		if e.param {
			if len(payload) != len(e.code)+2 || !bytes.HasPrefix(payload, e.code) {
				continue
			}
			return Command{
				Kind:  e.kind,
				Step:  e.step,
				Value: binary.BigEndian.Uint16(payload[len(e.code):]),
			}
		}
		if bytes.Equal(payload, e.code) {
			return Command{Kind: e.kind, Step: e.step}
		}
	}
	return Command{Kind: KindUnknown, Payload: append([]byte(nil), payload...)}
}

// lookup returns the table entry for a command
func lookup(kind Kind, step int) (tableEntry, bool) {
	for _, e := range commandTable {
		if e.kind != kind {
			continue
		}
		if (kind == KindConfig || kind == KindConfigAck) && e.step != step {
			continue
		}
		return e, true
	}
	return tableEntry{}, false
}

// Bytes returns the binary payload of the command
func (c Command) Bytes() ([]byte, error) {
	if c.Kind == KindUnknown {
		if len(c.Payload) == 0 {
			return nil, fmt.Errorf("unknown command has no payload")
		}
		return append([]byte(nil), c.Payload...), nil
	}
	e, ok := lookup(c.Kind, c.Step)
	if !ok {
		return nil, fmt.Errorf("no table entry for %s step %d", FormatKind(c.Kind), c.Step)
	}
	payload := make([]byte, len(e.code), len(e.code)+2)
	copy(payload, e.code)
	if e.param {
		payload = binary.BigEndian.AppendUint16(payload, c.Value)
	}
	return payload, nil
}

// HasParam reports whether the command kind carries a 16 bit parameter
func (c Command) HasParam() bool {
	switch c.Kind {
	case KindReplyRPM, KindSetResistance, KindAckResistance,
		KindSetIncline, KindAckIncline, KindReplyIncline:
		return true
	}
	return false
}

// IsRequest reports whether the command is sent by the controller
func (c Command) IsRequest() bool {
	switch c.Kind {
	case KindReadRPM, KindSetResistance, KindSetIncline, KindReadIncline, KindConfig:
		return true
	}
	return false
}

// Equal reports whether two commands are identical
func (c Command) Equal(o Command) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch {
	case c.Kind == KindUnknown:
		return bytes.Equal(c.Payload, o.Payload)
	case c.Kind == KindConfig || c.Kind == KindConfigAck:
		return c.Step == o.Step
	case c.HasParam():
		return c.Value == o.Value
	}
	return true
}

// String returns a short description of the command
func (c Command) String() string {
	switch {
	case c.Kind == KindUnknown:
		return fmt.Sprintf("%s(%X)", FormatKind(c.Kind), c.Payload)
	case c.Kind == KindConfig || c.Kind == KindConfigAck:
		return fmt.Sprintf("%s(%d)", FormatKind(c.Kind), c.Step)
	case c.HasParam():
		return fmt.Sprintf("%s(%d)", FormatKind(c.Kind), c.Value)
	}
	return FormatKind(c.Kind)
}

// Command builders

// NewReadRPM creates a READ_RPM request
func NewReadRPM() Command {
	return Command{Kind: KindReadRPM}
}

// NewReplyRPM creates the RPM reply sent by the drive board
func NewReplyRPM(rpm uint16) Command {
	return Command{Kind: KindReplyRPM, Value: rpm}
}

// NewSetResistance creates a SET_RESISTANCE request for the magnet magnitude
func NewSetResistance(level uint16) Command {
	return Command{Kind: KindSetResistance, Value: level}
}

// NewAckResistance acknowledges a resistance write
func NewAckResistance(level uint16) Command {
	return Command{Kind: KindAckResistance, Value: level}
}

// NewSetIncline creates a SET_INCLINE request with a raw incline value
func NewSetIncline(raw uint16) Command {
	return Command{Kind: KindSetIncline, Value: raw}
}

// NewAckIncline acknowledges an incline write
func NewAckIncline(raw uint16) Command {
	return Command{Kind: KindAckIncline, Value: raw}
}

// NewReadIncline creates a READ_INCLINE request
func NewReadIncline() Command {
	return Command{Kind: KindReadIncline}
}

// NewReplyIncline creates the incline reply carrying the actual raw incline
func NewReplyIncline(raw uint16) Command {
	return Command{Kind: KindReplyIncline, Value: raw}
}

// NewConfig creates configuration handshake command step (1-6)
func NewConfig(step int) Command {
	return Command{Kind: KindConfig, Step: step}
}

// NewConfigAck acknowledges configuration handshake step (1-6)
func NewConfigAck(step int) Command {
	return Command{Kind: KindConfigAck, Step: step}
}

// Ack returns the acknowledgment the drive board sends for a write request.
// The acknowledgment echoes the request with the address high byte set to 1.
func Ack(c Command) (Command, bool) {
	switch c.Kind {
	case KindSetResistance:
		return NewAckResistance(c.Value), true
	case KindSetIncline:
		return NewAckIncline(c.Value), true
	case KindConfig:
		return NewConfigAck(c.Step), true
	}
	return Command{}, false
}

// AllCommands returns one instance of every table entry. Parameterised
// kinds use value.
func AllCommands(value uint16) []Command {
	cmds := make([]Command, 0, len(commandTable))
	for _, e := range commandTable {
		c := Command{Kind: e.kind, Step: e.step}
		if e.param {
			c.Value = value
		}
		cmds = append(cmds, c)
	}
	return cmds
}

// InclineDegrees converts a raw incline value to degrees
func InclineDegrees(raw uint16) float64 {
	return float64(raw)/2 - 10
}

// InclineRaw converts degrees to the nearest raw incline value
func InclineRaw(degrees float64) uint16 {
	raw := (degrees + 10) * 2
	if raw < 0 {
		return 0
	}
	return uint16(raw + 0.5)
}
