// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// mustHex decodes a hex string or panics
func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// frame wraps hex payload and checksum text into a wire line
func frame(payload, sum string) []byte {
	return []byte(":" + payload + sum + "\r\n")
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_BenchVectors(t *testing.T) {
	// Frames captured from the bike with their transmitted checksum
	tests := []struct {
		payload  string
		expected byte
	}{
		{"510300020000", 0xAA},
		{"410300020000", 0xBA},
		{"61060007000F", 0x83},
		{"6106000800BE", 0xD3},
		{"410600060000", 0xB3},
		{"41060007003C", 0x76},
		{"410600090014", 0x9C},
		{"41060008003C", 0x75},
		{"6106010800BE", 0xD2},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got := Checksum(mustHex(tt.payload))
			if got != tt.expected {
				t.Errorf("Checksum(%s) = 0x%02X, want 0x%02X", tt.payload, got, tt.expected)
			}
		})
	}
}

func TestChecksum_SumsToZero(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0x41, 0x06, 0x00, 0x01, 0x00, 0x3C},
		{0x80, 0x80},
	}
	for _, p := range payloads {
		var sum byte
		for _, b := range p {
			sum += b
		}
		if sum+Checksum(p) != 0 {
			t.Errorf("payload %X: sum 0x%02X + checksum 0x%02X != 0 mod 0x100", p, sum, Checksum(p))
		}
	}
}

func TestChecksumText_Modulo(t *testing.T) {
	if got := ChecksumModulo.ChecksumText(mustHex("510300020000")); got != "AA" {
		t.Errorf("ChecksumText = %q, want AA", got)
	}
	// Zero residue still has two digits
	if got := ChecksumModulo.ChecksumText([]byte{0x80, 0x80}); got != "00" {
		t.Errorf("ChecksumText = %q, want 00", got)
	}
}

func TestChecksumText_Legacy(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected string
	}{
		{"small sum agrees with modulo", "510300020000", "AA"},
		{"config 1 agrees with modulo", "61060007000F", "83"},
		{"sum above 0x100 degenerates", "6106010800BE", "E"},
		{"empty payload", "", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := legacyChecksumText(mustHex(tt.payload))
			if got != tt.expected {
				t.Errorf("legacy ChecksumText(%s) = %q, want %q", tt.payload, got, tt.expected)
			}
		})
	}
}

func TestChecksumText_LegacyFixedFrames(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected string
	}{
		{"config 2", "6106000800BE", "D3"},
		{"config ack 2", "6106010800BE", "D2"},
		{"other degenerate sum", "4106010100A8", "F"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChecksumLegacy.ChecksumText(mustHex(tt.payload))
			if got != tt.expected {
				t.Errorf("legacy ChecksumText(%s) = %q, want %q", tt.payload, got, tt.expected)
			}
		})
	}
}

func TestParseChecksumMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ChecksumMode
		wantErr bool
	}{
		{"", ChecksumModulo, false},
		{"modulo", ChecksumModulo, false},
		{"Legacy", ChecksumLegacy, false},
		{"crc", ChecksumModulo, true},
	}
	for _, tt := range tests {
		got, err := ParseChecksumMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseChecksumMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseChecksumMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_Valid(t *testing.T) {
	p, err := Decode(frame("510300020000", "AA"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if p.Node() != NodeRPM {
		t.Errorf("Node() = 0x%02X, want 0x%02X", p.Node(), NodeRPM)
	}
	if p.Function() != FuncReadHolding {
		t.Errorf("Function() = 0x%02X, want 0x%02X", p.Function(), FuncReadHolding)
	}
	if p.Checksum() != 0xAA {
		t.Errorf("Checksum() = 0x%02X, want 0xAA", p.Checksum())
	}
	if p.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestDecode_ChecksumCaseInsensitive(t *testing.T) {
	if _, err := Decode(frame("6106000800be", "d3")); err != nil {
		t.Errorf("lowercase frame rejected: %v", err)
	}
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name string
		line []byte
		want error
	}{
		{"empty", []byte{}, ErrBadStart},
		{"missing colon", []byte("510300020000AA\r\n"), ErrBadStart},
		{"garbage before colon", []byte("x:510300020000AA\r\n"), ErrBadStart},
		{"missing CR", []byte(":510300020000AA\n"), ErrBadTerminator},
		{"no terminator", []byte(":510300020000AA"), ErrBadTerminator},
		{"wrong checksum", frame("510300020000", "AB"), ErrChecksum},
		{"legacy checksum digit", frame("6106010800BE", "0E"), ErrChecksum},
		{"non hex payload", frame("5103000200ZZ", "AA"), ErrInvalidHex},
		{"odd payload length", frame("51030", "AA"), ErrInvalidHex},
		{"missing checksum", []byte(":A\r\n"), ErrInvalidHex},
		{"oversized", frame(strings.Repeat("00", MaxPayloadSize+1), "00"), ErrLineTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.line)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode error = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Error("rejected line should not produce a packet")
			}
			if !IsFramingError(err) {
				t.Errorf("IsFramingError(%v) = false", err)
			}
		})
	}
}

func TestDecode_LegacyMode(t *testing.T) {
	legacy := Codec{Mode: ChecksumLegacy}

	if _, err := legacy.Decode(frame("510300020000", "AA")); err != nil {
		t.Errorf("legacy codec rejected in-range frame: %v", err)
	}
	// Configuration step 2 travels with its modulo checksum
	if _, err := legacy.Decode(frame("6106010800BE", "D2")); err != nil {
		t.Errorf("legacy codec rejected CONFIG_ACK 2: %v", err)
	}
	if _, err := legacy.Decode(frame("6106010800BE", "0E")); !errors.Is(err, ErrChecksum) {
		t.Errorf("legacy codec error = %v, want ErrChecksum", err)
	}
}

// ============================================================
// Stream Decoder Tests
// ============================================================

func TestDecoder_Stream(t *testing.T) {
	d := NewDecoder()
	input := []byte("noise\r\n:510300020000AA\r\n:410300020000BA\r\n")

	var packets []*Packet
	var errs []error
	for _, b := range input {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}

	if len(errs) != 1 || !errors.Is(errs[0], ErrBadStart) {
		t.Errorf("errors = %v, want one ErrBadStart", errs)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if Classify(packets[1].Payload()).Kind != KindReadIncline {
		t.Errorf("second packet = %s, want READ_INCLINE", FormatKind(Classify(packets[1].Payload()).Kind))
	}
	if string(d.GetRawBytes()) != ":410300020000BA\r\n" {
		t.Errorf("GetRawBytes() = %q", d.GetRawBytes())
	}
}

func TestDecoder_OversizedLineResyncs(t *testing.T) {
	d := NewDecoder()
	input := append([]byte(strings.Repeat("A", MaxLineSize+5)), []byte("\r\n:510300020000AA\r\n")...)

	tooLong := 0
	var got *Packet
	for _, b := range input {
		p, err := d.DecodeByte(b)
		if errors.Is(err, ErrLineTooLong) {
			tooLong++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != nil {
			got = p
		}
	}
	if tooLong != 1 {
		t.Errorf("ErrLineTooLong reported %d times, want 1", tooLong)
	}
	if got == nil {
		t.Fatal("decoder did not resynchronise after oversized line")
	}
}

// ============================================================
// Encode Tests
// ============================================================

func TestEncode_KnownFrames(t *testing.T) {
	tests := []struct {
		cmd      Command
		expected string
	}{
		{NewReadRPM(), ":510300020000AA\r\n"},
		{NewReadIncline(), ":410300020000BA\r\n"},
		{NewReplyRPM(80), ":5103020102005057\r\n"},
		{NewSetResistance(0x3A), ":61060005003A5A\r\n"},
		{NewSetIncline(30), ":41060001001E9A\r\n"},
		{NewAckIncline(20), ":410601010014A3\r\n"},
		{NewConfig(1), ":61060007000F83\r\n"},
		{NewConfig(2), ":6106000800BED3\r\n"},
		{NewConfigAck(2), ":6106010800BED2\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			line, err := Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if string(line) != tt.expected {
				t.Errorf("Encode = %q, want %q", line, tt.expected)
			}
		})
	}
}

func TestEncode_LegacyRange(t *testing.T) {
	legacy := Codec{Mode: ChecksumLegacy}

	line, err := legacy.Encode(NewReadRPM())
	if err != nil {
		t.Fatalf("legacy Encode(READ_RPM) error: %v", err)
	}
	if string(line) != ":510300020000AA\r\n" {
		t.Errorf("legacy Encode = %q", line)
	}

	line, err = legacy.Encode(NewConfigAck(2))
	if err != nil {
		t.Fatalf("legacy Encode(CONFIG_ACK 2) error: %v", err)
	}
	if string(line) != ":6106010800BED2\r\n" {
		t.Errorf("legacy Encode(CONFIG_ACK 2) = %q", line)
	}

	if _, err := legacy.Encode(NewAckIncline(168)); !errors.Is(err, ErrLegacyChecksumRange) {
		t.Errorf("legacy Encode(ACK_INCLINE 168) error = %v, want ErrLegacyChecksumRange", err)
	}
}

func TestEncode_UnknownWithoutPayload(t *testing.T) {
	if _, err := Encode(Command{Kind: KindUnknown}); err == nil {
		t.Error("expected error encoding unknown command without payload")
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	if _, err := DefaultCodec.EncodePayload(make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestMustEncode_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustEncode should panic on invalid command")
		}
	}()
	MustEncode(Command{Kind: KindConfig, Step: 9})
}

// ============================================================
// Round Trip Tests
// ============================================================

func TestRoundTrip_AllCommands(t *testing.T) {
	codecs := []Codec{{Mode: ChecksumModulo}, {Mode: ChecksumLegacy}}
	values := []uint16{0, 1, 10, 30, 0x3A, 0x00FF, 0x1234}

	for _, c := range codecs {
		for _, v := range values {
			for _, cmd := range AllCommands(v) {
				line, err := c.Encode(cmd)
				if c.Mode == ChecksumLegacy && errors.Is(err, ErrLegacyChecksumRange) {
					continue // not representable by the legacy formula
				}
				if err != nil {
					t.Fatalf("%s Encode(%s) error: %v", c.Mode, cmd, err)
				}
				_, got, err := c.DecodeLine(line)
				if err != nil {
					t.Fatalf("%s Decode(%q) error: %v", c.Mode, line, err)
				}
				if !got.Equal(cmd) {
					t.Errorf("%s round trip: got %s, want %s", c.Mode, got, cmd)
				}
			}
		}
	}
}
