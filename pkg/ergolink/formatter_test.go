// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"strings"
	"testing"
)

func TestFormatKind_AllNamed(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range AllCommands(0) {
		name := FormatKind(c.Kind)
		if name == "UNKNOWN" {
			t.Errorf("kind %d has no name", c.Kind)
		}
		seen[name] = true
	}
	if len(seen) != 10 {
		t.Errorf("got %d distinct names, want 10", len(seen))
	}
	if FormatKind(Kind(99)) != "UNKNOWN" {
		t.Error("out of range kind should format as UNKNOWN")
	}
}

func TestFormatCommandDetails(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{NewReadRPM(), "no parameter"},
		{NewReplyRPM(75), "Actual RPM: 75"},
		{NewSetResistance(58), "Set resistance: 58"},
		{NewSetIncline(30), "Set incline: 5.0° (raw=30)"},
		{NewReplyIncline(10), "Actual incline: -5.0° (raw=10)"},
		{NewConfig(4), "Configure cmd 4"},
		{NewConfigAck(4), "Configure ack 4"},
		{Command{Kind: KindUnknown, Payload: []byte{0x71, 0x03}}, "Payload: 71 03"},
	}
	for _, tt := range tests {
		if got := FormatCommandDetails(tt.cmd); !strings.Contains(got, tt.want) {
			t.Errorf("FormatCommandDetails(%s) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestFormatPacket(t *testing.T) {
	p, err := Decode([]byte(":41030201020014A3\r\n"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	out := FormatPacket(p)
	for _, want := range []string{"REPLY_INCLINE", "node=0x41", "func=0x03", "sum=0xA3", "Actual incline: 0.0°"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatPacket missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		cmd  Command
		want []AnomalyType
	}{
		{NewSetIncline(60), nil},
		{NewReplyIncline(61), []AnomalyType{AnomalyInclineRange}},
		{NewSetResistance(15), nil},
		{NewSetResistance(14), []AnomalyType{AnomalyResistanceRange}},
		{NewAckResistance(191), []AnomalyType{AnomalyResistanceRange}},
		{NewReplyRPM(250), nil},
		{NewReplyRPM(251), []AnomalyType{AnomalyHighRPM}},
		{NewConfig(1), nil},
	}
	for _, tt := range tests {
		got := ValidateCommand(tt.cmd)
		if len(got) != len(tt.want) {
			t.Errorf("ValidateCommand(%s) = %v, want %v", tt.cmd, got, tt.want)
			continue
		}
		for i := range got {
			if got[i].Type != tt.want[i] {
				t.Errorf("ValidateCommand(%s)[%d] = %d, want %d", tt.cmd, i, got[i].Type, tt.want[i])
			}
			if got[i].Error() == "" {
				t.Error("validation error without message")
			}
		}
	}
}

func TestSevenBitConversion(t *testing.T) {
	line := MustEncode(NewReadIncline())
	wire := append([]byte(nil), line...)

	To8N1(wire)
	for i, b := range wire {
		if b&0x80 == 0 {
			t.Fatalf("byte %d = 0x%02X, bit 7 not set", i, b)
		}
	}

	From8N1(wire)
	if string(wire) != string(line) {
		t.Errorf("From8N1(To8N1(x)) = %q, want %q", wire, line)
	}
}
