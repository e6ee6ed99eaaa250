// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"testing"
)

func TestClassify_KnownVectors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
	}{
		{"read rpm", "510300020000", NewReadRPM()},
		{"reply rpm", "51030201020050", NewReplyRPM(80)},
		{"set resistance", "61060005003A", NewSetResistance(0x3A)},
		{"ack resistance", "61060105003A", NewAckResistance(0x3A)},
		{"set incline", "4106000100" + "1E", NewSetIncline(0x1E)},
		{"ack incline", "41060101001E", NewAckIncline(30)},
		{"read incline", "410300020000", NewReadIncline()},
		{"reply incline", "41030201020014", NewReplyIncline(20)},
		{"set incline max param", "41060001FFFF", Command{Kind: KindSetIncline, Value: 0xFFFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(mustHex(tt.payload))
			if !got.Equal(tt.want) {
				t.Errorf("Classify(%s) = %s, want %s", tt.payload, got, tt.want)
			}
		})
	}
}

func TestClassify_ConfigSteps(t *testing.T) {
	for step := 1; step <= ConfigSteps; step++ {
		cmd := NewConfig(step)
		payload, err := cmd.Bytes()
		if err != nil {
			t.Fatalf("Config %d Bytes error: %v", step, err)
		}

		got := Classify(payload)
		if got.Kind != KindConfig || got.Step != step {
			t.Errorf("Classify(config %d) = %s", step, got)
		}

		ack, ok := Ack(got)
		if !ok {
			t.Fatalf("Ack(config %d) not defined", step)
		}
		if ack.Kind != KindConfigAck || ack.Step != step {
			t.Errorf("Ack(config %d) = %s, want CONFIG_ACK(%d)", step, ack, step)
		}

		// The ack differs from the request only in the address high byte
		ackPayload, _ := ack.Bytes()
		if ackPayload[2] != 0x01 || payload[2] != 0x00 {
			t.Errorf("address high byte: request 0x%02X, ack 0x%02X", payload[2], ackPayload[2])
		}
		for i := range payload {
			if i != 2 && payload[i] != ackPayload[i] {
				t.Errorf("config %d ack byte %d = 0x%02X, want 0x%02X", step, i, ackPayload[i], payload[i])
			}
		}
	}
}

func TestClassify_Unknown(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"read rpm truncated", "5103000200"},
		{"read rpm extended", "51030002000000"},
		{"set incline without param", "41060001"},
		{"unknown node", "710300020000"},
		{"config with other value", "61060007000E"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := mustHex(tt.payload)
			got := Classify(payload)
			if got.Kind != KindUnknown {
				t.Fatalf("Classify(%s) = %s, want UNKNOWN", tt.payload, got)
			}
			if string(got.Payload) != string(payload) {
				t.Errorf("Payload = %X, want %X", got.Payload, payload)
			}
		})
	}
}

func TestClassify_CopiesUnknownPayload(t *testing.T) {
	payload := mustHex("DEAD")
	got := Classify(payload)
	payload[0] = 0x00
	if got.Payload[0] != 0xDE {
		t.Error("Classify should copy the unknown payload")
	}
}

func TestAck(t *testing.T) {
	tests := []struct {
		req  Command
		want Command
		ok   bool
	}{
		{NewSetResistance(100), NewAckResistance(100), true},
		{NewSetIncline(44), NewAckIncline(44), true},
		{NewConfig(6), NewConfigAck(6), true},
		{NewReadRPM(), Command{}, false},
		{NewReadIncline(), Command{}, false},
		{NewAckIncline(44), Command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.req.String(), func(t *testing.T) {
			got, ok := Ack(tt.req)
			if ok != tt.ok {
				t.Fatalf("Ack(%s) ok = %v, want %v", tt.req, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Ack(%s) = %s, want %s", tt.req, got, tt.want)
			}
		})
	}
}

func TestCommand_Bytes(t *testing.T) {
	got, err := NewSetIncline(0x1234).Bytes()
	if err != nil {
		t.Fatalf("Bytes error: %v", err)
	}
	if want := mustHex("410600011234"); string(got) != string(want) {
		t.Errorf("Bytes = %X, want %X", got, want)
	}

	if _, err := NewConfig(0).Bytes(); err == nil {
		t.Error("expected error for config step 0")
	}
	if _, err := NewConfigAck(ConfigSteps + 1).Bytes(); err == nil {
		t.Error("expected error for config ack step 7")
	}
}

func TestCommand_IsRequest(t *testing.T) {
	requests := 0
	for _, c := range AllCommands(1) {
		if c.IsRequest() {
			requests++
			if _, ok := Ack(c); !ok && c.Kind != KindReadRPM && c.Kind != KindReadIncline {
				t.Errorf("write request %s has no ack", c)
			}
		}
	}
	// READ_RPM, SET_RESISTANCE, SET_INCLINE, READ_INCLINE and six CONFIG
	if requests != 4+ConfigSteps {
		t.Errorf("requests = %d, want %d", requests, 4+ConfigSteps)
	}
}

func TestCommand_String(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{NewReadRPM(), "READ_RPM"},
		{NewReplyRPM(60), "REPLY_RPM(60)"},
		{NewConfigAck(3), "CONFIG_ACK(3)"},
		{Command{Kind: KindUnknown, Payload: []byte{0xAB}}, "UNKNOWN(AB)"},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestInclineConversion(t *testing.T) {
	tests := []struct {
		raw     uint16
		degrees float64
	}{
		{0, -10},
		{10, -5},
		{20, 0},
		{30, 5},
		{60, 20},
	}
	for _, tt := range tests {
		if got := InclineDegrees(tt.raw); got != tt.degrees {
			t.Errorf("InclineDegrees(%d) = %v, want %v", tt.raw, got, tt.degrees)
		}
		if got := InclineRaw(tt.degrees); got != tt.raw {
			t.Errorf("InclineRaw(%v) = %d, want %d", tt.degrees, got, tt.raw)
		}
	}

	if got := InclineRaw(-20); got != 0 {
		t.Errorf("InclineRaw(-20) = %d, want 0", got)
	}
	if got := InclineRaw(2.3); got != 25 {
		t.Errorf("InclineRaw(2.3) = %d, want 25", got)
	}
}
