// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import "time"

// Packet represents one validated frame
type Packet struct {
	payload   []byte // decoded from hex
	checksum  byte
	timestamp time.Time
}

// Payload returns the binary payload bytes
func (p *Packet) Payload() []byte {
	return p.payload
}

// Checksum returns the checksum byte received with the packet
func (p *Packet) Checksum() byte {
	return p.checksum
}

// Timestamp returns the packet's decode timestamp
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// Node returns the bus node the payload is addressed to, or 0 for an empty payload
func (p *Packet) Node() uint8 {
	if len(p.payload) == 0 {
		return 0
	}
	return p.payload[0]
}

// Function returns the Modbus function code, or 0 if absent
func (p *Packet) Function() uint8 {
	if len(p.payload) < 2 {
		return 0
	}
	return p.payload[1]
}
