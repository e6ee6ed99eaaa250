// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

// The bus runs at 7 data bits and 2 stop bits. A UART limited to 8N1 can
// still talk to it: the first stop bit is sent as data bit 7 set to 1.

// To8N1 sets bit 7 of every byte in place for transmission on an 8N1 UART
func To8N1(buf []byte) {
	for i := range buf {
		buf[i] |= 0x80
	}
}

// From8N1 clears bit 7 of every byte in place after reception on an 8N1 UART
func From8N1(buf []byte) {
	for i := range buf {
		buf[i] &= 0x7F
	}
}
