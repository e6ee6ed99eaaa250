// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction tells whether a captured line was received or sent
type Direction uint8

const (
	DirectionRX Direction = 0
	DirectionTX Direction = 1
)

// String returns "RX" or "TX"
func (d Direction) String() string {
	if d == DirectionTX {
		return "TX"
	}
	return "RX"
}

// CaptureRecord is one line of a capture file. Files are a CBOR sequence of
// records: {0: unix-nanoseconds, 1: direction, 2: raw line bytes}.
type CaptureRecord struct {
	Time      int64     `cbor:"0,keyasint"`
	Direction Direction `cbor:"1,keyasint"`
	Line      []byte    `cbor:"2,keyasint"`
}

// Timestamp returns the record time
func (r CaptureRecord) Timestamp() time.Time {
	return time.Unix(0, r.Time)
}

// CaptureWriter appends records to a capture stream
type CaptureWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	now func() time.Time
}

// NewCaptureWriter creates a writer appending CBOR records to w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{
		enc: cbor.NewEncoder(w),
		now: time.Now,
	}
}

// Record writes one line with the current time
func (c *CaptureWriter) Record(dir Direction, line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := CaptureRecord{
		Time:      c.now().UnixNano(),
		Direction: dir,
		Line:      append([]byte(nil), line...),
	}
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// CaptureReader reads records from a capture stream
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a reader over a CBOR record sequence
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (c *CaptureReader) Next() (CaptureRecord, error) {
	var rec CaptureRecord
	if err := c.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return CaptureRecord{}, io.EOF
		}
		return CaptureRecord{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}
