// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// LineReader reads newline terminated lines from a transport whose reads
// return periodically. A read returning no data and no error, or an error
// with Timeout() true, is reported as ErrReadTimeout so the caller can retry
// and check for cancellation.
type LineReader struct {
	r       io.Reader
	chunk   []byte
	pending []byte
	discard bool
}

// NewLineReader creates a line reader over r
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:       r,
		chunk:   make([]byte, 64),
		pending: make([]byte, 0, MaxLineSize),
	}
}

// ReadLine returns the next line including its '\n'. Partial lines survive
// timeouts. A line exceeding MaxLineSize is dropped up to its terminator and
// reported once as ErrLineTooLong.
func (l *LineReader) ReadLine(ctx context.Context) ([]byte, error) {
	for {
		if line, ok, err := l.take(); ok {
			return line, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := l.r.Read(l.chunk)
		if n > 0 {
			l.pending = append(l.pending, l.chunk[:n]...)
			continue
		}
		if err == nil {
			return nil, ErrReadTimeout
		}
		var timeout interface{ Timeout() bool }
		if errors.As(err, &timeout) && timeout.Timeout() {
			return nil, ErrReadTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

// take extracts a complete line from the pending bytes
func (l *LineReader) take() ([]byte, bool, error) {
	i := bytes.IndexByte(l.pending, '\n')
	if l.discard {
		if i < 0 {
			l.pending = l.pending[:0]
			return nil, false, nil
		}
		l.pending = append(l.pending[:0], l.pending[i+1:]...)
		l.discard = false
		i = bytes.IndexByte(l.pending, '\n')
	}
	if i < 0 {
		if len(l.pending) > MaxLineSize {
			l.pending = l.pending[:0]
			l.discard = true
			return nil, true, fmt.Errorf("%w: no terminator within %d bytes", ErrLineTooLong, MaxLineSize)
		}
		return nil, false, nil
	}
	line := append([]byte(nil), l.pending[:i+1]...)
	l.pending = append(l.pending[:0], l.pending[i+1:]...)
	return line, true, nil
}
