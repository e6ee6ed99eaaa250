// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

// chunkReader returns one scripted chunk or error per Read call.
// A nil chunk with a nil error simulates a read timeout without data.
type chunkReader struct {
	steps []readStep
}

type readStep struct {
	data string
	err  error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	n := copy(p, s.data)
	if n < len(s.data) {
		r.steps[0].data = s.data[n:]
		return n, nil
	}
	r.steps = r.steps[1:]
	return n, s.err
}

func TestLineReader_SplitsLines(t *testing.T) {
	r := NewLineReader(&chunkReader{steps: []readStep{
		{data: ":510300020000AA\r\n:4103"},
		{data: "00020000BA\r\n"},
	}})
	ctx := context.Background()

	for _, want := range []string{":510300020000AA\r\n", ":410300020000BA\r\n"} {
		line, err := r.ReadLine(ctx)
		if err != nil {
			t.Fatalf("ReadLine error: %v", err)
		}
		if string(line) != want {
			t.Errorf("ReadLine = %q, want %q", line, want)
		}
	}
}

func TestLineReader_TimeoutKeepsPartialLine(t *testing.T) {
	r := NewLineReader(&chunkReader{steps: []readStep{
		{data: ":5103000200"},
		{},
		{data: "00AA\r\n"},
	}})
	ctx := context.Background()

	if _, err := r.ReadLine(ctx); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("first ReadLine error = %v, want ErrReadTimeout", err)
	}
	line, err := r.ReadLine(ctx)
	if err != nil {
		t.Fatalf("second ReadLine error: %v", err)
	}
	if string(line) != ":510300020000AA\r\n" {
		t.Errorf("ReadLine = %q", line)
	}
}

func TestLineReader_DeadlineErrorIsTimeout(t *testing.T) {
	r := NewLineReader(&chunkReader{steps: []readStep{
		{err: os.ErrDeadlineExceeded},
	}})
	if _, err := r.ReadLine(context.Background()); !errors.Is(err, ErrReadTimeout) {
		t.Errorf("ReadLine error = %v, want ErrReadTimeout", err)
	}
}

func TestLineReader_TransportError(t *testing.T) {
	r := NewLineReader(&chunkReader{})
	_, err := r.ReadLine(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("ReadLine error = %v, want ErrTransport", err)
	}
	if IsFramingError(err) {
		t.Error("transport error must not be a framing error")
	}
}

func TestLineReader_ContextCancelled(t *testing.T) {
	r := NewLineReader(&chunkReader{steps: []readStep{{data: ":51"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.ReadLine(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadLine error = %v, want context.Canceled", err)
	}
}

func TestLineReader_BufferedLineBeforeCancel(t *testing.T) {
	r := NewLineReader(&chunkReader{steps: []readStep{
		{data: ":510300020000AA\r\n:410300020000BA\r\n"},
	}})
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := r.ReadLine(ctx); err != nil {
		t.Fatalf("ReadLine error: %v", err)
	}
	cancel()
	// A complete line already buffered is still delivered
	if line, err := r.ReadLine(ctx); err != nil || string(line) != ":410300020000BA\r\n" {
		t.Errorf("ReadLine = %q, %v", line, err)
	}
}

func TestLineReader_OversizedLine(t *testing.T) {
	r := NewLineReader(&chunkReader{steps: []readStep{
		{data: strings.Repeat("X", 50)},
		{data: strings.Repeat("Y", 50) + "\r\n:510300020000AA\r\n"},
	}})
	ctx := context.Background()

	if _, err := r.ReadLine(ctx); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("ReadLine error = %v, want ErrLineTooLong", err)
	}
	line, err := r.ReadLine(ctx)
	if err != nil {
		t.Fatalf("ReadLine after oversize error: %v", err)
	}
	if string(line) != ":510300020000AA\r\n" {
		t.Errorf("ReadLine = %q", line)
	}
}
