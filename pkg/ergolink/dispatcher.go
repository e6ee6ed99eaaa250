// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Handler reacts to classified commands. It returns the reply to send, if any.
type Handler interface {
	HandleCommand(cmd Command) (reply Command, ok bool)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(cmd Command) (Command, bool)

// HandleCommand calls f(cmd)
func (f HandlerFunc) HandleCommand(cmd Command) (Command, bool) {
	return f(cmd)
}

// Dispatcher decodes lines, classifies them and hands them to a Handler.
// Replies are framed with the same codec and written to the output.
type Dispatcher struct {
	codec   Codec
	handler Handler
	out     io.Writer
	log     logrus.FieldLogger
	stats   *Statistics
	capture *CaptureWriter
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithCodec sets the codec used for decoding and replies
func WithCodec(c Codec) DispatcherOption {
	return func(d *Dispatcher) { d.codec = c }
}

// WithLogger sets the logger for diagnostics
func WithLogger(log logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// WithStatistics records every processed line in stats
func WithStatistics(stats *Statistics) DispatcherOption {
	return func(d *Dispatcher) { d.stats = stats }
}

// WithCapture records received lines and sent replies
func WithCapture(c *CaptureWriter) DispatcherOption {
	return func(d *Dispatcher) { d.capture = c }
}

// NewDispatcher creates a dispatcher writing replies to out
func NewDispatcher(out io.Writer, h Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		codec:   DefaultCodec,
		handler: h,
		out:     out,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessLine decodes one line and dispatches it.
// Framing errors are returned unchanged and leave the handler untouched.
// Errors writing the reply wrap ErrTransport.
func (d *Dispatcher) ProcessLine(line []byte) (Command, error) {
	d.record(DirectionRX, line)

	packet, err := d.codec.Decode(line)
	if err != nil {
		d.stats.RecordError(err)
		d.log.WithField("line", fmt.Sprintf("%q", line)).Warnf("Discarding packet: %v", err)
		return Command{}, err
	}
	return d.Dispatch(packet)
}

// Dispatch classifies a validated packet and invokes the handler
func (d *Dispatcher) Dispatch(packet *Packet) (Command, error) {
	cmd := Classify(packet.Payload())
	d.stats.RecordCommand(cmd, ValidateCommand(cmd))

	if cmd.Kind == KindUnknown {
		d.log.WithField("payload", fmt.Sprintf("%X", cmd.Payload)).Info("Unknown format")
	} else {
		d.log.WithField("kind", FormatKind(cmd.Kind)).Debugf("Received %s", cmd)
	}

	reply, ok := d.handler.HandleCommand(cmd)
	if !ok {
		return cmd, nil
	}
	if err := d.Send(reply); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// Send frames and writes a command
func (d *Dispatcher) Send(cmd Command) error {
	line, err := d.codec.Encode(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd, err)
	}
	if _, err := d.out.Write(line); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrTransport, cmd, err)
	}
	d.record(DirectionTX, line)
	d.stats.RecordSent()
	d.log.WithField("kind", FormatKind(cmd.Kind)).Debugf("Sent %s", cmd)
	return nil
}

func (d *Dispatcher) record(dir Direction, line []byte) {
	if d.capture == nil {
		return
	}
	if err := d.capture.Record(dir, line); err != nil {
		d.log.Warnf("Capture write failed: %v", err)
	}
}
