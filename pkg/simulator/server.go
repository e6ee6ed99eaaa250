// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"context"
	"errors"
	"io"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/sirupsen/logrus"
)

// ServerConfig holds the optional collaborators of a Server
type ServerConfig struct {
	Codec      ergolink.Codec
	Logger     logrus.FieldLogger
	Statistics *ergolink.Statistics
	Capture    *ergolink.CaptureWriter
}

// Server owns the request/response loop between a transport and a Simulator
type Server struct {
	sim        *Simulator
	reader     *ergolink.LineReader
	dispatcher *ergolink.Dispatcher
	stats      *ergolink.Statistics
	log        logrus.FieldLogger
}

// NewServer creates a server reading requests from port and writing replies
// back to it. The port's reads must return periodically (read timeout) for
// cancellation to be observed.
func NewServer(port io.ReadWriter, sim *Simulator, cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	stats := cfg.Statistics
	if stats == nil {
		stats = ergolink.NewStatistics()
	}

	opts := []ergolink.DispatcherOption{
		ergolink.WithCodec(cfg.Codec),
		ergolink.WithLogger(log),
		ergolink.WithStatistics(stats),
	}
	if cfg.Capture != nil {
		opts = append(opts, ergolink.WithCapture(cfg.Capture))
	}

	return &Server{
		sim:        sim,
		reader:     ergolink.NewLineReader(port),
		dispatcher: ergolink.NewDispatcher(port, sim, opts...),
		stats:      stats,
		log:        log,
	}
}

// Statistics returns the server's packet statistics
func (s *Server) Statistics() *ergolink.Statistics {
	return s.stats
}

// Run serves requests until ctx is cancelled or the transport fails.
// Returns nil on cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.log.WithField("state", s.sim.State()).Info("Simulator running")

	for {
		line, err := s.reader.ReadLine(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ergolink.ErrReadTimeout):
			s.stats.RecordTimeout()
			s.log.Debug("Read timeout")
			continue
		case errors.Is(err, ergolink.ErrLineTooLong):
			s.stats.RecordError(err)
			s.log.Warnf("Discarding packet: %v", err)
			continue
		default:
			return err
		}

		if _, err := s.dispatcher.ProcessLine(line); err != nil {
			if ergolink.IsFramingError(err) {
				continue
			}
			if errors.Is(err, ergolink.ErrTransport) {
				return err
			}
			// Reply could not be framed in the selected checksum mode
			s.log.Warnf("Reply dropped: %v", err)
		}
	}
}
