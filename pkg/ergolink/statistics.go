// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters holds the packet counters of a Statistics tracker
type Counters struct {
	TotalLines     uint64 `json:"total_lines"`
	ValidPackets   uint64 `json:"valid_packets"`
	BadStart       uint64 `json:"bad_start"`
	BadTerminator  uint64 `json:"bad_terminator"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	InvalidHex     uint64 `json:"invalid_hex"`
	Oversized      uint64 `json:"oversized"`
	Unknown        uint64 `json:"unknown"`
	Anomalies      uint64 `json:"anomalies"`
	ReadTimeouts   uint64 `json:"read_timeouts"`
	Sent           uint64 `json:"sent"`

	Kinds map[string]uint64 `json:"kinds"`

	// Rates (calculated)
	PacketRate float64 `json:"packet_rate"` // packets/sec
	ErrorRate  float64 `json:"error_rate"`  // errors/sec
}

// Statistics tracks packet statistics and error rates.
// All methods are safe for concurrent use and on a nil receiver.
type Statistics struct {
	mu        sync.Mutex
	startTime time.Time
	counters  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
		counters:  Counters{Kinds: make(map[string]uint64)},
	}
}

// RecordError counts a line rejected by the framing layer
func (s *Statistics) RecordError(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.TotalLines++
	switch {
	case errors.Is(err, ErrBadStart):
		s.counters.BadStart++
	case errors.Is(err, ErrBadTerminator):
		s.counters.BadTerminator++
	case errors.Is(err, ErrChecksum):
		s.counters.ChecksumErrors++
	case errors.Is(err, ErrInvalidHex):
		s.counters.InvalidHex++
	case errors.Is(err, ErrLineTooLong):
		s.counters.Oversized++
	}
}

// RecordCommand counts a validated and classified packet
func (s *Statistics) RecordCommand(cmd Command, validationErrors []ValidationError) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.TotalLines++
	s.counters.ValidPackets++
	s.counters.Kinds[FormatKind(cmd.Kind)]++
	if cmd.Kind == KindUnknown {
		s.counters.Unknown++
	}
	s.counters.Anomalies += uint64(len(validationErrors))
}

// RecordTimeout counts a read timeout
func (s *Statistics) RecordTimeout() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.counters.ReadTimeouts++
	s.mu.Unlock()
}

// RecordSent counts a frame written to the transport
func (s *Statistics) RecordSent() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.counters.Sent++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	if s == nil {
		return Counters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters
	c.Kinds = make(map[string]uint64, len(s.counters.Kinds))
	for k, v := range s.counters.Kinds {
		c.Kinds[k] = v
	}

	elapsed := time.Since(s.startTime).Seconds()
	if elapsed > 0 {
		c.PacketRate = float64(c.TotalLines) / elapsed
		c.ErrorRate = float64(c.errorCount()) / elapsed
	}
	return c
}

func (c Counters) errorCount() uint64 {
	return c.BadStart + c.BadTerminator + c.ChecksumErrors + c.InvalidHex + c.Oversized
}

// Elapsed returns the time since the tracker was created or reset
func (s *Statistics) Elapsed() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()
	elapsed := s.Elapsed()

	var validPercent, errorPercent float64
	if c.TotalLines > 0 {
		validPercent = float64(c.ValidPackets) * 100.0 / float64(c.TotalLines)
		errorPercent = float64(c.errorCount()) * 100.0 / float64(c.TotalLines)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", c.TotalLines)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", c.ValidPackets, validPercent)

	if c.errorCount() > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", c.errorCount(), errorPercent)
		if c.BadStart > 0 {
			result += fmt.Sprintf("  Bad Start:        %5d\n", c.BadStart)
		}
		if c.BadTerminator > 0 {
			result += fmt.Sprintf("  Bad Terminator:   %5d\n", c.BadTerminator)
		}
		if c.ChecksumErrors > 0 {
			result += fmt.Sprintf("  Checksum:         %5d\n", c.ChecksumErrors)
		}
		if c.InvalidHex > 0 {
			result += fmt.Sprintf("  Invalid Hex:      %5d\n", c.InvalidHex)
		}
		if c.Oversized > 0 {
			result += fmt.Sprintf("  Oversized:        %5d\n", c.Oversized)
		}
	}
	if c.Unknown > 0 {
		result += fmt.Sprintf("Unknown Format:  %8d\n", c.Unknown)
	}
	if c.Anomalies > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", c.Anomalies)
	}
	if c.ReadTimeouts > 0 {
		result += fmt.Sprintf("Read Timeouts:   %8d\n", c.ReadTimeouts)
	}
	if c.Sent > 0 {
		result += fmt.Sprintf("Frames Sent:     %8d\n", c.Sent)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", c.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = time.Now()
	s.counters = Counters{Kinds: make(map[string]uint64)}
}
