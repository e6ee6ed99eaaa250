// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator emulates the ergometer drive board. It answers the
// controller's requests with protocol-correct replies and models the incline
// actuator as a ramp of one raw unit per poll.
package simulator

import (
	"sync"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/sirupsen/logrus"
)

// State is a snapshot of the simulated drive board
type State struct {
	ActualIncline int `json:"actual_incline"` // raw units
	TargetIncline int `json:"target_incline"` // raw units
	RPM           int `json:"rpm"`
	Resistance    int `json:"resistance"` // last accepted magnitude, 0 before the first write
}

// ActualDegrees returns the actual incline in degrees
func (s State) ActualDegrees() float64 {
	return ergolink.InclineDegrees(uint16(s.ActualIncline))
}

// TargetDegrees returns the target incline in degrees
func (s State) TargetDegrees() float64 {
	return ergolink.InclineDegrees(uint16(s.TargetIncline))
}

// Observer receives a state snapshot after every handled command
type Observer interface {
	ObserveState(cmd ergolink.Command, state State)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(cmd ergolink.Command, state State)

// ObserveState calls f(cmd, state)
func (f ObserverFunc) ObserveState(cmd ergolink.Command, state State) {
	f(cmd, state)
}

// Simulator holds the drive board state and implements ergolink.Handler
type Simulator struct {
	mu        sync.Mutex
	state     State
	log       logrus.FieldLogger
	observers []Observer
}

// Option configures a Simulator
type Option func(*Simulator)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Simulator) { s.log = log }
}

// WithObserver registers an observer
func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.observers = append(s.observers, o) }
}

// New creates a simulator reporting a fixed cadence of rpm. The incline
// starts at raw 10 with no movement pending.
func New(rpm int, opts ...Option) *Simulator {
	s := &Simulator{
		state: State{
			ActualIncline: ergolink.InclineStartRaw,
			TargetIncline: ergolink.InclineStartRaw,
			RPM:           rpm,
		},
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current state
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleCommand applies a command to the state and returns the reply
func (s *Simulator) HandleCommand(cmd ergolink.Command) (ergolink.Command, bool) {
	s.mu.Lock()
	reply, ok := s.apply(cmd)
	state := s.state
	s.mu.Unlock()

	for _, o := range s.observers {
		o.ObserveState(cmd, state)
	}
	return reply, ok
}

// apply must be called with mu held
func (s *Simulator) apply(cmd ergolink.Command) (ergolink.Command, bool) {
	switch cmd.Kind {
	case ergolink.KindReadRPM:
		return ergolink.NewReplyRPM(uint16(s.state.RPM)), true

	case ergolink.KindSetResistance:
		s.state.Resistance = int(cmd.Value)
		s.log.WithField("level", cmd.Value).Info("Setting resistance")
		return ergolink.NewAckResistance(cmd.Value), true

	case ergolink.KindSetIncline:
		s.state.TargetIncline = int(cmd.Value)
		s.log.WithFields(logrus.Fields{
			"raw":     cmd.Value,
			"degrees": ergolink.InclineDegrees(cmd.Value),
		}).Info("Setting new incline")
		return ergolink.NewAckIncline(cmd.Value), true

	case ergolink.KindReadIncline:
		s.state.ActualIncline = stepToward(s.state.ActualIncline, s.state.TargetIncline)
		s.log.WithField("raw", s.state.ActualIncline).Debug("Sending actual incline")
		return ergolink.NewReplyIncline(uint16(s.state.ActualIncline)), true

	case ergolink.KindConfig:
		s.log.WithField("step", cmd.Step).Info("Configuration command")
		return ergolink.NewConfigAck(cmd.Step), true

	case ergolink.KindUnknown:
		return ergolink.Command{}, false
	}

	// Replies and acks belong to the drive board, never to the controller
	s.log.WithField("kind", ergolink.FormatKind(cmd.Kind)).Info("Ignoring drive board message")
	return ergolink.Command{}, false
}

// stepToward moves actual one unit toward target
func stepToward(actual, target int) int {
	switch {
	case actual < target:
		return actual + 1
	case actual > target:
		return actual - 1
	}
	return actual
}
