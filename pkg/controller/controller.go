// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package controller drives an ergometer over the ergolink protocol the way
// the bike's head unit does: configuration handshake, cadence and incline
// polling, and a resistance magnitude derived from the displayed resistance
// and the actual incline.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/sirupsen/logrus"
)

// Display resistance range shown to the rider
const (
	DisplayResistanceMin = 1
	DisplayResistanceMax = 22
)

// Timing of the power up sequence
const (
	DefaultStartupDelay = 3 * time.Second
	firstConfigRetries  = 50
	firstConfigDelay    = 200 * time.Millisecond
	defaultRetries      = 5
	defaultRetryDelay   = 50 * time.Millisecond
)

// Sender writes one command to the bus. *ergolink.Dispatcher implements it.
type Sender interface {
	Send(cmd ergolink.Command) error
}

// Button is the evaluated state of an up/down button pair
type Button int

const (
	Decrease Button = iota
	Nothing
	Increase
)

// EvaluateButton combines an up and a down button. Pressing both does nothing.
func EvaluateButton(up, down bool) Button {
	switch {
	case up && !down:
		return Increase
	case down && !up:
		return Decrease
	}
	return Nothing
}

// Data is a snapshot of the controller for display
type Data struct {
	RPM               uint16 `json:"rpm"`
	DisplayResistance int    `json:"display_resistance"`
	Resistance        uint16 `json:"resistance"`
	TargetIncline     uint16 `json:"target_incline"`
	ActualIncline     uint16 `json:"actual_incline"`
	Watts             uint16 `json:"watts"`
	Synced            bool   `json:"synced"` // first incline reading received
}

// Controller holds the control parameters. All methods are safe for
// concurrent use; Send is never called with the lock held.
type Controller struct {
	mu         sync.Mutex
	sender     Sender
	log        logrus.FieldLogger
	delay      time.Duration
	actRPM     uint16
	actInc     uint16
	tgtInc     uint16
	dispRes    int
	resistance uint16
	firstRead  bool
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// WithStartupDelay sets the pause before the configuration handshake
func WithStartupDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

// New creates a controller sending through s
func New(s Sender, opts ...Option) *Controller {
	c := &Controller{
		sender:     s,
		log:        logrus.StandardLogger(),
		delay:      DefaultStartupDelay,
		actInc:     ergolink.InclineLevelRaw,
		tgtInc:     ergolink.InclineLevelRaw,
		dispRes:    DisplayResistanceMin,
		resistance: ergolink.ResistanceInitial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sendWithRetries sends cmd, retrying up to retries more times after a send
// failure with delay between attempts
func (c *Controller) sendWithRetries(ctx context.Context, cmd ergolink.Command, retries int, delay time.Duration) error {
	var err error
	for i := 0; i <= retries; i++ {
		if err = c.sender.Send(cmd); err == nil {
			return nil
		}
		c.log.WithField("kind", ergolink.FormatKind(cmd.Kind)).
			Errorf("Failed to send on attempt %d out of %d: %v", i+1, retries+1, err)
		if i == retries {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("send %s: %w", cmd, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Init runs the power up sequence: the six configuration commands, the
// initial resistance magnitude and a first incline request. A command that
// fails all its retries is logged and the sequence continues; the failures
// are returned joined.
func (c *Controller) Init(ctx context.Context) error {
	if err := sleep(ctx, c.delay); err != nil {
		return err
	}

	var errs []error
	send := func(cmd ergolink.Command, retries int, delay time.Duration) error {
		err := c.sendWithRetries(ctx, cmd, retries, delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			errs = append(errs, err)
		}
		return nil
	}

	if err := send(ergolink.NewConfig(1), firstConfigRetries, firstConfigDelay); err != nil {
		return err
	}
	for step := 2; step <= ergolink.ConfigSteps; step++ {
		if err := send(ergolink.NewConfig(step), defaultRetries, defaultRetryDelay); err != nil {
			return err
		}
	}

	c.mu.Lock()
	res := c.resistance
	c.mu.Unlock()
	if err := send(ergolink.NewSetResistance(res), defaultRetries, defaultRetryDelay); err != nil {
		return err
	}
	if err := send(ergolink.NewReadIncline(), defaultRetries, defaultRetryDelay); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Update polls cadence, moves the incline toward its target once the actual
// incline is known, and sends a new resistance magnitude when it changed.
func (c *Controller) Update(ctx context.Context) error {
	var errs []error
	if err := c.sendWithRetries(ctx, ergolink.NewReadRPM(), 0, 0); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	moveIncline := c.firstRead && c.actInc != c.tgtInc
	tgt := c.tgtInc
	c.mu.Unlock()

	if moveIncline {
		if err := c.sendWithRetries(ctx, ergolink.NewSetIncline(tgt), 1, defaultRetryDelay); err != nil {
			errs = append(errs, err)
		}
		if err := c.sendWithRetries(ctx, ergolink.NewReadIncline(), 0, 0); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.updateResistance(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Controller) updateResistance(ctx context.Context) error {
	c.mu.Lock()
	res := c.calcResistance()
	changed := res != c.resistance
	c.resistance = res
	c.mu.Unlock()

	if !changed {
		return nil
	}
	c.log.WithField("level", res).Info("Changing resistance magnitude")
	return c.sendWithRetries(ctx, ergolink.NewSetResistance(res), 3, defaultRetryDelay)
}

// calcResistance must be called with mu held. One display step is worth 5
// counts and one percent of grade 4 counts.
func (c *Controller) calcResistance() uint16 {
	res := ergolink.ResistanceMin
	res += 5 * (c.dispRes - 1)
	res += 4 * ((int(c.actInc) - ergolink.InclineLevelRaw) / 2)
	return uint16(min(max(res, ergolink.ResistanceMin), ergolink.ResistanceMax))
}

// HandleCommand consumes drive board replies. It never replies itself.
func (c *Controller) HandleCommand(cmd ergolink.Command) (ergolink.Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Kind {
	case ergolink.KindReplyRPM:
		c.actRPM = cmd.Value
	case ergolink.KindReplyIncline:
		if !c.firstRead {
			c.tgtInc = cmd.Value
			c.firstRead = true
		}
		c.actInc = cmd.Value
	case ergolink.KindAckResistance, ergolink.KindAckIncline, ergolink.KindConfigAck:
		// writes are assumed successful
	default:
		c.log.WithField("kind", ergolink.FormatKind(cmd.Kind)).Debug("Unhandled message")
	}
	return ergolink.Command{}, false
}

// AdjustIncline moves the target incline one raw unit within 0..60
func (c *Controller) AdjustIncline(b Button) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case b == Increase && c.tgtInc < ergolink.InclineMaxRaw:
		c.tgtInc++
		c.log.Infof("Increasing incline to: %d", c.tgtInc)
	case b == Decrease && c.tgtInc > 0:
		c.tgtInc--
		c.log.Infof("Decreasing incline to: %d", c.tgtInc)
	}
}

// AdjustResistance moves the display resistance one step within 1..22
func (c *Controller) AdjustResistance(b Button) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case b == Increase && c.dispRes < DisplayResistanceMax:
		c.dispRes++
		c.log.Infof("Increasing resistance to: %d", c.dispRes)
	case b == Decrease && c.dispRes > DisplayResistanceMin:
		c.dispRes--
		c.log.Infof("Decreasing resistance to: %d", c.dispRes)
	}
}

// SetIncline sets the target incline, capped at 60 raw
func (c *Controller) SetIncline(raw uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Infof("Setting incline to: %d", raw)
	c.tgtInc = min(raw, ergolink.InclineMaxRaw)
}

// SetDisplayResistance sets the display resistance, clamped to 1..22
func (c *Controller) SetDisplayResistance(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Infof("Setting resistance to: %d", level)
	c.dispRes = min(max(level, DisplayResistanceMin), DisplayResistanceMax)
}

// Data returns a snapshot for display
func (c *Controller) Data() Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Data{
		RPM:               c.actRPM,
		DisplayResistance: c.dispRes,
		Resistance:        c.resistance,
		TargetIncline:     c.tgtInc,
		ActualIncline:     c.actInc,
		Watts:             Watts(c.actRPM, c.resistance),
		Synced:            c.firstRead,
	}
}
