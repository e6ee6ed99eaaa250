// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender records sent commands and fails the first failures sends
type recordingSender struct {
	sent     []ergolink.Command
	failures int
	attempts int
}

func (s *recordingSender) Send(cmd ergolink.Command) error {
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errors.New("uart busy")
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *recordingSender) reset() {
	s.sent = nil
	s.attempts = 0
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestController(s Sender) *Controller {
	return New(s, WithLogger(quietLogger()), WithStartupDelay(0))
}

func kinds(cmds []ergolink.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}

// ============================================================
// Init Tests
// ============================================================

func TestInit_Sequence(t *testing.T) {
	s := &recordingSender{}
	c := newTestController(s)

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, []string{
		"CONFIG(1)", "CONFIG(2)", "CONFIG(3)", "CONFIG(4)", "CONFIG(5)", "CONFIG(6)",
		"SET_RESISTANCE(58)", "READ_INCLINE",
	}, kinds(s.sent))
}

func TestInit_RetriesFailedSend(t *testing.T) {
	s := &recordingSender{failures: 1}
	c := newTestController(s)

	start := time.Now()
	require.NoError(t, c.Init(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), firstConfigDelay)
	assert.Equal(t, 9, s.attempts)
	assert.Len(t, s.sent, 8)
}

func TestInit_StopsAtDeadline(t *testing.T) {
	s := &recordingSender{failures: 1000}
	c := New(s, WithLogger(quietLogger()), WithStartupDelay(0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Init(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInit_CancelledDuringStartupDelay(t *testing.T) {
	s := &recordingSender{}
	c := New(s, WithLogger(quietLogger()), WithStartupDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Init(ctx), context.Canceled)
	assert.Empty(t, s.sent)
}

func TestSendWithRetries_Exhausted(t *testing.T) {
	s := &recordingSender{failures: 10}
	c := newTestController(s)

	err := c.sendWithRetries(context.Background(), ergolink.NewReadRPM(), 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READ_RPM")
	assert.Equal(t, 3, s.attempts)
}

// ============================================================
// Update Tests
// ============================================================

func TestUpdate_BeforeFirstIncline(t *testing.T) {
	s := &recordingSender{}
	c := newTestController(s)

	require.NoError(t, c.Update(context.Background()))
	// No incline reading yet: only cadence and the recalculated magnitude
	assert.Equal(t, []string{"READ_RPM", "SET_RESISTANCE(15)"}, kinds(s.sent))

	s.reset()
	require.NoError(t, c.Update(context.Background()))
	assert.Equal(t, []string{"READ_RPM"}, kinds(s.sent), "unchanged magnitude is not resent")
}

func TestUpdate_MovesInclineAfterFirstReading(t *testing.T) {
	s := &recordingSender{}
	c := newTestController(s)

	c.HandleCommand(ergolink.NewReplyIncline(24))
	d := c.Data()
	assert.True(t, d.Synced)
	assert.Equal(t, uint16(24), d.TargetIncline, "first reading seeds the target")

	require.NoError(t, c.Update(context.Background()))
	assert.Equal(t, []string{"READ_RPM", "SET_RESISTANCE(23)"}, kinds(s.sent))

	s.reset()
	c.AdjustIncline(Increase)
	require.NoError(t, c.Update(context.Background()))
	assert.Equal(t, []string{"READ_RPM", "SET_INCLINE(25)", "READ_INCLINE"}, kinds(s.sent))

	// Later readings do not move the target
	c.HandleCommand(ergolink.NewReplyIncline(25))
	assert.Equal(t, uint16(25), c.Data().TargetIncline)
	assert.Equal(t, uint16(25), c.Data().ActualIncline)
}

func TestUpdate_ReturnsSendErrors(t *testing.T) {
	s := &recordingSender{failures: 1}
	c := newTestController(s)
	assert.Error(t, c.Update(context.Background()))
}

// ============================================================
// Control Parameter Tests
// ============================================================

func TestCalcResistance(t *testing.T) {
	tests := []struct {
		disp int
		inc  uint16
		want uint16
	}{
		{1, 20, 15},
		{10, 20, 60},
		{1, 30, 35},
		{5, 15, 27},
		{1, 0, 15},
		{22, 60, 190},
	}
	for _, tt := range tests {
		c := newTestController(&recordingSender{})
		c.dispRes = tt.disp
		c.actInc = tt.inc
		assert.Equal(t, tt.want, c.calcResistance(), "disp=%d inc=%d", tt.disp, tt.inc)
	}
}

func TestAdjustIncline_Clamped(t *testing.T) {
	c := newTestController(&recordingSender{})
	c.SetIncline(59)
	c.AdjustIncline(Increase)
	c.AdjustIncline(Increase)
	assert.Equal(t, uint16(60), c.Data().TargetIncline)

	c.SetIncline(0)
	c.AdjustIncline(Decrease)
	assert.Equal(t, uint16(0), c.Data().TargetIncline)

	c.AdjustIncline(Nothing)
	assert.Equal(t, uint16(0), c.Data().TargetIncline)
}

func TestAdjustResistance_Clamped(t *testing.T) {
	c := newTestController(&recordingSender{})
	c.AdjustResistance(Decrease)
	assert.Equal(t, 1, c.Data().DisplayResistance)

	for i := 0; i < 30; i++ {
		c.AdjustResistance(Increase)
	}
	assert.Equal(t, 22, c.Data().DisplayResistance)
}

func TestSetters_Clamp(t *testing.T) {
	c := newTestController(&recordingSender{})
	c.SetIncline(200)
	assert.Equal(t, uint16(60), c.Data().TargetIncline)

	c.SetDisplayResistance(40)
	assert.Equal(t, 22, c.Data().DisplayResistance)
	c.SetDisplayResistance(-3)
	assert.Equal(t, 1, c.Data().DisplayResistance)
}

func TestEvaluateButton(t *testing.T) {
	assert.Equal(t, Increase, EvaluateButton(true, false))
	assert.Equal(t, Decrease, EvaluateButton(false, true))
	assert.Equal(t, Nothing, EvaluateButton(true, true))
	assert.Equal(t, Nothing, EvaluateButton(false, false))
}

func TestHandleCommand_NeverReplies(t *testing.T) {
	c := newTestController(&recordingSender{})
	for _, cmd := range ergolink.AllCommands(42) {
		_, ok := c.HandleCommand(cmd)
		assert.False(t, ok, "%s", cmd)
	}
	assert.Equal(t, uint16(42), c.Data().RPM)
}

// ============================================================
// Target and Power Tests
// ============================================================

func TestApplyTargets(t *testing.T) {
	tests := []struct {
		name     string
		targets  Targets
		wantInc  uint16
		wantDisp int
	}{
		{"level", Targets{Incline: 0, Resistance: 0}, 20, 1},
		{"five percent", Targets{Incline: 500, Resistance: 100}, 30, 12},
		{"round up", Targets{Incline: 130, Resistance: 2}, 23, 2},
		{"round down", Targets{Incline: 120, Resistance: 1}, 22, 1},
		{"above range", Targets{Incline: 2500, Resistance: 200}, 60, 22},
		{"below range", Targets{Incline: -1500, Resistance: 199}, 0, 22},
		{"just above floor", Targets{Incline: -999, Resistance: ResistanceUnset}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(&recordingSender{})
			c.ApplyTargets(tt.targets)
			d := c.Data()
			assert.Equal(t, tt.wantInc, d.TargetIncline)
			assert.Equal(t, tt.wantDisp, d.DisplayResistance)
		})
	}
}

func TestApplyTargets_Unset(t *testing.T) {
	c := newTestController(&recordingSender{})
	c.SetIncline(33)
	c.SetDisplayResistance(7)

	c.ApplyTargets(Targets{Incline: InclineUnset, Resistance: ResistanceUnset})
	assert.Equal(t, uint16(33), c.Data().TargetIncline)
	assert.Equal(t, 7, c.Data().DisplayResistance)
}

func TestWatts(t *testing.T) {
	tests := []struct {
		rpm, res, want uint16
	}{
		{0, 58, 0},
		{1, 15, 1},
		{60, 58, 28},
		{80, 58, 45},
		{90, 100, 309},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Watts(tt.rpm, tt.res), "rpm=%d res=%d", tt.rpm, tt.res)
	}
}
