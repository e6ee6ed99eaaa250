// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import "github.com/nategreco/uBike/pkg/ergolink"

// Sentinels marking a target field as not set
const (
	InclineUnset    int16 = 0x7FFF
	ResistanceUnset uint8 = 0xFF
)

// Targets are requested by a fitness app. Incline is in 0.01 % of grade,
// resistance in 0.5 % of the full range.
type Targets struct {
	Incline    int16
	Resistance uint8
}

// ApplyTargets maps app targets onto the raw incline and display resistance.
// Unset fields leave the current value alone.
func (c *Controller) ApplyTargets(t Targets) {
	if t.Incline != InclineUnset {
		c.SetIncline(inclineFromGrade(t.Incline))
	}
	if t.Resistance != ResistanceUnset {
		c.SetDisplayResistance(displayFromPercent(t.Resistance))
	}
}

// inclineFromGrade converts 0.01 % units to raw incline. The deck covers
// -10 % to 20 % in half percent steps.
func inclineFromGrade(grade int16) uint16 {
	switch {
	case grade >= 2000:
		return ergolink.InclineMaxRaw
	case grade <= -1000:
		return 0
	}
	shifted := int(grade) + 1000
	raw := shifted / 50
	if shifted%50 > 25 {
		raw++
	}
	return uint16(raw)
}

// displayFromPercent converts 0.5 % units to a display resistance
func displayFromPercent(pct uint8) int {
	switch {
	case pct >= 200:
		return DisplayResistanceMax
	case pct == 0:
		return DisplayResistanceMin
	}
	scaled := int(pct) * (DisplayResistanceMax - DisplayResistanceMin)
	level := DisplayResistanceMin + scaled/200
	if scaled%200 > 25 {
		level++
	}
	return level
}
