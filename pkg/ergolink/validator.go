// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import "fmt"

// AnomalyType represents different types of command anomalies
type AnomalyType int

const (
	AnomalyInclineRange AnomalyType = iota
	AnomalyResistanceRange
	AnomalyHighRPM
)

// MaxPlausibleRPM is the highest cadence reported without an anomaly
const MaxPlausibleRPM = 250

// ValidationError represents a command whose parameter is out of range
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateCommand checks command parameters against the ranges the
// controller firmware produces.
// Returns a slice of validation errors (empty if the command is plausible)
func ValidateCommand(c Command) []ValidationError {
	errors := []ValidationError{}

	switch c.Kind {
	case KindSetIncline, KindAckIncline, KindReplyIncline:
		if c.Value > InclineMaxRaw {
			errors = append(errors, ValidationError{
				Type:    AnomalyInclineRange,
				Message: fmt.Sprintf("Incline raw=%d out of range (max %d)", c.Value, InclineMaxRaw),
				Details: map[string]interface{}{"raw": c.Value, "max": InclineMaxRaw},
			})
		}

	case KindSetResistance, KindAckResistance:
		if c.Value < ResistanceMin || c.Value > ResistanceMax {
			errors = append(errors, ValidationError{
				Type:    AnomalyResistanceRange,
				Message: fmt.Sprintf("Resistance=%d out of range (%d-%d)", c.Value, ResistanceMin, ResistanceMax),
				Details: map[string]interface{}{"level": c.Value, "min": ResistanceMin, "max": ResistanceMax},
			})
		}

	case KindReplyRPM:
		if c.Value > MaxPlausibleRPM {
			errors = append(errors, ValidationError{
				Type:    AnomalyHighRPM,
				Message: fmt.Sprintf("High RPM (rpm=%d, max %d)", c.Value, MaxPlausibleRPM),
				Details: map[string]interface{}{"rpm": c.Value, "max": MaxPlausibleRPM},
			})
		}
	}

	return errors
}
