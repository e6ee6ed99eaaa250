// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

// Power curve fit of torque over cadence and resistance magnitude
var (
	rpmCoeffs = [6]float64{
		-8.06357866e+06,
		-2.45457703e+05,
		1.49961556e+01,
		-6.48778450e-02,
		1.09741619e-04,
		3.16050229e-09,
	}
	resCoeffs = [6]float64{
		-1.00397536e-07,
		1.01525992e-08,
		-2.94388976e-10,
		3.48657332e-12,
		-1.97940519e-14,
		4.09271382e-17,
	}
	torqueOffset = 5.62850051e-02
)

func polynomial(coeffs [6]float64, x float64) float64 {
	var sum, pow float64 = 0, 1
	for _, k := range coeffs {
		sum += k * pow
		pow *= x
	}
	return sum
}

// Watts estimates rider power from cadence and resistance magnitude.
// Returns 0 when not pedaling and at least 1 otherwise.
func Watts(rpm, resistance uint16) uint16 {
	if rpm == 0 {
		return 0
	}
	torque := polynomial(rpmCoeffs, float64(rpm))*polynomial(resCoeffs, float64(resistance)) + torqueOffset
	pwr := torque * float64(rpm)
	if pwr < 1 {
		return 1
	}
	if pwr > 0xFFFF {
		return 0xFFFF
	}
	return uint16(pwr)
}
