// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// uBike - Ergometer Serial Protocol Toolkit
//
// A CLI tool for simulating, controlling and monitoring the serial bus
// between a bike controller and the ergometer drive board.

package main

import (
	"os"

	"github.com/nategreco/uBike/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
