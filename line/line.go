// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package line holds the pin and timing primitives shared by the bit-banged
// drivers.
//
// A driver never touches hardware registers. It is handed gpio.PinIO values
// (from gpioreg, a port expander, or linetest) and a Waiter, and expresses
// its protocol purely in terms of those.
package line

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// OpenDrain emulates an open-drain output on a regular GPIO.
//
// The line is only ever driven low. A high level is obtained by switching the
// pin to input and letting the pull-up raise the line, so a peer holding the
// line low always wins.
type OpenDrain struct {
	Pin gpio.PinIO
	// Pull is applied when the line is released. gpio.Float relies on an
	// external resistor.
	Pull gpio.Pull
}

// Release lets the line float high.
func (o *OpenDrain) Release() error {
	return o.Pin.In(o.Pull, gpio.NoEdge)
}

// Low drives the line low.
func (o *OpenDrain) Low() error {
	return o.Pin.Out(gpio.Low)
}

// Set releases the line when high is true and drives it low otherwise.
func (o *OpenDrain) Set(high bool) error {
	if high {
		return o.Release()
	}
	return o.Low()
}

// Read returns the level currently observed on the line.
func (o *OpenDrain) Read() gpio.Level {
	return o.Pin.Read()
}

func (o *OpenDrain) String() string {
	return o.Pin.String()
}

// Lookup returns the pin registered under name in gpioreg.
//
// Names may be any alias gpioreg knows, e.g. "GPIO17" or "17".
func Lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("line: no GPIO pin named %q", name)
	}
	return p, nil
}
