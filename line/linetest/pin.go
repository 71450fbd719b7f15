// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package linetest

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Pin is a gpio.PinIO wired to a Net.
//
// In releases the net, Out drives it, Read samples it. The remaining
// gpio.PinIO methods come from gpiotest.Pin.
type Pin struct {
	gpiotest.Pin
	// HighDrives counts calls to Out(gpio.High). Open-drain drivers must
	// leave it at zero.
	HighDrives int

	tap *Tap
}

// NewPin returns a pin named name attached to net. The pin starts as a
// released input.
func NewPin(name string, num int, net *Net) *Pin {
	return &Pin{Pin: gpiotest.Pin{N: name, Num: num}, tap: net.Tap()}
}

// In implements gpio.PinIn.
//
// The pull argument is accepted but the net always has its own pull-up.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return errors.New("linetest: edge detection is not supported")
	}
	p.tap.Set(Released)
	return nil
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	return p.tap.net.sample()
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	if l == gpio.High {
		p.HighDrives++
		p.tap.Set(DriveHigh)
	} else {
		p.tap.Set(DriveLow)
	}
	return nil
}

// Drive returns what the pin currently does to its net.
func (p *Pin) Drive() Drive {
	return p.tap.Drive()
}

// Net returns the net the pin is attached to.
func (p *Pin) Net() *Net {
	return p.tap.net
}

var _ gpio.PinIO = &Pin{}
