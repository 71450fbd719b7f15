// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package linetest simulates the electrical side of bit-banged buses.
//
// A Net is a wire with a pull-up resistor: it reads low as soon as any of its
// taps drives it low, high otherwise. Pins connect a driver under test to a
// Net through the gpio.PinIO interface; simulated peers attach their own taps
// and react to edges. Everything runs synchronously on the caller's
// goroutine, in the order the driver toggles its pins.
package linetest

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Drive is the state of a single tap on a Net.
type Drive uint8

const (
	// Released leaves the net to the pull-up and other taps.
	Released Drive = iota
	// DriveLow pulls the net low.
	DriveLow
	// DriveHigh actively drives the net high, as a push-pull output does.
	// A tap driving low still wins.
	DriveHigh
)

func (d Drive) String() string {
	switch d {
	case Released:
		return "Released"
	case DriveLow:
		return "DriveLow"
	case DriveHigh:
		return "DriveHigh"
	default:
		return fmt.Sprintf("Drive(%d)", uint8(d))
	}
}

// Net is a single simulated wire.
type Net struct {
	name   string
	taps   []Drive
	level  gpio.Level
	onEdge []func(l gpio.Level)
	onRead []func()
}

// NewNet returns an idle net, pulled high.
func NewNet(name string) *Net {
	return &Net{name: name, level: gpio.High}
}

// Name returns the name given to NewNet.
func (n *Net) Name() string {
	return n.name
}

func (n *Net) String() string {
	return fmt.Sprintf("%s(%s)", n.name, n.level)
}

// Level returns the current level without triggering read hooks.
func (n *Net) Level() gpio.Level {
	return n.level
}

// OnEdge registers fn to be called after every level change. fn sees the new
// level both as argument and through Level.
func (n *Net) OnEdge(fn func(l gpio.Level)) {
	n.onEdge = append(n.onEdge, fn)
}

// OnRead registers fn to be called each time a Pin samples the net, before
// the level is returned. Peers use it to count polls.
func (n *Net) OnRead(fn func()) {
	n.onRead = append(n.onRead, fn)
}

// Tap attaches a new driver to the net. It starts released.
func (n *Net) Tap() *Tap {
	n.taps = append(n.taps, Released)
	return &Tap{net: n, idx: len(n.taps) - 1}
}

// sample runs the read hooks and returns the level.
func (n *Net) sample() gpio.Level {
	for _, fn := range n.onRead {
		fn()
	}
	return n.level
}

func (n *Net) settle() {
	l := gpio.High
	for _, d := range n.taps {
		if d == DriveLow {
			l = gpio.Low
			break
		}
	}
	if l == n.level {
		return
	}
	n.level = l
	for _, fn := range n.onEdge {
		fn(l)
	}
}

// Tap is one driver connected to a Net.
type Tap struct {
	net *Net
	idx int
}

// Set changes the tap's drive and propagates the resulting level.
func (t *Tap) Set(d Drive) {
	t.net.taps[t.idx] = d
	t.net.settle()
}

// Drive returns the tap's current drive.
func (t *Tap) Drive() Drive {
	return t.net.taps[t.idx]
}

// Net returns the net the tap is attached to.
func (t *Tap) Net() *Net {
	return t.net
}
