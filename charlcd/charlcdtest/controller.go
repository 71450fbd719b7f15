// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package charlcdtest implements a simulated HD44780 style controller for the
// charlcd package.
package charlcdtest

import (
	"strings"

	"github.com/inflex/bitbanging/line/linetest"
	"periph.io/x/conn/v3/gpio"
)

// Controller listens to the seven lines of a 4 bit character LCD interface.
//
// Writes are latched on the falling edge of E. Status reads (R/W high) are
// answered while E is high. The controller powers up in 8 bit mode and
// switches to 4 bit mode when it receives the function set nibble 0x2.
type Controller struct {
	RS, RW, E *linetest.Net
	// D holds D4 to D7.
	D [4]*linetest.Net

	// Busy is the number of upcoming status reads that report the busy flag.
	Busy int
	// Latency is added to Busy after each executed command or character.
	Latency int

	// FourBit is set once the interface width was switched.
	FourBit bool
	// ModeNibbles lists the nibbles written while in 8 bit mode.
	ModeNibbles []byte
	// Commands and Data list the bytes executed, in order.
	Commands []byte
	Data     []byte
	// StatusReads counts completed two nibble status reads.
	StatusReads int
	// AC is the address counter.
	AC byte
	// DDRAM is the display memory.
	DDRAM [0x80]byte

	taps    [4]*linetest.Tap
	strobe  bool
	pending bool
	high    byte
	lowRead bool
}

// NewController returns a controller attached to fresh nets.
func NewController() *Controller {
	c := &Controller{
		RS: linetest.NewNet("RS"),
		RW: linetest.NewNet("RW"),
		E:  linetest.NewNet("E"),
	}
	for i := range c.D {
		c.D[i] = linetest.NewNet([...]string{"D4", "D5", "D6", "D7"}[i])
		c.taps[i] = c.D[i].Tap()
	}
	for i := range c.DDRAM {
		c.DDRAM[i] = ' '
	}
	c.E.OnEdge(c.onE)
	return c
}

// Nets returns every net, in RS, RW, E, D4 to D7 order.
func (c *Controller) Nets() []*linetest.Net {
	return []*linetest.Net{c.RS, c.RW, c.E, c.D[0], c.D[1], c.D[2], c.D[3]}
}

// Row returns the first n characters of row 0 or 1.
func (c *Controller) Row(row, n int) string {
	base := 0x40 * row
	var b strings.Builder
	for i := 0; i < n && base+i < len(c.DDRAM); i++ {
		b.WriteByte(c.DDRAM[base+i])
	}
	return b.String()
}

func (c *Controller) onE(l gpio.Level) {
	// Only complete pulses count. E idles high on a fresh net.
	switch {
	case l == gpio.High:
		c.strobe = true
	case !c.strobe:
		return
	default:
		c.strobe = false
	}
	read := c.RW.Level() == gpio.High
	switch {
	case read && l == gpio.High:
		c.answer()
	case read:
		for _, t := range c.taps {
			t.Set(linetest.Released)
		}
		if c.lowRead {
			c.StatusReads++
			if c.Busy > 0 {
				c.Busy--
			}
		}
		c.lowRead = !c.lowRead
	case l == gpio.Low:
		c.latch()
	}
}

// answer drives the requested nibble of the status or data register.
func (c *Controller) answer() {
	var v byte
	if c.RS.Level() == gpio.High {
		v = c.DDRAM[c.AC&0x7f]
	} else {
		v = c.AC & 0x7f
		if c.Busy > 0 {
			v |= 0x80
		}
	}
	n := v >> 4
	if c.lowRead {
		n = v & 0x0f
	}
	for i, t := range c.taps {
		if n&(1<<uint(i)) != 0 {
			t.Set(linetest.Released)
		} else {
			t.Set(linetest.DriveLow)
		}
	}
}

func (c *Controller) latch() {
	var n byte
	for i, d := range c.D {
		if d.Level() == gpio.High {
			n |= 1 << uint(i)
		}
	}
	if !c.FourBit {
		c.ModeNibbles = append(c.ModeNibbles, n)
		if n == 0x02 {
			c.FourBit = true
		}
		return
	}
	if !c.pending {
		c.high = n
		c.pending = true
		return
	}
	c.pending = false
	c.exec(c.high<<4|n, c.RS.Level() == gpio.High)
}

func (c *Controller) exec(b byte, data bool) {
	c.Busy += c.Latency
	if data {
		c.Data = append(c.Data, b)
		c.DDRAM[c.AC&0x7f] = b
		c.AC = (c.AC + 1) & 0x7f
		return
	}
	c.Commands = append(c.Commands, b)
	switch {
	case b&0x80 != 0:
		c.AC = b & 0x7f
	case b == 0x01:
		for i := range c.DDRAM {
			c.DDRAM[i] = ' '
		}
		c.AC = 0
	case b&0xfe == 0x02:
		c.AC = 0
	}
}

// Expander connects the controller to the 8 lines of a simulated PCF8574, as
// wired on common LCD backpacks: P0 RS, P1 RW, P2 E, P3 backlight, P4 to P7
// D4 to D7. It implements twowiretest.Port.
type Expander struct {
	// Backlight is the net of the backlight line.
	Backlight *linetest.Net

	nets [8]*linetest.Net
	taps [8]*linetest.Tap
}

// NewExpander attaches an expander to c.
func NewExpander(c *Controller) *Expander {
	x := &Expander{Backlight: linetest.NewNet("BL")}
	x.nets = [8]*linetest.Net{c.RS, c.RW, c.E, x.Backlight, c.D[0], c.D[1], c.D[2], c.D[3]}
	for i, n := range x.nets {
		x.taps[i] = n.Tap()
	}
	return x
}

// Set drives the lines from b. A high bit only releases its line.
func (x *Expander) Set(b byte) {
	for i, t := range x.taps {
		if b&(1<<uint(i)) != 0 {
			t.Set(linetest.Released)
		} else {
			t.Set(linetest.DriveLow)
		}
	}
}

// Get returns the levels of the lines.
func (x *Expander) Get() byte {
	var b byte
	for i, n := range x.nets {
		if n.Level() == gpio.High {
			b |= 1 << uint(i)
		}
	}
	return b
}
