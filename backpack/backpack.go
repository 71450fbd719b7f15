// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package backpack drives the PCF8574 adapter soldered to the back of many
// 1602 and 2004 character LCDs, so a charlcd.Dev can run over a two-wire bus.
//
// The PCF8574 has no registers: writing a byte sets its 8 quasi-bidirectional
// lines and reading a byte returns their levels. A line written high is only
// weakly pulled up, which is how the LCD can drive the data lines on reads.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/pcf8574.pdf
//
// https://www.handsontec.com/dataspecs/I2C_2004_LCD.pdf
package backpack

import (
	"fmt"
	"sync"
	"time"

	"github.com/inflex/bitbanging/charlcd"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Expander line wired to each LCD signal.
const (
	RS        = 0
	RW        = 1
	E         = 2
	Backlight = 3
	D4        = 4
	D5        = 5
	D6        = 6
	D7        = 7
)

// DefaultAddress is the address of a PCF8574 with A0 to A2 pulled high. The
// PCF8574A variant answers at 0x3f instead.
const DefaultAddress uint16 = 0x27

// Dev is a PCF8574 LCD backpack.
type Dev struct {
	mu    sync.Mutex
	d     i2c.Dev
	value byte
	pins  [8]expPin
	err   error
}

// New returns a backpack at addr on bus with every line low and the
// backlight off.
func New(bus i2c.Bus, addr uint16) (*Dev, error) {
	d := &Dev{d: i2c.Dev{Bus: bus, Addr: addr}}
	for i := range d.pins {
		d.pins[i] = expPin{dev: d, number: i, name: fmt.Sprintf("%s_P%d", d, i)}
	}
	if _, err := d.d.Write([]byte{0}); err != nil {
		return nil, fmt.Errorf("backpack: %w", err)
	}
	return d, nil
}

// Pin returns expander line n, 0 to 7. It returns nil when n is out of range.
func (d *Dev) Pin(n int) gpio.PinIO {
	if n < 0 || n >= len(d.pins) {
		return nil
	}
	return &d.pins[n]
}

// LCD returns a charlcd.Dev on the standard backpack wiring.
//
// A status read that fails on the bus returns the busy flag set: it is never
// mistaken for a ready display. Set opts.BusyLimit to turn such a failure into
// charlcd.ErrBusyTimeout instead of polling forever; Err then returns the bus
// error.
func (d *Dev) LCD(opts *charlcd.Opts) (*charlcd.Dev, error) {
	return charlcd.New(d.Pin(RS), d.Pin(RW), d.Pin(E),
		[4]gpio.PinIO{d.Pin(D4), d.Pin(D5), d.Pin(D6), d.Pin(D7)}, opts)
}

// SetBacklight turns the LCD backlight transistor on or off.
func (d *Dev) SetBacklight(on bool) error {
	return d.pins[Backlight].Out(gpio.Level(on))
}

// Err returns the last error met by a pin Read, which cannot report it.
func (d *Dev) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Dev) String() string {
	return fmt.Sprintf("PCF8574_%x", d.d.Addr)
}

// Halt turns every line and the backlight off.
func (d *Dev) Halt() error {
	return d.write(0, 0xff)
}

// write updates the lines in mask to value. Unchanged states are not sent.
func (d *Dev) write(value, mask byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.value&^mask | value&mask
	if v == d.value {
		return nil
	}
	if _, err := d.d.Write([]byte{v}); err != nil {
		return fmt.Errorf("backpack: %w", err)
	}
	d.value = v
	return nil
}

func (d *Dev) read() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r [1]byte
	if err := d.d.Tx(nil, r[:]); err != nil {
		d.err = fmt.Errorf("backpack: %w", err)
		return 0, d.err
	}
	return r[0], nil
}

// expPin is one line of the expander.
type expPin struct {
	dev    *Dev
	number int
	name   string
}

func (p *expPin) String() string {
	return p.name
}

func (p *expPin) Name() string {
	return p.name
}

func (p *expPin) Number() int {
	return p.number
}

func (p *expPin) Function() string {
	return "PCF8574"
}

func (p *expPin) Halt() error {
	return nil
}

// In writes the line high so the peer can pull it low. The weak pull-up is
// always on.
func (p *expPin) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return fmt.Errorf("backpack: %s: edge detection is not supported", p.name)
	}
	m := byte(1) << uint(p.number)
	return p.dev.write(m, m)
}

// Read returns the line level, or High if the bus transaction failed, the
// level of a released line. The error is kept for Dev.Err.
func (p *expPin) Read() gpio.Level {
	v, err := p.dev.read()
	if err != nil {
		return gpio.High
	}
	return v&(1<<uint(p.number)) != 0
}

func (p *expPin) WaitForEdge(timeout time.Duration) bool {
	return false
}

func (p *expPin) Pull() gpio.Pull {
	return gpio.PullUp
}

func (p *expPin) DefaultPull() gpio.Pull {
	return gpio.PullUp
}

func (p *expPin) Out(l gpio.Level) error {
	m := byte(1) << uint(p.number)
	var v byte
	if l {
		v = m
	}
	return p.dev.write(v, m)
}

func (p *expPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return fmt.Errorf("backpack: %s: PWM is not supported", p.name)
}

var _ gpio.PinIO = &expPin{}
var _ conn.Resource = &Dev{}
