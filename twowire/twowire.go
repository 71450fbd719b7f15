// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package twowire

import (
	"errors"
	"fmt"
	"time"

	"github.com/inflex/bitbanging/line"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Read and Write are the direction flags stored in bit 0 of an address byte.
const (
	Write byte = 0
	Read  byte = 1
)

// Address returns the wire byte for the 7 bit device address addr and the
// direction flag rw.
func Address(addr uint16, rw byte) byte {
	return byte(addr<<1) | rw&1
}

// Ack is the ninth bit of every byte transfer, sent by the receiver.
//
// The polarity is inverted: the receiver pulls SDA low to acknowledge, and a
// released (high) line means the byte was not acknowledged.
type Ack gpio.Level

const (
	ACK  = Ack(gpio.Low)
	NACK = Ack(gpio.High)
)

func (a Ack) String() string {
	if a == ACK {
		return "ACK"
	}
	return "NACK"
}

var (
	// ErrNack is returned when a peer did not acknowledge an address or a
	// data byte.
	ErrNack = errors.New("twowire: not acknowledged")
	// ErrTimeout is returned by the bounded variants when a peer kept SCL low
	// for too long or never became ready. The default unbounded operations
	// never return it.
	ErrTimeout = errors.New("twowire: peer timeout")
)

// Opts represents the options available to a Dev.
type Opts struct {
	// Frequency is the target SCL frequency. Bit timing uses a quarter and a
	// half of its period.
	Frequency physic.Frequency
	// Pull is applied to SCL and SDA when they are released. gpio.Float
	// expects external pull-up resistors.
	Pull gpio.Pull
	// StretchLimit is the number of times SCL may be polled low while a peer
	// stretches the clock before ErrTimeout is returned. Zero waits forever.
	StretchLimit int
	// Wait is the delay primitive. Defaults to line.Spin.
	Wait line.Waiter
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Frequency: 100 * physic.KiloHertz,
	Pull:      gpio.Float,
}

// Dev is a two-wire bus master.
//
// A Dev assumes exclusive ownership of its two pins. Its methods must not be
// called concurrently: interleaved calls corrupt the bus state. Use Bus when
// transactions come from several goroutines.
type Dev struct {
	scl line.OpenDrain
	sda line.OpenDrain

	wait         line.Waiter
	quarter      time.Duration
	half         time.Duration
	stretchLimit int
}

// New returns a Dev on scl and sda with both lines released.
func New(scl, sda gpio.PinIO, opts *Opts) (*Dev, error) {
	if scl == nil || sda == nil {
		return nil, errors.New("twowire: scl and sda are required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.StretchLimit < 0 {
		return nil, fmt.Errorf("twowire: invalid StretchLimit %d", opts.StretchLimit)
	}
	f := opts.Frequency
	if f == 0 {
		f = DefaultOpts.Frequency
	}
	d := &Dev{
		scl:          line.OpenDrain{Pin: scl, Pull: opts.Pull},
		sda:          line.OpenDrain{Pin: sda, Pull: opts.Pull},
		wait:         opts.Wait,
		stretchLimit: opts.StretchLimit,
	}
	if d.wait == nil {
		d.wait = line.Spin
	}
	if err := d.setSpeed(f); err != nil {
		return nil, err
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

// Init puts the bus in its idle state by releasing both lines.
//
// It must be called once before the first transaction. New already does.
func (d *Dev) Init() error {
	if err := d.sda.Release(); err != nil {
		return err
	}
	return d.scl.Release()
}

// Start issues a start condition followed by the address byte addr and
// returns the peer's acknowledgment.
//
// The bus must be idle.
func (d *Dev) Start(addr byte) (Ack, error) {
	// SDA falling while SCL is high.
	if err := d.sda.Low(); err != nil {
		return NACK, err
	}
	d.wait.Wait(d.quarter)
	return d.WriteByte(addr)
}

// StartRepeated issues a start condition in the middle of a transaction,
// without a stop, followed by the address byte addr.
func (d *Dev) StartRepeated(addr byte) (Ack, error) {
	if err := d.scl.Low(); err != nil {
		return NACK, err
	}
	if err := d.sda.Release(); err != nil {
		return NACK, err
	}
	d.wait.Wait(d.half)
	if err := d.scl.Release(); err != nil {
		return NACK, err
	}
	d.wait.Wait(d.quarter)
	if err := d.sda.Low(); err != nil {
		return NACK, err
	}
	d.wait.Wait(d.quarter)
	return d.WriteByte(addr)
}

// StartAndWaitForReady issues start conditions with addr until the peer
// acknowledges, sending a stop after every refusal.
//
// This is how a busy peer, e.g. an EEPROM in its internal write cycle, is
// polled. It never gives up: if the peer never acknowledges the call blocks
// forever. See StartWithRetry for a bounded version.
func (d *Dev) StartAndWaitForReady(addr byte) error {
	for {
		ack, err := d.startPoll(addr)
		if err != nil {
			return err
		}
		if ack == ACK {
			return nil
		}
		if err := d.Stop(); err != nil {
			return err
		}
	}
}

// StartWithRetry is StartAndWaitForReady giving up after attempts refusals.
//
// It returns an error wrapping ErrTimeout when the peer never acknowledged;
// the bus is left idle in that case.
func (d *Dev) StartWithRetry(addr byte, attempts int) error {
	if attempts < 1 {
		return fmt.Errorf("twowire: invalid attempts %d", attempts)
	}
	for i := 0; i < attempts; i++ {
		ack, err := d.startPoll(addr)
		if err != nil {
			return err
		}
		if ack == ACK {
			return nil
		}
		if err := d.Stop(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: 0x%02x not ready after %d attempts", ErrTimeout, addr, attempts)
}

func (d *Dev) startPoll(addr byte) (Ack, error) {
	if err := d.sda.Low(); err != nil {
		return NACK, err
	}
	d.wait.Wait(d.half)
	return d.WriteByte(addr)
}

// Stop issues a stop condition and leaves both lines released.
//
// SCL is released before SDA so the rising SDA edge happens while SCL is
// high.
func (d *Dev) Stop() error {
	if err := d.scl.Low(); err != nil {
		return err
	}
	if err := d.sda.Low(); err != nil {
		return err
	}
	d.wait.Wait(d.half)
	if err := d.scl.Release(); err != nil {
		return err
	}
	d.wait.Wait(d.quarter)
	if err := d.sda.Release(); err != nil {
		return err
	}
	d.wait.Wait(d.half)
	return nil
}

// WriteByte clocks out b, most significant bit first, and returns the
// receiver's acknowledgment.
//
// The caller must own the bus, i.e. have issued Start or StartRepeated.
//
// The acknowledgment is part of the result, so Dev does not implement
// io.ByteWriter.
func (d *Dev) WriteByte(b byte) (Ack, error) {
	for i := 0; i < 8; i++ {
		if err := d.scl.Low(); err != nil {
			return NACK, err
		}
		if err := d.sda.Set(b&0x80 != 0); err != nil {
			return NACK, err
		}
		d.wait.Wait(d.quarter)
		if err := d.scl.Release(); err != nil {
			return NACK, err
		}
		d.wait.Wait(d.half)
		b <<= 1
	}
	l, err := d.ackClock(false)
	return Ack(l), err
}

// ReadByte clocks in a byte, most significant bit first.
//
// more is sent as the acknowledgment: true asks the peer for another byte,
// false tells it the transfer is over. Dev does not implement io.ByteReader.
func (d *Dev) ReadByte(more bool) (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		if err := d.scl.Low(); err != nil {
			return 0, err
		}
		// SDA may still be held low by the ack we sent for the previous byte.
		// Release it on every bit or the peer cannot drive a 1.
		if err := d.sda.Release(); err != nil {
			return 0, err
		}
		d.wait.Wait(d.quarter)
		if err := d.scl.Release(); err != nil {
			return 0, err
		}
		d.wait.Wait(d.half)
		b <<= 1
		if d.sda.Read() == gpio.High {
			b |= 1
		}
	}
	_, err := d.ackClock(more)
	return b, err
}

// ackClock runs the ninth clock pulse.
//
// SDA is pulled low when ack is true and released otherwise. After SCL is
// released the peer may keep it low; SDA is sampled only once SCL reads high.
func (d *Dev) ackClock(ack bool) (gpio.Level, error) {
	if err := d.scl.Low(); err != nil {
		return gpio.High, err
	}
	if err := d.sda.Set(!ack); err != nil {
		return gpio.High, err
	}
	d.wait.Wait(d.half)
	if err := d.scl.Release(); err != nil {
		return gpio.High, err
	}
	if err := d.waitClock(); err != nil {
		return gpio.High, err
	}
	l := d.sda.Read()
	d.wait.Wait(d.half)
	return l, nil
}

// waitClock spins until SCL reads high.
func (d *Dev) waitClock() error {
	for polls := 0; d.scl.Read() == gpio.Low; polls++ {
		if d.stretchLimit > 0 && polls >= d.stretchLimit {
			return fmt.Errorf("%w: SCL held low for %d polls", ErrTimeout, polls)
		}
	}
	return nil
}

func (d *Dev) setSpeed(f physic.Frequency) error {
	if f < physic.Hertz || f > 5*physic.MegaHertz {
		return fmt.Errorf("twowire: invalid frequency %s", f)
	}
	p := f.Period()
	d.half = p / 2
	d.quarter = p / 4
	return nil
}

// SCL returns the clock pin.
func (d *Dev) SCL() gpio.PinIO {
	return d.scl.Pin
}

// SDA returns the data pin.
func (d *Dev) SDA() gpio.PinIO {
	return d.sda.Pin
}

func (d *Dev) String() string {
	return fmt.Sprintf("twowire(%s, %s)", d.scl.String(), d.sda.String())
}

// Halt implements conn.Resource. It releases both lines.
func (d *Dev) Halt() error {
	return d.Init()
}

var _ conn.Resource = &Dev{}
