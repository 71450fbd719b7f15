// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialtx transmits asynchronous serial frames (8N1) on a single
// GPIO.
//
// There is no receive path, no parity and no framing error detection. Each
// byte is a start bit (low), 8 data bits least significant first and a stop
// bit (high), every bit held for 1/Baud. Bytes follow each other back to back.
package serialtx

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/inflex/bitbanging/line"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available to a Dev.
type Opts struct {
	// Baud is the bit rate. Defaults to 9600 Hz.
	Baud physic.Frequency
	// Wait is the delay primitive. Defaults to line.Spin.
	Wait line.Waiter
}

// Dev is a transmit-only serial line.
type Dev struct {
	mu   sync.Mutex
	tx   gpio.PinOut
	wait line.Waiter
	baud physic.Frequency
	bit  time.Duration
}

// New returns a Dev transmitting on tx and drives the line to its idle high
// level.
func New(tx gpio.PinOut, opts *Opts) (*Dev, error) {
	if tx == nil {
		return nil, errors.New("serialtx: tx pin is required")
	}
	if opts == nil {
		opts = &Opts{}
	}
	d := &Dev{tx: tx, wait: opts.Wait, baud: opts.Baud}
	if d.wait == nil {
		d.wait = line.Spin
	}
	if d.baud == 0 {
		d.baud = 9600 * physic.Hertz
	}
	if d.baud < physic.Hertz || d.baud > 10*physic.MegaHertz {
		return nil, fmt.Errorf("serialtx: invalid baud rate %s", d.baud)
	}
	d.bit = d.baud.Period()
	if err := d.tx.Out(gpio.High); err != nil {
		return nil, err
	}
	return d, nil
}

// SendByte transmits one frame.
func (d *Dev) SendByte(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame(b)
}

// SendString transmits text up to its end or its first NUL byte.
func (d *Dev) SendString(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < len(text) && text[i] != 0; i++ {
		if err := d.frame(text[i]); err != nil {
			return err
		}
	}
	return nil
}

// Write implements io.Writer. Every byte of p is sent, NUL included.
func (d *Dev) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range p {
		if err := d.frame(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Bit returns the duration of one bit.
func (d *Dev) Bit() time.Duration {
	return d.bit
}

func (d *Dev) String() string {
	return fmt.Sprintf("serialtx(%s, %s)", d.tx, d.baud)
}

// Halt leaves the line idle high.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx.Out(gpio.High)
}

func (d *Dev) frame(b byte) error {
	if err := d.hold(gpio.Low); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		if err := d.hold(b&1 != 0); err != nil {
			return err
		}
		b >>= 1
	}
	return d.hold(gpio.High)
}

// hold drives l for one bit time.
func (d *Dev) hold(l gpio.Level) error {
	if err := d.tx.Out(l); err != nil {
		return err
	}
	d.wait.Wait(d.bit)
	return nil
}

var _ io.Writer = &Dev{}
var _ conn.Resource = &Dev{}
