// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package twowire

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Bus runs complete I²C transactions on a Dev.
//
// It implements i2c.BusCloser so any periph.io device driver can talk over
// the bit-banged lines. Transactions are serialized; Bus must be the only
// user of the underlying Dev.
type Bus struct {
	mu  sync.Mutex
	dev *Dev
}

// NewBus returns a Bus using dev.
func NewBus(dev *Dev) *Bus {
	return &Bus{dev: dev}
}

func (b *Bus) String() string {
	return b.dev.String()
}

// Tx implements i2c.Bus.
//
// w is written after the address in write mode. r is then filled after a
// repeated start in read mode, acknowledging every byte but the last. A stop
// always ends the transaction, including on error.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return b.tx(addr, w, r, false)
}

// TxWait is Tx where the first address is polled with
// Dev.StartAndWaitForReady until the peer acknowledges it.
//
// It blocks for as long as the peer refuses its address.
func (b *Bus) TxWait(addr uint16, w, r []byte) error {
	return b.tx(addr, w, r, true)
}

func (b *Bus) tx(addr uint16, w, r []byte, wait bool) error {
	if addr > 0x7f {
		return fmt.Errorf("twowire: invalid address 0x%x; only 7 bit addresses are supported", addr)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// Keep the goroutine on one thread so the OS does not reschedule it in
	// the middle of a byte.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := b.transfer(addr, w, r, wait)
	if errStop := b.dev.Stop(); err == nil {
		err = errStop
	}
	return err
}

func (b *Bus) transfer(addr uint16, w, r []byte, wait bool) error {
	started := false
	start := func(rw byte) error {
		a := Address(addr, rw)
		var ack Ack
		var err error
		switch {
		case started:
			ack, err = b.dev.StartRepeated(a)
		case wait:
			ack, err = ACK, b.dev.StartAndWaitForReady(a)
		default:
			ack, err = b.dev.Start(a)
		}
		started = true
		if err != nil {
			return err
		}
		if ack == NACK {
			return fmt.Errorf("%w: address 0x%02x", ErrNack, addr)
		}
		return nil
	}

	// A transaction with neither w nor r still addresses the peer, which is
	// how a bus is scanned.
	if len(w) != 0 || len(r) == 0 {
		if err := start(Write); err != nil {
			return err
		}
		for i, c := range w {
			ack, err := b.dev.WriteByte(c)
			if err != nil {
				return err
			}
			if ack == NACK {
				return fmt.Errorf("%w: byte %d of %d written to 0x%02x", ErrNack, i+1, len(w), addr)
			}
		}
	}
	if len(r) == 0 {
		return nil
	}
	if err := start(Read); err != nil {
		return err
	}
	for i := range r {
		c, err := b.dev.ReadByte(i < len(r)-1)
		if err != nil {
			return err
		}
		r[i] = c
	}
	return nil
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.setSpeed(f)
}

// Close implements i2c.BusCloser. It leaves both lines released.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.Halt()
}

// SCL implements i2c.Pins.
func (b *Bus) SCL() gpio.PinIO {
	return b.dev.SCL()
}

// SDA implements i2c.Pins.
func (b *Bus) SDA() gpio.PinIO {
	return b.dev.SDA()
}

// Scan returns the 7 bit addresses in [0x08, 0x77] that acknowledge an empty
// write.
func (b *Bus) Scan() ([]uint16, error) {
	var found []uint16
	for addr := uint16(0x08); addr <= 0x77; addr++ {
		err := b.Tx(addr, nil, nil)
		if err == nil {
			found = append(found, addr)
			continue
		}
		if !errors.Is(err, ErrNack) {
			return found, err
		}
	}
	return found, nil
}

var _ i2c.BusCloser = &Bus{}
var _ i2c.Pins = &Bus{}
