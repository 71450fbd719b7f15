// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package twowiretest implements a simulated peer for the twowire package.
package twowiretest

import (
	"fmt"

	"github.com/inflex/bitbanging/line/linetest"
	"periph.io/x/conn/v3/gpio"
)

type phase int

const (
	idle     phase = iota // waiting for a start condition
	receive               // shifting in an address or data byte
	ackOut                // driving our ack for the byte just received
	transmit              // shifting out a byte
	ackIn                 // sampling the master's ack
	ignore                // not addressed, waiting for start or stop
)

// Port is the I/O side of a simulated port expander.
type Port interface {
	// Set is called with every byte written to the peer.
	Set(b byte)
	// Get returns the byte to send on a read.
	Get() byte
}

// Peer is a simulated register device on a pair of linetest nets.
//
// It behaves like a small EEPROM: the first byte written after the address
// sets the register pointer, later bytes are stored at the pointer, and reads
// return Mem from the pointer on. The pointer increments after each byte and
// wraps at 256.
//
// Peer reacts to edges synchronously, so the master under test sees its
// responses immediately.
type Peer struct {
	// Addr is the 7 bit address the peer answers to.
	Addr uint16
	// Mem is the register file.
	Mem [256]byte
	// Busy is the number of upcoming address bytes the peer refuses, as a
	// device in its internal write cycle does. It decrements on each refusal.
	Busy int
	// Stretch is the number of SCL reads the peer holds the clock low for at
	// the start of every acknowledgment phase.
	Stretch int
	// Port, when set, turns the peer into an 8 bit port expander such as the
	// PCF8574: data bytes written go to Port.Set and bytes read come from
	// Port.Get. Mem and the register pointer are then unused.
	Port Port

	// Starts and Stops count the conditions seen on the bus, repeated starts
	// included.
	Starts int
	Stops  int
	// Refused counts address bytes that matched Addr but were not
	// acknowledged because of Busy.
	Refused int
	// StretchPolls counts SCL reads observed while the peer held the clock.
	StretchPolls int
	// Received lists data bytes written to the peer, in order, excluding
	// address bytes.
	Received []byte
	// MasterAcks lists the master's acknowledgment for each byte read from the
	// peer: true when SDA was low.
	MasterAcks []bool

	scl, sda *linetest.Tap

	phase     phase
	bits      int
	shift     byte
	out       byte
	ack       bool
	read      bool
	addressed bool
	pointer   byte
	// pointerNext is set while the next data byte is a register address.
	pointerNext bool
	masterAck   bool
	hold        int
	holding     bool
}

// NewPeer attaches a peer answering to addr to the scl and sda nets.
func NewPeer(addr uint16, scl, sda *linetest.Net) *Peer {
	p := &Peer{Addr: addr, scl: scl.Tap(), sda: sda.Tap()}
	scl.OnEdge(p.onSCL)
	scl.OnRead(p.onSCLRead)
	sda.OnEdge(p.onSDA)
	return p
}

func (p *Peer) String() string {
	return fmt.Sprintf("twowiretest.Peer(0x%02x)", p.Addr)
}

// Pointer returns the current register pointer.
func (p *Peer) Pointer() byte {
	return p.pointer
}

func (p *Peer) onSDA(l gpio.Level) {
	if p.scl.Net().Level() == gpio.Low {
		return
	}
	if l == gpio.Low {
		p.Starts++
		p.phase = receive
		p.bits = 0
		p.shift = 0
		p.addressed = false
		return
	}
	p.Stops++
	p.phase = idle
	p.sda.Set(linetest.Released)
}

func (p *Peer) onSCL(l gpio.Level) {
	if l == gpio.High {
		p.rise()
	} else {
		p.fall()
	}
}

// rise handles a rising SCL edge: the moment data is sampled.
func (p *Peer) rise() {
	sda := p.sda.Net().Level()
	switch p.phase {
	case receive:
		p.shift <<= 1
		if sda == gpio.High {
			p.shift |= 1
		}
		p.bits++
	case transmit:
		p.bits++
	case ackIn:
		p.masterAck = sda == gpio.Low
		p.MasterAcks = append(p.MasterAcks, p.masterAck)
	}
}

// fall handles a falling SCL edge: the moment the transmitter changes SDA.
func (p *Peer) fall() {
	switch p.phase {
	case receive:
		if p.bits < 8 {
			return
		}
		p.complete()
		p.phase = ackOut
		if p.ack {
			p.sda.Set(linetest.DriveLow)
			p.stretch()
		}
	case ackOut:
		p.sda.Set(linetest.Released)
		switch {
		case !p.ack:
			p.phase = ignore
		case p.read:
			p.load()
		default:
			p.phase = receive
			p.bits = 0
			p.shift = 0
		}
	case transmit:
		if p.bits < 8 {
			p.drive()
			return
		}
		p.sda.Set(linetest.Released)
		p.phase = ackIn
		p.stretch()
	case ackIn:
		if p.masterAck {
			p.load()
			return
		}
		p.sda.Set(linetest.Released)
		p.phase = ignore
	}
}

// complete processes the byte just shifted in and decides the ack.
func (p *Peer) complete() {
	b := p.shift
	if !p.addressed {
		p.addressed = true
		p.read = b&1 == 1
		p.pointerNext = !p.read
		p.ack = uint16(b>>1) == p.Addr
		if p.ack && p.Busy > 0 {
			p.Busy--
			p.Refused++
			p.ack = false
		}
		return
	}
	p.ack = true
	p.Received = append(p.Received, b)
	if p.Port != nil {
		p.Port.Set(b)
		return
	}
	if p.pointerNext {
		// The first data byte of a write is the register address.
		p.pointer = b
		p.pointerNext = false
		return
	}
	p.Mem[p.pointer] = b
	p.pointer++
}

// load starts transmitting Mem[pointer], or the port value.
func (p *Peer) load() {
	if p.Port != nil {
		p.out = p.Port.Get()
	} else {
		p.out = p.Mem[p.pointer]
		p.pointer++
	}
	p.bits = 0
	p.phase = transmit
	p.drive()
}

// drive puts the next bit of out on SDA, most significant first.
func (p *Peer) drive() {
	if p.out&(0x80>>uint(p.bits)) != 0 {
		p.sda.Set(linetest.Released)
	} else {
		p.sda.Set(linetest.DriveLow)
	}
}

// stretch holds SCL low for the next Stretch reads.
func (p *Peer) stretch() {
	if p.Stretch <= 0 {
		return
	}
	p.hold = p.Stretch
	p.holding = true
	p.scl.Set(linetest.DriveLow)
}

func (p *Peer) onSCLRead() {
	if !p.holding {
		return
	}
	if p.hold > 0 {
		p.hold--
		p.StretchPolls++
		return
	}
	p.holding = false
	p.scl.Set(linetest.Released)
}
