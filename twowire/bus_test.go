// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package twowire

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

func TestBusTx(t *testing.T) {
	r := newRig(t, nil)
	bus := NewBus(r.dev)
	defer bus.Close()

	if err := bus.Tx(testAddr, []byte{0x10, 1, 2, 3}, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r.peer.Mem[0x10:0x13], []byte{1, 2, 3}) {
		t.Errorf("memory %v, expected [1 2 3]", r.peer.Mem[0x10:0x13])
	}
	r.idle(t)

	got := make([]byte, 3)
	if err := bus.Tx(testAddr, []byte{0x10}, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("read %v, expected [1 2 3]", got)
	}
	acks := r.peer.MasterAcks
	if len(acks) != 3 || !acks[0] || !acks[1] || acks[2] {
		t.Errorf("master acks %v, expected [true true false]", acks)
	}
	// One repeated start, no stop in between.
	if r.peer.Starts != 3 || r.peer.Stops != 2 {
		t.Errorf("expected 3 starts and 2 stops, got %d and %d", r.peer.Starts, r.peer.Stops)
	}
	r.idle(t)
}

func TestBusReadOnly(t *testing.T) {
	r := newRig(t, nil)
	bus := NewBus(r.dev)
	r.peer.Mem[0] = 0xde
	r.peer.Mem[1] = 0xad
	got := make([]byte, 2)
	if err := bus.Tx(testAddr, nil, got); err != nil {
		t.Fatal(err)
	}
	if got[0] != 0xde || got[1] != 0xad {
		t.Errorf("read % x, expected de ad", got)
	}
	if r.peer.Starts != 1 {
		t.Errorf("expected a single start, got %d", r.peer.Starts)
	}
}

func TestBusI2CDev(t *testing.T) {
	r := newRig(t, nil)
	r.peer.Mem[0x42] = 0x99
	d := i2c.Dev{Bus: NewBus(r.dev), Addr: testAddr}
	got := []byte{0}
	if err := d.Tx([]byte{0x42}, got); err != nil {
		t.Fatal(err)
	}
	if got[0] != 0x99 {
		t.Errorf("read 0x%02x, expected 0x99", got[0])
	}
	if _, err := d.Write([]byte{0x43, 0x77}); err != nil {
		t.Fatal(err)
	}
	if r.peer.Mem[0x43] != 0x77 {
		t.Errorf("memory 0x%02x, expected 0x77", r.peer.Mem[0x43])
	}
}

func TestBusNack(t *testing.T) {
	r := newRig(t, nil)
	bus := NewBus(r.dev)
	err := bus.Tx(testAddr+1, []byte{0}, nil)
	if !errors.Is(err, ErrNack) {
		t.Fatalf("expected ErrNack, got %v", err)
	}
	// The transaction must still be closed.
	if r.peer.Stops != 1 {
		t.Errorf("expected a stop after the NACK, got %d", r.peer.Stops)
	}
	r.idle(t)

	if err := bus.Tx(0x80, nil, nil); err == nil || errors.Is(err, ErrNack) {
		t.Errorf("expected an address error, got %v", err)
	}
}

func TestBusTxWait(t *testing.T) {
	r := newRig(t, nil)
	bus := NewBus(r.dev)
	r.peer.Busy = 2
	if err := bus.TxWait(testAddr, []byte{0x00, 0xaa}, nil); err != nil {
		t.Fatal(err)
	}
	if r.peer.Refused != 2 {
		t.Errorf("expected 2 refusals, got %d", r.peer.Refused)
	}
	if r.peer.Mem[0] != 0xaa {
		t.Errorf("memory 0x%02x, expected 0xaa", r.peer.Mem[0])
	}
}

func TestBusScan(t *testing.T) {
	r := newRig(t, nil)
	bus := NewBus(r.dev)
	found, err := bus.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0] != testAddr {
		t.Errorf("found %v, expected [0x%02x]", found, testAddr)
	}
	r.idle(t)
}

func TestBusSetSpeed(t *testing.T) {
	r := newRig(t, nil)
	bus := NewBus(r.dev)
	if err := bus.SetSpeed(400 * physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	if r.dev.half != 1250*time.Nanosecond {
		t.Errorf("half period %s, expected 1.25µs", r.dev.half)
	}
	if err := bus.SetSpeed(0); err == nil {
		t.Error("expected error for 0Hz")
	}
	if bus.SCL() != r.scl || bus.SDA() != r.sda {
		t.Error("bus pins do not match the device")
	}
	if bus.String() != r.dev.String() {
		t.Errorf("String() = %q", bus.String())
	}
}
