// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serialtx

import (
	"testing"
	"time"

	"github.com/inflex/bitbanging/line/linetest"
	"github.com/inflex/bitbanging/waveform"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

type rig struct {
	dev   *Dev
	clock *linetest.Clock
	trace *waveform.Trace
}

func newRig(t *testing.T, baud physic.Frequency) *rig {
	t.Helper()
	net := linetest.NewNet("TX")
	c := &linetest.Clock{}
	rec := linetest.NewRecorder(c, net)
	d, err := New(linetest.NewPin("GPIO14", 14, net), &Opts{Baud: baud, Wait: c})
	if err != nil {
		t.Fatal(err)
	}
	return &rig{dev: d, clock: c, trace: rec.Trace("TX")}
}

// decode samples a frame starting at start in the middle of each bit.
func (r *rig) decode(start time.Duration) []gpio.Level {
	bit := r.dev.Bit()
	out := make([]gpio.Level, 10)
	for i := range out {
		out[i] = r.trace.LevelAt(start + time.Duration(i)*bit + bit/2)
	}
	return out
}

func frameOf(b byte) []gpio.Level {
	out := []gpio.Level{gpio.Low}
	for i := 0; i < 8; i++ {
		out = append(out, b&(1<<uint(i)) != 0)
	}
	return append(out, gpio.High)
}

func equal(a, b []gpio.Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSendByte(t *testing.T) {
	r := newRig(t, 0)
	if err := r.dev.SendByte(0b10110010); err != nil {
		t.Fatal(err)
	}
	expected := []gpio.Level{gpio.Low, false, true, false, false, true, true, false, true, gpio.High}
	if got := r.decode(0); !equal(got, expected) {
		t.Errorf("frame %v, expected %v", got, expected)
	}
	if len(r.clock.Waits) != 10 {
		t.Fatalf("%d waits, expected 10", len(r.clock.Waits))
	}
	for _, w := range r.clock.Waits {
		if w != r.dev.Bit() {
			t.Fatalf("waits %v, expected all %s", r.clock.Waits, r.dev.Bit())
		}
	}
	if r.trace.LevelAt(r.clock.Now()) != gpio.High {
		t.Error("line not idle after the stop bit")
	}
}

func TestSendByteAllValues(t *testing.T) {
	r := newRig(t, 115200*physic.Hertz)
	frame := 10 * r.dev.Bit()
	for i := 0; i < 256; i++ {
		start := r.clock.Now()
		if err := r.dev.SendByte(byte(i)); err != nil {
			t.Fatal(err)
		}
		if r.clock.Now()-start != frame {
			t.Fatalf("0x%02x took %s, expected %s", i, r.clock.Now()-start, frame)
		}
		if got := r.decode(start); !equal(got, frameOf(byte(i))) {
			t.Fatalf("0x%02x frame %v, expected %v", i, got, frameOf(byte(i)))
		}
	}
}

func TestSendString(t *testing.T) {
	r := newRig(t, 0)
	if err := r.dev.SendString("OK\x00lost"); err != nil {
		t.Fatal(err)
	}
	// Back to back frames, nothing after the NUL.
	if r.clock.Now() != 20*r.dev.Bit() {
		t.Errorf("sent for %s, expected two frames", r.clock.Now())
	}
	frame := 10 * r.dev.Bit()
	for i, c := range []byte("OK") {
		if got := r.decode(time.Duration(i) * frame); !equal(got, frameOf(c)) {
			t.Errorf("%q frame %v, expected %v", c, got, frameOf(c))
		}
	}
}

func TestWrite(t *testing.T) {
	r := newRig(t, 0)
	n, err := r.dev.Write([]byte{'a', 0})
	if n != 2 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if got := r.decode(10 * r.dev.Bit()); !equal(got, frameOf(0)) {
		t.Errorf("NUL frame %v", got)
	}
}

func TestNew(t *testing.T) {
	r := newRig(t, 0)
	if b := r.dev.Bit(); b != (9600 * physic.Hertz).Period() {
		t.Errorf("bit %s, expected 9600 baud", b)
	}
	if err := r.dev.Halt(); err != nil {
		t.Fatal(err)
	}
	if r.dev.String() == "" {
		t.Error("empty String()")
	}
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil pin")
	}
	if _, err := New(&linetest.Pin{}, &Opts{Baud: physic.MilliHertz}); err == nil {
		t.Error("expected error for sub hertz baud")
	}
}
