// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package charlcd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/inflex/bitbanging/charlcd/charlcdtest"
	"github.com/inflex/bitbanging/line/linetest"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
)

type rig struct {
	lcd   *charlcdtest.Controller
	clock *linetest.Clock
	rs    *linetest.Pin
	rw    *linetest.Pin
	e     *linetest.Pin
	data  [4]gpio.PinIO
}

func newRig(t *testing.T) *rig {
	t.Helper()
	c := charlcdtest.NewController()
	r := &rig{
		lcd:   c,
		clock: &linetest.Clock{},
		rs:    linetest.NewPin("GPIO25", 25, c.RS),
		rw:    linetest.NewPin("GPIO24", 24, c.RW),
		e:     linetest.NewPin("GPIO23", 23, c.E),
	}
	for i := range r.data {
		r.data[i] = linetest.NewPin([...]string{"GPIO17", "GPIO18", "GPIO27", "GPIO22"}[i], 0, c.D[i])
	}
	return r
}

func (r *rig) open(t *testing.T, opts *Opts) *Dev {
	t.Helper()
	if opts == nil {
		opts = &Opts{}
	}
	opts.Wait = r.clock
	d, err := New(r.rs, r.rw, r.e, r.data, opts)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// reset forgets everything the controller and the clock saw so far.
func (r *rig) reset() {
	r.lcd.Commands = nil
	r.lcd.Data = nil
	r.lcd.StatusReads = 0
	r.clock.Waits = nil
}

func TestNewInit(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)

	if !bytes.Equal(r.lcd.ModeNibbles, []byte{3, 3, 3, 2}) {
		t.Errorf("8 bit mode nibbles %v, expected [3 3 3 2]", r.lcd.ModeNibbles)
	}
	if !r.lcd.FourBit {
		t.Fatal("controller not switched to 4 bit mode")
	}
	if !bytes.Equal(r.lcd.Commands, []byte{0x0c, 0x06, 0x01}) {
		t.Errorf("commands % x, expected 0c 06 01", r.lcd.Commands)
	}
	var long []time.Duration
	for _, w := range r.clock.Waits {
		if w >= 100*time.Microsecond {
			long = append(long, w)
		}
	}
	expected := []time.Duration{
		20 * time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond, 40 * time.Millisecond,
		100 * time.Microsecond, 100 * time.Microsecond,
		100 * time.Microsecond, 2 * time.Millisecond,
		100 * time.Microsecond, 2 * time.Millisecond,
	}
	if len(long) != len(expected) {
		t.Fatalf("waits %v, expected %v", long, expected)
	}
	for i := range long {
		if long[i] != expected[i] {
			t.Fatalf("waits %v, expected %v", long, expected)
		}
	}
	if d.Rows() != 2 || d.Cols() != 16 {
		t.Errorf("geometry %dx%d, expected 2x16", d.Rows(), d.Cols())
	}
	if r.rw.Net().Level() != gpio.Low {
		t.Error("R/W left high after init")
	}
}

func TestNewErrors(t *testing.T) {
	r := newRig(t)
	data := [4]gpio.PinIO{r.data[0], nil, r.data[2], r.data[3]}
	for _, tc := range []struct {
		name string
		rs   gpio.PinOut
		data [4]gpio.PinIO
		opts Opts
	}{
		{"rs", nil, r.data, Opts{}},
		{"d5", r.rs, data, Opts{}},
		{"rows", r.rs, r.data, Opts{Rows: 4}},
		{"cols", r.rs, r.data, Opts{Cols: 41}},
		{"busy", r.rs, r.data, Opts{BusyLimit: -1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := tc.opts
			opts.Wait = r.clock
			if _, err := New(tc.rs, r.rw, r.e, tc.data, &opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGotoXY(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	r.reset()
	for _, tc := range []struct {
		col, row uint8
		cmd      byte
	}{
		{0, 0, 0x80},
		{2, 1, 0xc2},
		{15, 0, 0x8f},
		{15, 1, 0xcf},
	} {
		if err := d.GotoXY(tc.col, tc.row); err != nil {
			t.Fatal(err)
		}
		if c := r.lcd.Commands[len(r.lcd.Commands)-1]; c != tc.cmd {
			t.Errorf("GotoXY(%d, %d) sent 0x%02x, expected 0x%02x", tc.col, tc.row, c, tc.cmd)
		}
	}
}

func TestWriteString(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	r.reset()
	if n, err := d.WriteString("Hello"); n != 5 || err != nil {
		t.Fatalf("WriteString() = %d, %v", n, err)
	}
	if err := d.GotoXY(0, 1); err != nil {
		t.Fatal(err)
	}
	if n, err := d.WriteString("ab\x00cd"); n != 2 || err != nil {
		t.Fatalf("WriteString() = %d, %v, expected 2", n, err)
	}
	if got := r.lcd.Row(0, 6); got != "Hello " {
		t.Errorf("row 0 %q", got)
	}
	if got := r.lcd.Row(1, 3); got != "ab " {
		t.Errorf("row 1 %q", got)
	}
	// Every character waits for the controller exactly once.
	if r.lcd.StatusReads != 2*8 {
		t.Errorf("%d status reads, expected 16", r.lcd.StatusReads)
	}
	if r.rs.Net().Level() != gpio.Low {
		t.Error("RS left high after data")
	}
}

func TestWriteNul(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	r.reset()
	if n, err := d.Write([]byte{'a', 0, 'b'}); n != 3 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if !bytes.Equal(r.lcd.Data, []byte{'a', 0, 'b'}) {
		t.Errorf("data % x, expected 61 00 62", r.lcd.Data)
	}
	if err := d.WriteData('c'); err != nil {
		t.Fatal(err)
	}
	if r.lcd.Data[3] != 'c' {
		t.Errorf("data % x", r.lcd.Data)
	}
}

func TestBusyWait(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	r.reset()
	r.lcd.Busy = 3
	if err := d.GotoXY(2, 1); err != nil {
		t.Fatal(err)
	}
	// 3 busy reads, 1 ready read, then the address counter read.
	if r.lcd.StatusReads != 5 {
		t.Errorf("%d status reads, expected 5", r.lcd.StatusReads)
	}
	if n := r.clock.Count(delaySettle); n != 1 {
		t.Errorf("settle delay waited %d times, expected 1", n)
	}
	if !bytes.Equal(r.lcd.Commands, []byte{0xc2}) {
		t.Errorf("commands % x, expected c2", r.lcd.Commands)
	}
}

func TestReadSetup(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	r.reset()
	var rose time.Duration
	var setups []time.Duration
	r.lcd.E.OnEdge(func(l gpio.Level) {
		if l == gpio.High {
			rose = r.clock.Now()
		}
	})
	r.lcd.D[3].OnRead(func() {
		setups = append(setups, r.clock.Now()-rose)
	})
	r.lcd.Busy = 1
	if err := d.GotoXY(0, 0); err != nil {
		t.Fatal(err)
	}
	// 2 status reads of 2 nibbles each, then the address counter read.
	if len(setups) != 6 {
		t.Fatalf("%d samples, expected 6", len(setups))
	}
	for i, s := range setups {
		if s != delayReadSetup {
			t.Errorf("sample %d taken %s after E rose, expected %s", i, s, delayReadSetup)
		}
	}
}

func TestBusyLatency(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	r.reset()
	r.lcd.Latency = 2
	if _, err := d.WriteString("ok"); err != nil {
		t.Fatal(err)
	}
	// The second character sees the 2 busy reads caused by the first.
	if r.lcd.StatusReads != 2+2+2 {
		t.Errorf("%d status reads, expected 6", r.lcd.StatusReads)
	}
	if got := r.lcd.Row(0, 2); got != "ok" {
		t.Errorf("row 0 %q", got)
	}
}

func TestBusyLimit(t *testing.T) {
	r := newRig(t)
	d := r.open(t, &Opts{BusyLimit: 2})
	r.reset()
	r.lcd.Busy = 10
	err := d.Clear()
	if !errors.Is(err, ErrBusyTimeout) {
		t.Fatalf("expected ErrBusyTimeout, got %v", err)
	}
	if r.lcd.StatusReads != 3 {
		t.Errorf("%d status reads, expected 3", r.lcd.StatusReads)
	}
	if len(r.lcd.Commands) != 0 {
		t.Errorf("commands % x sent to a busy controller", r.lcd.Commands)
	}
}

func TestAddress(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	if err := d.GotoXY(5, 1); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteData('x'); err != nil {
		t.Fatal(err)
	}
	if a := d.Address(); a != 0x45 {
		t.Errorf("address 0x%02x, expected 0x45", a)
	}
	if err := d.Home(); err != nil {
		t.Fatal(err)
	}
	if a := d.Address(); a != 0x46 {
		t.Errorf("address 0x%02x, expected 0x46", a)
	}
}

func TestCommands(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	for _, tc := range []struct {
		name string
		f    func() error
		cmd  []byte
	}{
		{"clear", d.Clear, []byte{0x01}},
		{"home", d.Home, []byte{0x02}},
		{"underline", func() error { return d.Cursor(display.CursorUnderline) }, []byte{0x0e}},
		{"blink", func() error { return d.Cursor(display.CursorBlink) }, []byte{0x0f}},
		{"off", func() error { return d.Cursor(display.CursorOff) }, []byte{0x0c}},
		{"both", func() error { return d.Cursor(display.CursorUnderline, display.CursorBlock) }, []byte{0x0f}},
		{"display off", func() error { return d.Display(false) }, []byte{0x0b}},
		{"display on", func() error { return d.Display(true) }, []byte{0x0f}},
		{"scroll", func() error { return d.AutoScroll(true) }, []byte{0x07}},
		{"no scroll", func() error { return d.AutoScroll(false) }, []byte{0x06}},
		{"forward", func() error { return d.Move(display.Forward) }, []byte{0x14}},
		{"backward", func() error { return d.Move(display.Backward) }, []byte{0x10}},
		{"move to", func() error { return d.MoveTo(2, 3) }, []byte{0xc2}},
		{"halt", d.Halt, []byte{0x01, 0x0b}},
		{"raw", func() error { return d.WriteCommand(0x40) }, []byte{0x40}},
	} {
		r.reset()
		if err := tc.f(); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !bytes.Equal(r.lcd.Commands, tc.cmd) {
			t.Errorf("%s: sent % x, expected % x", tc.name, r.lcd.Commands, tc.cmd)
		}
	}
}

func TestMoveToRange(t *testing.T) {
	r := newRig(t)
	d := r.open(t, nil)
	r.reset()
	for _, pos := range [][2]int{{0, 1}, {3, 1}, {1, 0}, {1, 17}} {
		if err := d.MoveTo(pos[0], pos[1]); err == nil {
			t.Errorf("MoveTo(%d, %d) expected error", pos[0], pos[1])
		}
	}
	if len(r.lcd.Commands) != 0 {
		t.Errorf("commands % x sent for invalid positions", r.lcd.Commands)
	}
	if err := d.Cursor(display.CursorMode(99)); err == nil {
		t.Error("expected error for unknown cursor mode")
	}
	if err := d.Move(display.CursorDirection(9)); !errors.Is(err, display.ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}
}

func TestString(t *testing.T) {
	r := newRig(t)
	d := r.open(t, &Opts{Rows: 1, Cols: 8})
	s := d.String()
	for _, sub := range []string{"rs=GPIO25", "rw=GPIO24", "e=GPIO23", "GPIO22", "} 1x8"} {
		if !strings.Contains(s, sub) {
			t.Errorf("String() = %q, expected %q in it", s, sub)
		}
	}
}
