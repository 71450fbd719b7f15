// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package charlcd drives a 2 line character LCD (HD44780 and compatible
// controllers such as the ST7066) over its 4 bit parallel interface.
//
// Unlike hd44780 style drivers that sleep a fixed time after each write, Dev
// reads the controller's busy flag before every command or character, so the
// R/W line must be connected. A controller that never clears its busy flag
// blocks the driver forever unless Opts.BusyLimit is set.
//
// # Datasheet
//
// https://www.sparkfun.com/datasheets/LCD/HD44780.pdf
package charlcd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/inflex/bitbanging/line"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
)

const (
	cmdClear       byte = 0x01
	cmdHome        byte = 0x02
	cmdEntryMode   byte = 0x04
	cmdDisplay     byte = 0x08
	cmdShift       byte = 0x10
	cmdSetDDRAM    byte = 0x80
	entryIncrement byte = 0x02
	entryShift     byte = 0x01
	displayOn      byte = 0x04
	displayCursor  byte = 0x02
	displayBlink   byte = 0x01
	shiftRight     byte = 0x04

	busyFlag byte = 0x80
	rowSpan  byte = 0x40
)

const (
	// delayEnable is the width of the enable strobe on writes, and the time E
	// is held low after a read.
	delayEnable = time.Microsecond
	// delayReadSetup is waited between E rising and sampling D4 to D7 on
	// reads. The controller's data output delay is under 400ns.
	delayReadSetup = time.Microsecond
	// delaySettle is waited once the busy flag clears.
	delaySettle = 100 * time.Microsecond
)

// ErrBusyTimeout is returned when Opts.BusyLimit is set and the controller
// kept its busy flag up for longer.
var ErrBusyTimeout = errors.New("charlcd: controller busy timeout")

// Opts represents the options available to a Dev.
type Opts struct {
	// Rows and Cols describe the glass. Defaults to 2x16. At most 2 rows are
	// supported.
	Rows int
	Cols int
	// BusyLimit is the number of busy status reads tolerated before
	// ErrBusyTimeout is returned. Zero polls forever.
	BusyLimit int
	// Wait is the delay primitive. Defaults to line.Spin.
	Wait line.Waiter
}

// Dev is a character LCD driven through its 4 bit interface.
//
// Methods are serialized by a mutex; the pins must not be shared with
// anything else.
//
// Implements periph.io/x/conn/v3/display.TextDisplay.
type Dev struct {
	mu        sync.Mutex
	rs        gpio.PinOut
	rw        gpio.PinOut
	e         gpio.PinOut
	data      [4]gpio.PinIO
	wait      line.Waiter
	rows      int
	cols      int
	busyLimit int

	addr   byte
	on     bool
	cursor bool
	blink  bool
}

// New returns a Dev for the display wired to rs, rw, e and data (D4 to D7,
// in that order) and runs the controller initialization sequence.
func New(rs, rw, e gpio.PinOut, data [4]gpio.PinIO, opts *Opts) (*Dev, error) {
	if rs == nil || rw == nil || e == nil {
		return nil, errors.New("charlcd: rs, rw and e are required")
	}
	for i, p := range data {
		if p == nil {
			return nil, fmt.Errorf("charlcd: missing data pin D%d", i+4)
		}
	}
	if opts == nil {
		opts = &Opts{}
	}
	d := &Dev{
		rs:        rs,
		rw:        rw,
		e:         e,
		data:      data,
		wait:      opts.Wait,
		rows:      opts.Rows,
		cols:      opts.Cols,
		busyLimit: opts.BusyLimit,
	}
	if d.wait == nil {
		d.wait = line.Spin
	}
	if d.rows == 0 {
		d.rows = 2
	}
	if d.cols == 0 {
		d.cols = 16
	}
	if d.rows < 1 || d.rows > 2 || d.cols < 1 || d.cols > 40 {
		return nil, fmt.Errorf("charlcd: unsupported geometry %dx%d", d.rows, d.cols)
	}
	if d.busyLimit < 0 {
		return nil, fmt.Errorf("charlcd: invalid BusyLimit %d", d.busyLimit)
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

// WriteCommand sends an instruction byte once the controller is ready.
func (d *Dev) WriteCommand(c byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command(c)
}

// WriteData sends a character byte once the controller is ready.
func (d *Dev) WriteData(c byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.char(c)
}

// WriteString writes text up to its end or its first NUL byte and returns
// the number of characters written.
func (d *Dev) WriteString(text string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for ; n < len(text) && text[n] != 0; n++ {
		if err := d.char(text[n]); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Write writes every byte of p as a character. Unlike WriteString, a zero
// byte is sent: it selects user defined character 0.
func (d *Dev) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range p {
		if err := d.char(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// GotoXY moves the cursor to column col of row row, both 0 based.
//
// The address is 0x80 + row*0x40 + col; it is not range checked.
func (d *Dev) GotoXY(col, row uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command(cmdSetDDRAM + row*rowSpan + col)
}

// Clear blanks the display and moves the cursor to the top left.
func (d *Dev) Clear() error {
	return d.WriteCommand(cmdClear)
}

// Home moves the cursor to the top left without touching the content.
func (d *Dev) Home() error {
	return d.WriteCommand(cmdHome)
}

// Address returns the address counter read back after the last busy wait.
func (d *Dev) Address() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// MoveTo moves the cursor to row, col, both 1 based.
func (d *Dev) MoveTo(row, col int) error {
	if row < d.MinRow() || row > d.rows || col < d.MinCol() || col > d.cols {
		return fmt.Errorf("charlcd: MoveTo(%d, %d) out of range", row, col)
	}
	return d.GotoXY(uint8(col-1), uint8(row-1))
}

// Move the cursor one position forward or backward.
func (d *Dev) Move(dir display.CursorDirection) error {
	switch dir {
	case display.Backward:
		return d.WriteCommand(cmdShift)
	case display.Forward:
		return d.WriteCommand(cmdShift | shiftRight)
	default:
		return fmt.Errorf("charlcd: %w", display.ErrNotImplemented)
	}
}

// Cursor sets the cursor style. CursorUnderline and CursorBlock may be
// combined.
func (d *Dev) Cursor(modes ...display.CursorMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, mode := range modes {
		switch mode {
		case display.CursorOff:
			d.cursor = false
			d.blink = false
		case display.CursorUnderline:
			d.cursor = true
		case display.CursorBlink, display.CursorBlock:
			d.blink = true
		default:
			return fmt.Errorf("charlcd: unexpected cursor mode %d", mode)
		}
	}
	return d.command(d.displayControl())
}

// Display turns the display on or off. The content is kept.
func (d *Dev) Display(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on = on
	return d.command(d.displayControl())
}

// AutoScroll shifts the whole display instead of the cursor on each
// character when enabled.
func (d *Dev) AutoScroll(enabled bool) error {
	c := cmdEntryMode | entryIncrement
	if enabled {
		c |= entryShift
	}
	return d.WriteCommand(c)
}

// Rows returns the number of rows.
func (d *Dev) Rows() int {
	return d.rows
}

// Cols returns the number of columns.
func (d *Dev) Cols() int {
	return d.cols
}

// MinRow returns the first row number used by MoveTo.
func (d *Dev) MinRow() int {
	return 1
}

// MinCol returns the first column number used by MoveTo.
func (d *Dev) MinCol() int {
	return 1
}

func (d *Dev) String() string {
	return fmt.Sprintf("charlcd{rs=%s rw=%s e=%s d4-7=%s,%s,%s,%s} %dx%d",
		d.rs, d.rw, d.e, d.data[0], d.data[1], d.data[2], d.data[3], d.rows, d.cols)
}

// Halt clears the display and turns it off.
func (d *Dev) Halt() error {
	if err := d.Clear(); err != nil {
		return err
	}
	return d.Display(false)
}

func (d *Dev) displayControl() byte {
	c := cmdDisplay
	if d.on {
		c |= displayOn
	}
	if d.cursor {
		c |= displayCursor
	}
	if d.blink {
		c |= displayBlink
	}
	return c
}

// init runs the power-on sequence. The controller starts in 8 bit mode
// where only D4 to D7 are wired, so the first writes are single nibbles and
// the busy flag is not available until 4 bit mode is selected.
func (d *Dev) init() error {
	for _, p := range d.data {
		if err := p.Out(gpio.Low); err != nil {
			return err
		}
	}
	for _, p := range []gpio.PinOut{d.rs, d.rw, d.e} {
		if err := p.Out(gpio.Low); err != nil {
			return err
		}
	}

	// Function set, 8 bit interface. Repeated since the controller may be in
	// any state, including half way through a 4 bit byte.
	for _, delay := range []time.Duration{20 * time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond} {
		if err := d.nibble(0x03); err != nil {
			return err
		}
		d.wait.Wait(delay)
	}
	// Function set, 4 bit interface.
	if err := d.nibble(0x02); err != nil {
		return err
	}
	d.wait.Wait(40 * time.Millisecond)

	d.on = true
	steps := []struct {
		cmd   byte
		delay time.Duration
	}{
		{cmdDisplay | displayOn, 100 * time.Microsecond},
		{cmdEntryMode | entryIncrement, 2 * time.Millisecond},
		{cmdClear, 2 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.command(s.cmd); err != nil {
			return err
		}
		d.wait.Wait(s.delay)
	}
	return nil
}

func (d *Dev) command(c byte) error {
	if err := d.waitReady(); err != nil {
		return err
	}
	return d.writeByte(c, gpio.Low)
}

func (d *Dev) char(c byte) error {
	if err := d.waitReady(); err != nil {
		return err
	}
	return d.writeByte(c, gpio.High)
}

// waitReady polls the busy flag until it clears, then waits delaySettle and
// reads the address counter.
func (d *Dev) waitReady() error {
	for polls := 0; ; polls++ {
		s, err := d.status()
		if err != nil {
			return err
		}
		if s&busyFlag == 0 {
			break
		}
		if d.busyLimit > 0 && polls >= d.busyLimit {
			return fmt.Errorf("%w after %d polls", ErrBusyTimeout, polls+1)
		}
	}
	d.wait.Wait(delaySettle)
	s, err := d.status()
	if err != nil {
		return err
	}
	d.addr = s &^ busyFlag
	return nil
}

// status reads the busy flag and address counter, RS low and R/W high.
func (d *Dev) status() (byte, error) {
	if err := d.rs.Out(gpio.Low); err != nil {
		return 0, err
	}
	if err := d.rw.Out(gpio.High); err != nil {
		return 0, err
	}
	for _, p := range d.data {
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			return 0, err
		}
	}
	var v byte
	for _, shift := range []uint{4, 0} {
		if err := d.e.Out(gpio.High); err != nil {
			return 0, err
		}
		d.wait.Wait(delayReadSetup)
		v |= d.readNibble() << shift
		if err := d.e.Out(gpio.Low); err != nil {
			return 0, err
		}
		d.wait.Wait(delayEnable)
	}
	for _, p := range d.data {
		if err := p.Out(gpio.Low); err != nil {
			return 0, err
		}
	}
	return v, d.rw.Out(gpio.Low)
}

func (d *Dev) readNibble() byte {
	var n byte
	for i, p := range d.data {
		if p.Read() == gpio.High {
			n |= 1 << uint(i)
		}
	}
	return n
}

// writeByte sends b as two nibbles, high first. rs selects the data
// register when high.
func (d *Dev) writeByte(b byte, rs gpio.Level) error {
	if err := d.rs.Out(rs); err != nil {
		return err
	}
	if err := d.rw.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.nibble(b >> 4); err != nil {
		return err
	}
	if err := d.nibble(b & 0x0f); err != nil {
		return err
	}
	// Park the data lines high between transfers.
	for _, p := range d.data {
		if err := p.Out(gpio.High); err != nil {
			return err
		}
	}
	if rs == gpio.High {
		return d.rs.Out(gpio.Low)
	}
	return nil
}

// nibble puts the low 4 bits of n on D4 to D7 and strobes E.
func (d *Dev) nibble(n byte) error {
	for i, p := range d.data {
		if err := p.Out(gpio.Level(n&(1<<uint(i)) != 0)); err != nil {
			return err
		}
	}
	if err := d.e.Out(gpio.High); err != nil {
		return err
	}
	d.wait.Wait(delayEnable)
	return d.e.Out(gpio.Low)
}

var _ display.TextDisplay = &Dev{}
var _ conn.Resource = &Dev{}
