// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command bitbang talks to a two-wire device, a character LCD or a serial
// receiver through plain GPIO pins.
//
// With -sim, the drivers run against simulated lines and devices instead and
// the recorded waveforms are printed once the command completes.
//
// Usage:
//
//	bitbang [flags] i2c scan
//	bitbang [flags] i2c read <addr> <reg> <count>
//	bitbang [flags] i2c write <addr> <byte>...
//	bitbang [flags] lcd <line 1> [line 2]
//	bitbang -backpack 0x27 [flags] lcd <line 1> [line 2]
//	bitbang [flags] uart <text>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/inflex/bitbanging/line"
	"github.com/inflex/bitbanging/line/linetest"
	"github.com/inflex/bitbanging/waveform"
	"github.com/mattn/go-isatty"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

type config struct {
	sim     bool
	png     string
	width    int
	pngWidth int
	verbose  bool

	scl, sda string
	hz       physic.Frequency
	stretch  int

	rs, rw, e string
	d         [4]string
	busy      int
	backpack  uint16

	tx   string
	baud physic.Frequency
}

// board hands out pins, either real ones through gpioreg or simulated ones.
type board struct {
	cfg   *config
	clock *linetest.Clock
	rec   *linetest.Recorder
}

func (b *board) wait() line.Waiter {
	if b.cfg.sim {
		return b.clock
	}
	return line.Spin
}

func (b *board) pin(name string, net *linetest.Net) (gpio.PinIO, error) {
	if !b.cfg.sim {
		return line.Lookup(name)
	}
	return linetest.NewPin(name, 0, net), nil
}

// record starts capturing nets. It is a no-op on real hardware.
func (b *board) record(nets ...*linetest.Net) {
	if b.cfg.sim {
		b.rec = linetest.NewRecorder(b.clock, nets...)
	}
}

// draw prints the captured waveforms, if any.
func (b *board) draw() error {
	if b.rec == nil {
		return nil
	}
	fd := os.Stdout.Fd()
	opts := &waveform.Opts{
		Width: b.cfg.width,
		Plain: !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd),
	}
	if err := waveform.Print(opts, b.rec.Traces()...); err != nil {
		return err
	}
	if b.cfg.png != "" {
		if err := waveform.SavePNG(b.cfg.png, &waveform.Opts{Width: b.cfg.pngWidth}, b.rec.Traces()...); err != nil {
			return err
		}
		log.Printf("wrote %s", b.cfg.png)
	}
	return nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return byte(v), nil
}

func mainImpl() error {
	cfg := config{hz: 100 * physic.KiloHertz, baud: 9600 * physic.Hertz}
	flag.BoolVar(&cfg.sim, "sim", false, "run against simulated lines and devices")
	flag.StringVar(&cfg.png, "png", "", "with -sim, also save the waveforms to this PNG file")
	flag.IntVar(&cfg.width, "width", 120, "with -sim, columns used to print the waveforms")
	flag.IntVar(&cfg.pngWidth, "pngwidth", 1600, "with -png, pixels used to draw the waveforms")
	flag.BoolVar(&cfg.verbose, "v", false, "verbose mode")
	flag.StringVar(&cfg.scl, "scl", "GPIO3", "two-wire clock pin")
	flag.StringVar(&cfg.sda, "sda", "GPIO2", "two-wire data pin")
	flag.Var(&cfg.hz, "hz", "two-wire clock frequency")
	flag.IntVar(&cfg.stretch, "stretch", 0, "give up after this many clock stretch polls, 0 waits forever")
	flag.StringVar(&cfg.rs, "rs", "GPIO25", "LCD register select pin")
	flag.StringVar(&cfg.rw, "rw", "GPIO24", "LCD read/write pin")
	flag.StringVar(&cfg.e, "e", "GPIO23", "LCD enable pin")
	flag.StringVar(&cfg.d[0], "d4", "GPIO17", "LCD D4 pin")
	flag.StringVar(&cfg.d[1], "d5", "GPIO18", "LCD D5 pin")
	flag.StringVar(&cfg.d[2], "d6", "GPIO27", "LCD D6 pin")
	flag.StringVar(&cfg.d[3], "d7", "GPIO22", "LCD D7 pin")
	flag.IntVar(&cfg.busy, "busy", 0, "give up after this many LCD busy polls, 0 waits forever")
	flag.Func("backpack", "drive the LCD through a PCF8574 backpack at this two-wire address, e.g. 0x27", func(s string) error {
		v, err := parseByte(s)
		cfg.backpack = uint16(v)
		return err
	})
	flag.StringVar(&cfg.tx, "tx", "GPIO14", "serial transmit pin")
	flag.Var(&cfg.baud, "baud", "serial bit rate")
	flag.Parse()
	if !cfg.verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	args := flag.Args()
	if len(args) == 0 {
		return errors.New("specify one of i2c, lcd or uart")
	}
	b := &board{cfg: &cfg, clock: &linetest.Clock{}}
	if !cfg.sim {
		if _, err := host.Init(); err != nil {
			return err
		}
	}
	var err error
	switch args[0] {
	case "i2c":
		err = runI2C(b, args[1:])
	case "lcd":
		err = runLCD(b, args[1:])
	case "uart":
		err = runUART(b, args[1:])
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		return err
	}
	return b.draw()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "bitbang: %s.\n", strings.TrimSuffix(err.Error(), "."))
		os.Exit(1)
	}
}
