// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/inflex/bitbanging/backpack"
	"github.com/inflex/bitbanging/charlcd"
	"github.com/inflex/bitbanging/charlcd/charlcdtest"
	"github.com/inflex/bitbanging/line/linetest"
	"github.com/inflex/bitbanging/serialtx"
	"github.com/inflex/bitbanging/twowire"
	"github.com/inflex/bitbanging/twowire/twowiretest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// simAddr is the address of the simulated two-wire device.
const simAddr = 0x50

func runI2C(b *board, args []string) error {
	if len(args) == 0 {
		return errors.New("i2c: specify scan, read or write")
	}
	sclNet, sdaNet := linetest.NewNet("SCL"), linetest.NewNet("SDA")
	if b.cfg.sim {
		peer := twowiretest.NewPeer(simAddr, sclNet, sdaNet)
		copy(peer.Mem[:], "bitbang")
		log.Printf("simulating %s", peer)
	}
	bus, err := openBus(b, sclNet, sdaNet)
	if err != nil {
		return err
	}
	defer bus.Close()

	switch args[0] {
	case "scan":
		found, err := bus.Scan()
		if err != nil {
			return err
		}
		for _, a := range found {
			fmt.Printf("0x%02x\n", a)
		}
		return nil

	case "read":
		if len(args) != 4 {
			return errors.New("i2c read: expected <addr> <reg> <count>")
		}
		addr, err := parseByte(args[1])
		if err != nil {
			return err
		}
		reg, err := parseByte(args[2])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[3])
		if err != nil || n < 1 {
			return fmt.Errorf("i2c read: invalid count %q", args[3])
		}
		d := i2c.Dev{Bus: bus, Addr: uint16(addr)}
		buf := make([]byte, n)
		if err := d.Tx([]byte{reg}, buf); err != nil {
			return err
		}
		fmt.Printf("% x\n", buf)
		return nil

	case "write":
		if len(args) < 3 {
			return errors.New("i2c write: expected <addr> <byte>...")
		}
		addr, err := parseByte(args[1])
		if err != nil {
			return err
		}
		w := make([]byte, 0, len(args)-2)
		for _, s := range args[2:] {
			v, err := parseByte(s)
			if err != nil {
				return err
			}
			w = append(w, v)
		}
		// Wait for a device still busy with a previous write, EEPROM style.
		return bus.TxWait(uint16(addr), w, nil)

	default:
		return fmt.Errorf("i2c: unknown command %q", args[0])
	}
}

// openBus returns a two-wire bus on the configured pins and records it.
func openBus(b *board, sclNet, sdaNet *linetest.Net) (*twowire.Bus, error) {
	scl, err := b.pin(b.cfg.scl, sclNet)
	if err != nil {
		return nil, err
	}
	sda, err := b.pin(b.cfg.sda, sdaNet)
	if err != nil {
		return nil, err
	}
	dev, err := twowire.New(scl, sda, &twowire.Opts{Frequency: b.cfg.hz, StretchLimit: b.cfg.stretch, Wait: b.wait()})
	if err != nil {
		return nil, err
	}
	bus := twowire.NewBus(dev)
	log.Printf("using %s", bus)
	b.record(sclNet, sdaNet)
	return bus, nil
}

func runLCD(b *board, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("lcd: expected <line 1> [line 2]")
	}
	ctl := charlcdtest.NewController()
	opts := &charlcd.Opts{BusyLimit: b.cfg.busy, Wait: b.wait()}
	var lcd *charlcd.Dev
	var err error
	if b.cfg.backpack != 0 {
		lcd, err = openBackpack(b, ctl, opts)
	} else {
		lcd, err = openParallel(b, ctl, opts)
	}
	if err != nil {
		return err
	}
	log.Printf("using %s", lcd)
	for row, text := range args {
		if err := lcd.GotoXY(0, uint8(row)); err != nil {
			return err
		}
		if _, err := lcd.WriteString(text); err != nil {
			return err
		}
	}
	if b.cfg.sim {
		for row := range args {
			fmt.Printf("|%s|\n", ctl.Row(row, lcd.Cols()))
		}
	}
	return nil
}

// openParallel drives the LCD directly from 7 GPIOs.
func openParallel(b *board, ctl *charlcdtest.Controller, opts *charlcd.Opts) (*charlcd.Dev, error) {
	nets := ctl.Nets()
	names := append([]string{b.cfg.rs, b.cfg.rw, b.cfg.e}, b.cfg.d[:]...)
	pins := make([]gpio.PinIO, len(names))
	for i, n := range names {
		p, err := b.pin(n, nets[i])
		if err != nil {
			return nil, err
		}
		pins[i] = p
	}
	b.record(nets...)
	return charlcd.New(pins[0], pins[1], pins[2], [4]gpio.PinIO{pins[3], pins[4], pins[5], pins[6]}, opts)
}

// openBackpack drives the LCD through a PCF8574 on the two-wire bus.
func openBackpack(b *board, ctl *charlcdtest.Controller, opts *charlcd.Opts) (*charlcd.Dev, error) {
	sclNet, sdaNet := linetest.NewNet("SCL"), linetest.NewNet("SDA")
	if b.cfg.sim {
		peer := twowiretest.NewPeer(b.cfg.backpack, sclNet, sdaNet)
		peer.Port = charlcdtest.NewExpander(ctl)
	}
	bus, err := openBus(b, sclNet, sdaNet)
	if err != nil {
		return nil, err
	}
	bp, err := backpack.New(bus, b.cfg.backpack)
	if err != nil {
		return nil, err
	}
	if err := bp.SetBacklight(true); err != nil {
		return nil, err
	}
	return bp.LCD(opts)
}

func runUART(b *board, args []string) error {
	if len(args) != 1 {
		return errors.New("uart: expected <text>")
	}
	net := linetest.NewNet("TX")
	p, err := b.pin(b.cfg.tx, net)
	if err != nil {
		return err
	}
	b.record(net)
	tx, err := serialtx.New(p, &serialtx.Opts{Baud: b.cfg.baud, Wait: b.wait()})
	if err != nil {
		return err
	}
	defer tx.Halt()
	log.Printf("using %s", tx)
	return tx.SendString(args[0])
}
