// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package waveform

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Opts represents the options available to render traces.
type Opts struct {
	// Step is the duration represented by one column or pixel. When zero the
	// whole capture is scaled to Width.
	Step time.Duration
	// Width is the number of columns used when Step is zero. Defaults to 80.
	Width int
	// Plain disables ANSI colors and draws with '_' and '‾'.
	Plain bool
	// Palette used for colored output. Defaults to ansi256.Default.
	Palette *ansi256.Palette
	// High and Low are the colors of the two levels. The zero value selects
	// the default green and blue.
	High color.NRGBA
	Low  color.NRGBA

	_ struct{}
}

var (
	defaultHigh = color.NRGBA{R: 0x30, G: 0xe0, B: 0x30, A: 255}
	defaultLow  = color.NRGBA{R: 0x20, G: 0x40, B: 0x90, A: 255}
)

// step returns the duration of a column for a capture ending at end.
func (o *Opts) step(end time.Duration) (time.Duration, error) {
	if o.Step < 0 {
		return 0, errors.New("waveform: negative step")
	}
	if o.Step > 0 {
		return o.Step, nil
	}
	w := o.Width
	if w <= 0 {
		w = 80
	}
	s := end / time.Duration(w)
	if s <= 0 {
		s = 1
	}
	return s, nil
}

func (o *Opts) colors() (color.NRGBA, color.NRGBA) {
	hi, lo := o.High, o.Low
	if hi == (color.NRGBA{}) {
		hi = defaultHigh
	}
	if lo == (color.NRGBA{}) {
		lo = defaultLow
	}
	return hi, lo
}

// Fprint draws one row per trace to w.
func Fprint(w io.Writer, opts *Opts, traces ...Trace) error {
	if opts == nil {
		opts = &Opts{}
	}
	if len(traces) == 0 {
		return errors.New("waveform: nothing to draw")
	}
	end := span(traces)
	step, err := opts.step(end)
	if err != nil {
		return err
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	hi, lo := opts.colors()
	width := 0
	for i := range traces {
		if n := len(traces[i].Name); n > width {
			width = n
		}
	}

	// Build each row in memory so a slow terminal gets whole lines.
	var buf bytes.Buffer
	for i := range traces {
		t := &traces[i]
		buf.Reset()
		fmt.Fprintf(&buf, "%-*s ", width, t.Name)
		for at := time.Duration(0); at <= end; at += step {
			l := t.LevelAt(at)
			switch {
			case opts.Plain && bool(l):
				buf.WriteString("‾")
			case opts.Plain:
				buf.WriteString("_")
			case bool(l):
				buf.WriteString(p.Block(hi))
			default:
				buf.WriteString(p.Block(lo))
			}
		}
		if !opts.Plain {
			buf.WriteString("\033[0m")
		}
		buf.WriteByte('\n')
		if _, err := buf.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

// Print draws traces to stdout, translating ANSI sequences on consoles that
// need it.
func Print(opts *Opts, traces ...Trace) error {
	return Fprint(colorable.NewColorableStdout(), opts, traces...)
}
