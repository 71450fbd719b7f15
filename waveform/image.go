// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package waveform

import (
	"errors"
	"image"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	rowHeight   = 32
	labelWidth  = 64
	swingHeight = 20
	margin      = 6
)

// Render draws traces into an image, one row per trace, with the trace name
// on the left.
//
// Each pixel column represents opts.Step, or the capture is scaled to
// opts.Width pixels.
func Render(opts *Opts, traces ...Trace) (image.Image, error) {
	if opts == nil {
		opts = &Opts{}
	}
	if len(traces) == 0 {
		return nil, errors.New("waveform: nothing to draw")
	}
	end := span(traces)
	step, err := opts.step(end)
	if err != nil {
		return nil, err
	}
	cols := int(end/step) + 1
	w := labelWidth + cols + margin
	h := rowHeight*len(traces) + margin

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: 12}))

	hi, _ := opts.colors()
	for i := range traces {
		t := &traces[i]
		top := float64(rowHeight*i + margin)
		yHigh := top
		yLow := top + swingHeight
		y := func(at time.Duration) float64 {
			if t.LevelAt(at) {
				return yHigh
			}
			return yLow
		}

		dc.SetRGB(0, 0, 0)
		dc.DrawString(t.Name, margin, yLow)

		dc.SetColor(hi)
		dc.SetLineWidth(1.5)
		x := float64(labelWidth)
		prev := y(0)
		dc.MoveTo(x, prev)
		for c := 1; c < cols; c++ {
			cur := y(time.Duration(c) * step)
			x = float64(labelWidth + c)
			if cur != prev {
				dc.LineTo(x, prev)
			}
			dc.LineTo(x, cur)
			prev = cur
		}
		dc.Stroke()
	}
	return dc.Image(), nil
}

// SavePNG renders traces and writes them to path as a PNG file.
func SavePNG(path string, opts *Opts, traces ...Trace) error {
	img, err := Render(opts, traces...)
	if err != nil {
		return err
	}
	return gg.SavePNG(path, img)
}
