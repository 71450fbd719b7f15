// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package waveform renders logic level traces, like a logic analyzer would.
//
// Traces are usually captured with linetest.Recorder while a driver runs
// against simulated lines. Fprint draws them in a terminal with ANSI colors,
// Render draws them into an image.
package waveform

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Edge is a level change at a point in time.
type Edge struct {
	At    time.Duration
	Level gpio.Level
}

// Trace is the history of a single line.
//
// Edges are sorted by time. The level before the first edge is Initial.
type Trace struct {
	Name    string
	Initial gpio.Level
	Edges   []Edge
}

// LevelAt returns the level of the line at time at.
//
// An edge takes effect at its own timestamp.
func (t *Trace) LevelAt(at time.Duration) gpio.Level {
	l := t.Initial
	for _, e := range t.Edges {
		if e.At > at {
			break
		}
		l = e.Level
	}
	return l
}

// End returns the timestamp of the last edge.
func (t *Trace) End() time.Duration {
	if len(t.Edges) == 0 {
		return 0
	}
	return t.Edges[len(t.Edges)-1].At
}

// span returns the time of the last edge over all traces.
func span(traces []Trace) time.Duration {
	var end time.Duration
	for i := range traces {
		if e := traces[i].End(); e > end {
			end = e
		}
	}
	return end
}
