// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package linetest

import (
	"time"

	"github.com/inflex/bitbanging/line"
	"github.com/inflex/bitbanging/waveform"
	"periph.io/x/conn/v3/gpio"
)

// Clock is a virtual line.Waiter. Waiting advances simulated time instantly.
type Clock struct {
	now time.Duration
	// Waits lists every duration passed to Wait, in order.
	Waits []time.Duration
}

// Wait implements line.Waiter.
func (c *Clock) Wait(d time.Duration) {
	c.now += d
	c.Waits = append(c.Waits, d)
}

// Now returns the simulated time elapsed since the clock was created.
func (c *Clock) Now() time.Duration {
	return c.now
}

// Count returns how many times Wait was called with exactly d.
func (c *Clock) Count(d time.Duration) int {
	n := 0
	for _, w := range c.Waits {
		if w == d {
			n++
		}
	}
	return n
}

// Recorder captures every level change of a set of nets against a Clock.
type Recorder struct {
	clock  *Clock
	traces []waveform.Trace
}

// NewRecorder starts recording nets. Their current levels become the
// initial levels of the traces.
func NewRecorder(c *Clock, nets ...*Net) *Recorder {
	r := &Recorder{clock: c, traces: make([]waveform.Trace, len(nets))}
	for i, n := range nets {
		r.traces[i] = waveform.Trace{Name: n.Name(), Initial: n.Level()}
		i := i
		n.OnEdge(func(l gpio.Level) {
			t := &r.traces[i]
			t.Edges = append(t.Edges, waveform.Edge{At: r.clock.Now(), Level: l})
		})
	}
	return r
}

// Traces returns the captured traces in the order the nets were given.
func (r *Recorder) Traces() []waveform.Trace {
	return r.traces
}

// Trace returns the trace of the net called name, or nil.
func (r *Recorder) Trace(name string) *waveform.Trace {
	for i := range r.traces {
		if r.traces[i].Name == name {
			return &r.traces[i]
		}
	}
	return nil
}

var _ line.Waiter = &Clock{}
