// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package line

import (
	"time"

	"periph.io/x/host/v3/cpu"
)

// Waiter pauses the caller for approximately d.
//
// Precision only needs to be good enough for the peer device. Drivers express
// every delay through a Waiter so tests can substitute a virtual clock.
type Waiter interface {
	Wait(d time.Duration)
}

// WaitFunc adapts a function to the Waiter interface.
type WaitFunc func(d time.Duration)

// Wait implements Waiter.
func (f WaitFunc) Wait(d time.Duration) {
	f(d)
}

var (
	// Spin busy-waits without yielding the thread. It is the default for the
	// sub-millisecond bus timings.
	Spin Waiter = WaitFunc(cpu.Nanospin)
	// Sleep yields to the scheduler. It is accurate to a few tens of
	// microseconds at best.
	Sleep Waiter = WaitFunc(time.Sleep)
)
