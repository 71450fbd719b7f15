// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package twowire is an I²C-style bus master bit-banged on two GPIO pins.
//
// Both lines are open drain: the master only ever drives SCL or SDA low, and
// a high level comes from the pull-up resistors once the line is released.
// A slow peer can hold SCL low after any byte to pause the master (clock
// stretching); the master waits for it without a timeout unless
// Opts.StretchLimit is set.
//
// Dev exposes the individual bus conditions (Start, StartRepeated,
// WriteByte, ReadByte, Stop) for callers that need full control over a
// transaction. Bus wraps a Dev into a periph.io i2c.Bus so existing device
// drivers can use it unmodified.
//
// Addresses given to Dev are wire bytes: the 7 bit device address shifted left
// by one with the Read or Write flag in bit 0. Use Address to build one.
//
// # Specification
//
// https://www.nxp.com/docs/en/user-guide/UM10204.pdf
package twowire
