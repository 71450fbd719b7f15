// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbanging is a container for software-timed bus drivers.
//
// Every driver in this module is built from plain GPIO pins and busy-wait
// delays: twowire is an I²C-style master with clock stretching, charlcd drives
// a 4-bit parallel character display, serialtx is a transmit-only 8N1 serial
// line. The line package holds the pin and timing primitives they share.
package bitbanging
