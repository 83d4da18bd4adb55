// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fpga drives the host side of the laser engraver's command
// pipeline: it turns motion and exposure intent into the binary
// instruction stream consumed by the Lattice iCE40UP5K FPGA co-processor
// over SPI, and decodes the FPGA's status word on every exchange.
//
// The FPGA owns the hard real-time logic (polygon motor PWM,
// photodiode-synchronized scanline timing, multi-axis polynomial motion
// interpolation). This package only encodes instructions, enforces the
// FIFO's backpressure contract, and tracks machine state in RAM; it
// never reimplements the FPGA's timing.
package fpga
