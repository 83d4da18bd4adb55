// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import "fmt"

// TransportError wraps a failure at the SPI bus level. It is not
// recoverable automatically and is always surfaced to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fpga: spi transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FpgaError reports that the FPGA's decoded error status bit was set.
// It is treated as fatal for the current operation.
type FpgaError struct {
	Status Status
}

func (e *FpgaError) Error() string {
	return fmt.Sprintf("fpga: device reported error, status=%+v", e.Status)
}

// FifoFullError reports that the backpressure gate exhausted its retry
// budget waiting for FIFO space. Callers may retry with a smaller batch.
type FifoFullError struct {
	Trials int
}

func (e *FifoFullError) Error() string {
	return fmt.Sprintf("fpga: fifo full after %d trials", e.Trials)
}

// InvalidConfigError reports a violated construction-time invariant in
// HardwareConfig or LaserTiming derivation.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("fpga: invalid config: %s: %s", e.Field, e.Reason)
}

// InvalidScanlineError reports a malformed scanline encode request.
type InvalidScanlineError struct {
	Reason string
}

func (e *InvalidScanlineError) Error() string {
	return fmt.Sprintf("fpga: invalid scanline: %s", e.Reason)
}

// InvalidArgumentError reports a caller error: wrong-length vectors, an
// out-of-range laser current, an unknown facet index, and similar.
type InvalidArgumentError struct {
	Arg    string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("fpga: invalid argument %s: %s", e.Arg, e.Reason)
}

// TimeoutError reports that a bounded wait (facet sample distribution,
// an edge signal) exceeded its budget. Measurement loops report it as a
// condition rather than raising it as fatal.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fpga: timeout waiting for %s", e.Op)
}
