// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/spi"
)

// minSPISpeed is the lowest clock rate the SPI framing layer will
// accept: mode-1, MSB first, >= 1 MHz.
const minSPISpeed = 1000000

// resetPulseWidth is how long fpga_reset is held low on a reset
// pulse. The FPGA's SPI parser and dispatcher re-initialize well within
// this window.
const resetPulseWidth = 10 * time.Millisecond

// Transport exchanges one 9-byte frame for the FPGA's previously
// latched status and payload. It does
// not retry or decode; it is purely a synchronous byte-for-byte relay.
type Transport struct {
	conn spi.Conn
}

// NewTransport configures conn for mode 1, MSB first, at speedHz (must
// be >= 1 MHz) and returns a Transport ready for Exchange.
func NewTransport(conn spi.Conn, speedHz int64) (*Transport, error) {
	if speedHz < minSPISpeed {
		return nil, &InvalidArgumentError{Arg: "speedHz", Reason: "SPI clock must be at least 1 MHz"}
	}
	if err := conn.DevParams(speedHz, spi.Mode1, 8); err != nil {
		return nil, &TransportError{Op: "configure", Err: err}
	}
	return &Transport{conn: conn}, nil
}

// Exchange sends one 9-byte command frame and returns the FPGA's
// response frame (the status and payload latched from the *previous*
// exchange: the response pipeline is one frame deep).
func (t *Transport) Exchange(frame CommandFrame) (CommandFrame, error) {
	var resp CommandFrame
	if err := t.conn.Tx(frame[:], resp[:]); err != nil {
		return CommandFrame{}, &TransportError{Op: "exchange", Err: err}
	}
	return resp, nil
}

// ResetFPGA pulses the active-low fpga_reset line: asserts it, holds
// for resetPulseWidth, then releases it.
func ResetFPGA(pin gpio.PinOut) error {
	if err := pin.Out(gpio.Low); err != nil {
		return &TransportError{Op: "reset assert", Err: err}
	}
	time.Sleep(resetPulseWidth)
	if err := pin.Out(gpio.High); err != nil {
		return &TransportError{Op: "reset release", Err: err}
	}
	return nil
}
