// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"context"
	"time"

	"periph.io/x/periph/conn/gpio"
)

// Exchanger is the SPI Framing Layer's contract, satisfied by *Transport
// and by fpgasim's fake transport for tests.
type Exchanger interface {
	Exchange(frame CommandFrame) (CommandFrame, error)
}

// edgeWaitTimeout bounds each individual WaitForEdge poll so the gate can
// still observe context cancellation between polls.
const edgeWaitTimeout = 50 * time.Millisecond

// BackpressureGate issues writes against the FPGA's FIFO, enforcing a
// bounded-retry/mem_full discipline.
type BackpressureGate struct {
	exch      Exchanger
	motors    int
	memFull   gpio.PinIn // optional; nil falls back to polling via Exchange
	maxTrials int
}

// NewBackpressureGate builds a gate. memFull may be nil, in which case
// the gate polls with an `empty` frame between retries instead of
// waiting on the FPGA-driven edge signal. If non-nil, memFull is
// configured for falling-edge detection (full -> space available).
func NewBackpressureGate(exch Exchanger, motors int, memFull gpio.PinIn, maxTrials int) (*BackpressureGate, error) {
	if maxTrials < 1 {
		return nil, &InvalidArgumentError{Arg: "maxTrials", Reason: "must be positive"}
	}
	if memFull != nil {
		if err := memFull.In(gpio.PullNoChange, gpio.FallingEdge); err != nil {
			return nil, &TransportError{Op: "configure mem_full", Err: err}
		}
	}
	return &BackpressureGate{exch: exch, motors: motors, memFull: memFull, maxTrials: maxTrials}, nil
}

// Send issues frame. If awaitSpace is false, it performs exactly one SPI
// exchange and returns the decoded status, no retry. If awaitSpace is
// true, the gate asserts that frame must land in the FIFO: it fails
// immediately on a decoded FpgaError, returns immediately if the FIFO
// wasn't full, and otherwise waits for space to free up, failing with
// FifoFullError once maxTrials is exhausted.
func (g *BackpressureGate) Send(ctx context.Context, frame CommandFrame, awaitSpace bool) (Status, error) {
	resp, err := g.exch.Exchange(frame)
	if err != nil {
		return Status{}, err
	}
	status, err := DecodeStatus(resp, g.motors)
	if err != nil {
		return Status{}, err
	}
	if !awaitSpace {
		return status, nil
	}
	if status.Error {
		return status, &FpgaError{Status: status}
	}
	if !status.Full {
		return status, nil
	}
	return g.awaitSpace(ctx, status)
}

func (g *BackpressureGate) awaitSpace(ctx context.Context, last Status) (Status, error) {
	if g.memFull != nil {
		return g.awaitSpaceEdge(ctx, last)
	}
	return g.awaitSpacePoll(ctx, last)
}

// awaitSpaceEdge waits on the FPGA-driven mem_full GPIO. It is
// level-safe: if the pin has already gone low (space already available)
// by the time we check, we do not block waiting for an edge that may
// never arrive.
func (g *BackpressureGate) awaitSpaceEdge(ctx context.Context, last Status) (Status, error) {
	for trial := 0; trial < g.maxTrials; trial++ {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		if g.memFull.Read() == gpio.Low {
			return last, nil
		}
		g.memFull.WaitForEdge(edgeWaitTimeout)
	}
	return last, &FifoFullError{Trials: g.maxTrials}
}

// awaitSpacePoll is used when no mem_full pin is wired: it re-issues
// empty frames to observe the status bit directly.
func (g *BackpressureGate) awaitSpacePoll(ctx context.Context, last Status) (Status, error) {
	status := last
	for trial := 0; trial < g.maxTrials; trial++ {
		if ctx.Err() != nil {
			return status, ctx.Err()
		}
		if !status.Full {
			return status, nil
		}
		resp, err := g.exch.Exchange(EncodeEmpty())
		if err != nil {
			return status, err
		}
		status, err = DecodeStatus(resp, g.motors)
		if err != nil {
			return status, err
		}
		if status.Error {
			return status, &FpgaError{Status: status}
		}
	}
	if !status.Full {
		return status, nil
	}
	return status, &FifoFullError{Trials: g.maxTrials}
}
