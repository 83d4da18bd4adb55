// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fpgasim implements a software simulation of the FPGA's
// SPI-facing state machine, for use in tests and hardware-less demo
// runs where no real bitstream is flashed.
package fpgasim

import (
	"encoding/binary"
	"sync"

	"github.com/scanmill/fpgahost/fpga"
)

// pin state and status bit positions, mirroring the wire format the
// real FPGA parser emits. These are private to the simulator: it plays
// the device's role, not the host's, so it has no reason to share the
// host package's decoder.
const (
	statusBitFull    = 1 << 0
	statusBitParsing = 1 << 1
	statusBitError   = 1 << 2
)

// FPGA simulates the device side of the SPI link: a FIFO with bounded
// depth, a `parsing` flag gating FIFO consumption, latched endstop and
// photodiode pin state, and a one-frame response pipeline (the FPGA's
// response always reflects the *previous* exchange: reads lag writes
// by one frame).
type FPGA struct {
	mu sync.Mutex

	motors   int
	memDepth int

	fifoLen      int
	parsing      bool
	errorLatched bool

	endstop           []bool
	photodiodeTrigger bool
	synchronized      bool

	positionSteps []int32
	positionPtr   int

	debugTicks uint64
	debugFacet byte

	pending fpga.CommandFrame // response to be returned on the *next* Exchange
}

// New builds a simulator for a machine with the given HardwareConfig.
func New(cfg *fpga.HardwareConfig) *FPGA {
	return &FPGA{
		motors:        cfg.Motors(),
		memDepth:      cfg.MemDepth,
		endstop:       make([]bool, cfg.Motors()),
		positionSteps: make([]int32, cfg.Motors()),
	}
}

// Exchange implements fpga.Exchanger: it returns the response queued by
// the previous call, then processes frame and queues the next response.
func (f *FPGA) Exchange(frame fpga.CommandFrame) (fpga.CommandFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := f.pending
	f.process(frame)
	f.pending = f.buildResponse(frame.Opcode())
	return resp, nil
}

func (f *FPGA) process(frame fpga.CommandFrame) {
	switch frame.Opcode() {
	case fpga.OpWrite:
		if f.fifoLen >= f.memDepth {
			f.errorLatched = true
			return
		}
		f.fifoLen++
	case fpga.OpStart:
		f.parsing = true
	case fpga.OpStop:
		f.parsing = false
	}
}

func (f *FPGA) buildResponse(forOpcode fpga.Opcode) fpga.CommandFrame {
	var resp fpga.CommandFrame

	if forOpcode == fpga.OpDebug {
		var tick8 [8]byte
		binary.BigEndian.PutUint64(tick8[:], f.debugTicks)
		copy(resp[1:8], tick8[1:8])
		resp[8] = f.debugFacet
		return resp
	}
	if forOpcode == fpga.OpPosition && f.motors > 0 {
		axis := f.positionPtr
		var raw [4]byte
		binary.BigEndian.PutUint32(raw[:], uint32(f.positionSteps[axis]))
		copy(resp[5:9], raw[:])
		f.positionPtr = (f.positionPtr + 1) % f.motors
		return resp
	}

	var pin byte
	for i, e := range f.endstop {
		if e {
			pin |= 1 << uint(i)
		}
	}
	if f.photodiodeTrigger {
		pin |= 1 << uint(f.motors)
	}
	if f.synchronized {
		pin |= 1 << uint(f.motors+1)
	}
	resp[7] = pin

	var status byte
	if f.fifoLen >= f.memDepth {
		status |= statusBitFull
	}
	if f.parsing {
		status |= statusBitParsing
	}
	if f.errorLatched {
		status |= statusBitError
	}
	resp[8] = status
	return resp
}

// Drain simulates the FPGA's parser consuming n words from the FIFO
// while parsing is enabled; it is a no-op otherwise. Tests use it to
// unblock a BackpressureGate's await_space wait.
func (f *FPGA) Drain(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.parsing {
		return
	}
	f.fifoLen -= n
	if f.fifoLen < 0 {
		f.fifoLen = 0
	}
	f.errorLatched = false
}

// SetEndstop latches axis's endstop pin state.
func (f *FPGA) SetEndstop(axis int, hit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endstop[axis] = hit
}

// SetPositionSteps sets the simulated step counter the next `position`
// read for axis will return.
func (f *FPGA) SetPositionSteps(axis int, steps int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionSteps[axis] = steps
}

// SetDebugSample sets the tick count/facet id the next `debug` read
// will return.
func (f *FPGA) SetDebugSample(ticks uint64, facet byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debugTicks = ticks
	f.debugFacet = facet
}

// FIFOLen reports the simulated FIFO occupancy, for test assertions.
func (f *FPGA) FIFOLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fifoLen
}
