// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"encoding/binary"
	"math"
)

// StepsToCount converts a commanded step count into the fixed-point
// accumulator value the move engine's polynomial coefficients are
// expressed in.
func StepsToCount(steps int64, bitShift uint) int64 {
	return (steps << (bitShift + 1)) + (1 << (bitShift - 1))
}

// MMToSteps converts a millimetre displacement into motor steps,
// rounding to the nearest integer step.
func MMToSteps(mm, stepsPerMM float64) int64 {
	return int64(math.Round(mm * stepsPerMM))
}

// StepsToMM converts a signed step count into millimetres.
func StepsToMM(steps int64, stepsPerMM float64) float64 {
	return float64(steps) / stepsPerMM
}

// PositionReader performs the paged position readout: the FPGA
// exposes one axis's signed 32-bit step counter per `position` opcode
// exchange, advancing an internal pointer on the FPGA side. The reader
// mirrors that pointer so callers always know which axis a read
// belongs to.
type PositionReader struct {
	exch Exchanger
	cfg  *HardwareConfig
	next int
}

// NewPositionReader builds a reader starting at axis 0.
func NewPositionReader(exch Exchanger, cfg *HardwareConfig) *PositionReader {
	return &PositionReader{exch: exch, cfg: cfg}
}

// ReadNext issues one position exchange and returns the axis it
// answered for and the decoded position in millimetres.
func (r *PositionReader) ReadNext() (axis int, positionMM float64, err error) {
	axis = r.next
	resp, err := r.exch.Exchange(EncodePosition())
	if err != nil {
		return axis, 0, err
	}
	r.next = (r.next + 1) % r.cfg.Motors()

	var raw [4]byte
	copy(raw[:], resp[5:9])
	steps := int32(binary.BigEndian.Uint32(raw[:]))
	return axis, StepsToMM(int64(steps), r.cfg.Axes[axis].StepsPerMM), nil
}

// ReadAll resets the pointer to axis 0 and reads every axis exactly
// once, returning positions in axis order.
func (r *PositionReader) ReadAll() ([]float64, error) {
	r.next = 0
	out := make([]float64, r.cfg.Motors())
	for i := 0; i < r.cfg.Motors(); i++ {
		_, mm, err := r.ReadNext()
		if err != nil {
			return nil, err
		}
		out[i] = mm
	}
	return out, nil
}
