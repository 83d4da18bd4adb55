// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"context"
	"errors"

	"periph.io/x/periph/conn/gpio"
)

// defaultSpeedMMs is the default per-axis speed used by Goto when the
// caller passes a nil speed vector.
const defaultSpeedMMs = 10.0

// homeDisplacementMM is the default displacement Home commands per
// masked axis.
const homeDisplacementMM = -200.0

// Coordinator runs independent constant-velocity moves per axis,
// tracks absolute
// position, and implements homing via the move engine's endstop-abort
// semantics.
type Coordinator struct {
	cfg            *HardwareConfig
	gate           *BackpressureGate
	state          *MachineState
	steppersEnable gpio.PinOut // optional
}

// NewCoordinator builds a Coordinator. steppersEnable may be nil if the
// platform does not expose that line directly (e.g. it is wired through
// the same instruction stream as everything else).
func NewCoordinator(cfg *HardwareConfig, gate *BackpressureGate, state *MachineState, steppersEnable gpio.PinOut) *Coordinator {
	return &Coordinator{cfg: cfg, gate: gate, state: state, steppersEnable: steppersEnable}
}

// SetSteppersEnabled drives the stepper-enable line and records the
// commanded state in MachineState.
func (c *Coordinator) SetSteppersEnabled(enabled bool) error {
	if c.steppersEnable != nil {
		level := gpio.Low
		if enabled {
			level = gpio.High
		}
		if err := c.steppersEnable.Out(level); err != nil {
			return &TransportError{Op: "stepper enable", Err: err}
		}
	}
	c.state.setSteppersEnabled(enabled)
	return nil
}

// Goto runs an independent constant-velocity move on every axis whose
// displacement is non-zero. speed may be nil to default every axis to
// 10 mm/s. Parsing is enabled before any segment is issued and left
// enabled on return: the caller may chain further motion without
// re-enabling it.
func (c *Coordinator) Goto(ctx context.Context, position []float64, speed []float64, absolute bool) error {
	motors := c.cfg.Motors()
	if len(position) != motors {
		return &InvalidArgumentError{Arg: "position", Reason: "length must equal the number of motors"}
	}
	if speed == nil {
		speed = make([]float64, motors)
		for i := range speed {
			speed[i] = defaultSpeedMMs
		}
	} else if len(speed) != motors {
		return &InvalidArgumentError{Arg: "speed", Reason: "length must equal the number of motors"}
	}

	current := c.state.PositionMM()
	deltas := make([]float64, motors)
	for i := range deltas {
		if absolute {
			deltas[i] = position[i] - current[i]
		} else {
			deltas[i] = position[i]
		}
	}

	if _, err := c.gate.Send(ctx, EncodeStart(), false); err != nil {
		return err
	}

	var fpgaErr error
	for axis := 0; axis < motors; axis++ {
		if deltas[axis] == 0 {
			continue
		}
		if err := c.runAxisMove(ctx, axis, deltas[axis], speed[axis], &fpgaErr); err != nil {
			return err
		}
	}
	return fpgaErr
}

// runAxisMove plans and dispatches every segment for one axis,
// stopping early either on a negative-direction home hit or on an
// FpgaError (in which case fpgaErr records the first such error but the
// caller continues on to the remaining axes). Transport- and FIFO-level
// errors abort the whole Goto.
func (c *Coordinator) runAxisMove(ctx context.Context, axis int, deltaMM, speedMMs float64, fpgaErr *error) error {
	segments, err := PlanAxisMove(c.cfg, axis, deltaMM, speedMMs)
	if err != nil {
		return err
	}
	negative := deltaMM < 0

	var totalTicks, issuedTicks uint64
	for _, s := range segments {
		totalTicks += uint64(s.Ticks)
	}

	homed := false
	aborted := false
	for _, seg := range segments {
		frames, err := EncodeMove(c.cfg, seg)
		if err != nil {
			return err
		}
		var status Status
		for _, fr := range frames {
			status, err = c.gate.Send(ctx, fr, true)
			if err != nil {
				var fe *FpgaError
				if errors.As(err, &fe) {
					aborted = true
					if *fpgaErr == nil {
						*fpgaErr = err
					}
					break
				}
				return err
			}
		}
		if aborted {
			break
		}
		issuedTicks += uint64(seg.Ticks)
		if negative && axis < len(status.Pins.Endstop) && status.Pins.Endstop[axis] {
			homed = true
			break
		}
	}

	switch {
	case homed:
		c.state.zeroPosition(axis)
	case aborted && totalTicks > 0:
		c.state.addPosition(axis, deltaMM*float64(issuedTicks)/float64(totalTicks))
	default:
		c.state.addPosition(axis, deltaMM)
	}
	return nil
}

// Home drives every masked axis toward its endstop by homeDisplacementMM
// (default -200mm) and relies on Goto's home-abort semantics to zero the
// axis once its endstop trips.
func (c *Coordinator) Home(ctx context.Context, axesMask []bool, speed []float64) error {
	motors := c.cfg.Motors()
	if len(axesMask) != motors {
		return &InvalidArgumentError{Arg: "axesMask", Reason: "length must equal the number of motors"}
	}
	displacement := make([]float64, motors)
	for i, masked := range axesMask {
		if masked {
			displacement[i] = homeDisplacementMM
		}
	}
	return c.Goto(ctx, displacement, speed, false)
}
