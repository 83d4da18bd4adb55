// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"math"
	"math/big"

	"periph.io/x/periph/conn/physic"
)

// PlanAxisMove converts a single-axis constant-velocity request into a
// sequence of fixed-tick polynomial move segments, the only case the
// motion coordinator emits. deltaMM == 0 returns a nil segment list:
// there is nothing to plan.
//
// Every returned segment carries a full motor-width coefficient vector
// (all zero except the commanded axis) because the FPGA's move
// instruction always advances every accumulator together.
func PlanAxisMove(cfg *HardwareConfig, axis int, deltaMM, speedMMs float64) ([]MoveSegment, error) {
	if axis < 0 || axis >= cfg.Motors() {
		return nil, &InvalidArgumentError{Arg: "axis", Reason: "out of range"}
	}
	if speedMMs <= 0 {
		return nil, &InvalidArgumentError{Arg: "speed", Reason: "must be positive"}
	}
	if deltaMM == 0 {
		return nil, nil
	}

	motorFreqHz := float64(cfg.MotorFreq) / float64(physic.Hertz)
	durationS := math.Abs(deltaMM) / speedMMs
	ticksTotal := uint64(math.Round(durationS * motorFreqHz))
	if ticksTotal == 0 {
		return nil, nil
	}

	sign := int64(1)
	if deltaMM < 0 {
		sign = -1
	}
	stepsPerMM := cfg.Axes[axis].StepsPerMM
	speedSteps := int64(math.Round(speedMMs*stepsPerMM)) * sign

	coeff, err := countPerTick(speedSteps, cfg.BitShift, motorFreqHz)
	if err != nil {
		return nil, err
	}

	var segments []MoveSegment
	remaining := ticksTotal
	for remaining > 0 {
		ticks := cfg.MoveTicks
		if uint64(ticks) > remaining {
			ticks = uint32(remaining)
		}
		coeffs := make([][]int64, cfg.Motors())
		for i := range coeffs {
			coeffs[i] = []int64{0}
		}
		coeffs[axis] = []int64{coeff}
		segments = append(segments, MoveSegment{Ticks: ticks, Coeffs: coeffs})
		remaining -= uint64(ticks)
	}
	return segments, nil
}

// countPerTick computes the fixed-point per-tick step increment
// ((speed_steps * 2^(bit_shift+1)) + 2^(bit_shift-1)) / motor_freq using
// arbitrary-precision integers so that an out-of-range commanded speed
// is a checked failure rather than a silent int64 wraparound.
func countPerTick(speedSteps int64, bitShift uint, motorFreqHz float64) (int64, error) {
	freq := int64(math.Round(motorFreqHz))
	if freq <= 0 {
		return 0, &InvalidConfigError{Field: "motor_freq", Reason: "must be positive"}
	}
	num := new(big.Int).Mul(big.NewInt(speedSteps), new(big.Int).Lsh(big.NewInt(1), bitShift+1))
	num.Add(num, new(big.Int).Lsh(big.NewInt(1), bitShift-1))
	q := new(big.Int).Quo(num, big.NewInt(freq))
	if !q.IsInt64() {
		return 0, &InvalidArgumentError{
			Arg:    "speed",
			Reason: "commanded speed overflows the move coefficient's 64-bit fixed-point representation",
		}
	}
	return q.Int64(), nil
}
