// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import "sync"

// maxLaserCurrent is the hard ceiling enforced on MachineState's laser
// current to avoid physical damage.
const maxLaserCurrent = 150

// MachineState is the mutable, process-wide state owned by the
// controller: position, stepper enable, and laser current. It is
// guarded by a mutex even though a single controller instance is
// normally driven from one goroutine.
type MachineState struct {
	mu              sync.Mutex
	positionMM      []float64
	steppersEnabled bool
	laserCurrent    int
}

// NewMachineState returns a zeroed state for the given number of motors.
func NewMachineState(motors int) *MachineState {
	return &MachineState{positionMM: make([]float64, motors)}
}

// PositionMM returns a copy of the current per-axis position.
func (s *MachineState) PositionMM() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.positionMM))
	copy(out, s.positionMM)
	return out
}

func (s *MachineState) addPosition(axis int, deltaMM float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionMM[axis] += deltaMM
}

func (s *MachineState) zeroPosition(axis int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionMM[axis] = 0
}

// SteppersEnabled reports the last commanded stepper-enable state.
func (s *MachineState) SteppersEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steppersEnabled
}

func (s *MachineState) setSteppersEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steppersEnabled = enabled
}

// LaserCurrent returns the last commanded laser current, in milliamps.
func (s *MachineState) LaserCurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laserCurrent
}

func (s *MachineState) setLaserCurrent(ma int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.laserCurrent = ma
}
