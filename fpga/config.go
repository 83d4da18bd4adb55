// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"math"
	"time"

	"periph.io/x/periph/conn/physic"
)

// AxisConfig names one motor axis and its steps-per-millimetre scale.
// HardwareConfig.Axes is an ordered slice rather than a map because the
// wire order of per-axis fields (move coefficients, endstop bits) is
// exactly the slice order; Go maps carry no iteration order.
type AxisConfig struct {
	Name       string
	StepsPerMM float64
}

// HardwareConfigParams are the raw, user-supplied inputs to
// NewHardwareConfig.
type HardwareConfigParams struct {
	Axes            []AxisConfig
	OrthToLaserline string // axis name whose motion is measured in scan lines
	PolDegree       int    // 2 or 3
	MemDepth        int    // FIFO depth, in words
	MoveTicks       uint32 // max ticks per move segment
	MotorFreq       physic.Frequency
	MemWidthBits    int
}

// HardwareConfig is the immutable, validated parameter bundle describing
// the motion side of the machine.
type HardwareConfig struct {
	Axes             []AxisConfig
	OrthToLaserline  string
	PolDegree        int
	MemDepth         int
	MoveTicks        uint32
	MotorFreq        physic.Frequency
	BitShift         uint
	MemWidthBits       int
	WordsPerMove       int
	WordsPerScanline   int
	ScanlineLengthBits int
}

// Motors returns the number of configured motion axes.
func (c *HardwareConfig) Motors() int { return len(c.Axes) }

// AxisIndex returns the wire-order index of the named axis.
func (c *HardwareConfig) AxisIndex(name string) (int, bool) {
	for i, a := range c.Axes {
		if a.Name == name {
			return i, true
		}
	}
	return 0, false
}

// NewHardwareConfig validates params and derives bit_shift, words_per_move
// and words_per_scanline. scanlineLengthBits must come from a LaserTiming
// already derived for the same machine, since words_per_scanline depends
// on the derived scanline_length.
func NewHardwareConfig(p HardwareConfigParams, scanlineLengthBits int) (*HardwareConfig, error) {
	if len(p.Axes) < 1 {
		return nil, &InvalidConfigError{Field: "axes", Reason: "must configure at least one motor"}
	}
	seen := map[string]bool{}
	orthCount := 0
	for _, a := range p.Axes {
		if a.StepsPerMM <= 0 {
			return nil, &InvalidConfigError{Field: "axes." + a.Name + ".steps_per_mm", Reason: "must be positive"}
		}
		if seen[a.Name] {
			return nil, &InvalidConfigError{Field: "axes." + a.Name, Reason: "duplicate axis name"}
		}
		seen[a.Name] = true
		if a.Name == p.OrthToLaserline {
			orthCount++
		}
	}
	if orthCount != 1 {
		return nil, &InvalidConfigError{Field: "orth_to_laserline", Reason: "must name exactly one configured axis"}
	}

	var bitShift uint
	switch p.PolDegree {
	case 2:
		bitShift = 25
	case 3:
		bitShift = 40
	default:
		return nil, &InvalidConfigError{Field: "pol_degree", Reason: "must be 2 or 3"}
	}
	if p.MemDepth < 1 {
		return nil, &InvalidConfigError{Field: "mem_depth", Reason: "must be positive"}
	}
	if p.MoveTicks < 1 {
		return nil, &InvalidConfigError{Field: "move_ticks", Reason: "must be positive"}
	}
	if p.MotorFreq <= 0 {
		return nil, &InvalidConfigError{Field: "motor_freq", Reason: "must be positive"}
	}
	if p.MemWidthBits < WordBytes*8 {
		return nil, &InvalidConfigError{Field: "mem_width_bits", Reason: "must be at least one word wide"}
	}
	if scanlineLengthBits <= 0 {
		return nil, &InvalidConfigError{Field: "scanline_length", Reason: "must be positive"}
	}

	motors := len(p.Axes)
	wordsPerMove := ceilDiv(1+7+motors*p.PolDegree*8, WordBytes)
	scanlineDataBytes := ceilDiv(scanlineLengthBits, 8)
	wordsPerScanline := ceilDiv(1+7+scanlineDataBytes, WordBytes)

	cfg := &HardwareConfig{
		Axes:               append([]AxisConfig(nil), p.Axes...),
		OrthToLaserline:    p.OrthToLaserline,
		PolDegree:          p.PolDegree,
		MemDepth:           p.MemDepth,
		MoveTicks:          p.MoveTicks,
		MotorFreq:          p.MotorFreq,
		BitShift:           bitShift,
		MemWidthBits:       p.MemWidthBits,
		WordsPerMove:       wordsPerMove,
		WordsPerScanline:   wordsPerScanline,
		ScanlineLengthBits: scanlineLengthBits,
	}
	return cfg, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// LaserTimingParams are the raw inputs to NewLaserTiming.
type LaserTimingParams struct {
	RPM         float64
	SpinupTime  time.Duration
	StableTime  time.Duration
	LaserFreq   physic.Frequency
	StartFrac   float64
	EndFrac     float64
	Facets      int
	CrystalFreq physic.Frequency
}

// LaserTiming is derived from LaserTimingParams. All tick fields are
// expressed in crystal-clock ticks.
type LaserTiming struct {
	FacetTicks             uint64
	LaserTicks             uint64
	SpinupTicks            uint64
	StableTicks            uint64
	ScanlineLength         int // bits
	MotorPeriod            uint64
	JitterSyncTicks        uint64
	JitterExpPerc          float64
	PhotodiodeTriggerTicks uint64
	PhotodiodeRearmTicks   uint64
}

// NewLaserTiming derives a LaserTiming and validates its invariants.
// testMode skips rounding scanline_length up to a multiple of 8, which
// production firmware requires for byte-aligned DMA but which makes
// hand-checking short test vectors awkward.
func NewLaserTiming(p LaserTimingParams, testMode bool) (*LaserTiming, error) {
	if p.RPM <= 0 {
		return nil, &InvalidConfigError{Field: "rpm", Reason: "must be positive"}
	}
	if p.Facets < 1 {
		return nil, &InvalidConfigError{Field: "facets", Reason: "must be positive"}
	}
	if p.CrystalFreq <= 0 {
		return nil, &InvalidConfigError{Field: "crystal_hz", Reason: "must be positive"}
	}
	if p.LaserFreq <= 0 {
		return nil, &InvalidConfigError{Field: "laser_hz", Reason: "must be positive"}
	}
	if p.StartFrac < 0 || p.EndFrac > 1 || p.StartFrac >= p.EndFrac {
		return nil, &InvalidConfigError{Field: "start_frac/end_frac", Reason: "must satisfy 0 <= start_frac < end_frac <= 1"}
	}

	crystalHz := float64(p.CrystalFreq) / float64(physic.Hertz)
	laserHz := float64(p.LaserFreq) / float64(physic.Hertz)
	polyHz := p.RPM / 60

	facetTicks := uint64(math.Round(crystalHz / (polyHz * float64(p.Facets))))
	if facetTicks == 0 {
		return nil, &InvalidConfigError{Field: "facet_ticks", Reason: "derived value is zero; rpm/facets too high for crystal_hz"}
	}
	laserTicks := uint64(math.Floor(crystalHz / laserHz))
	if laserTicks <= 2 {
		return nil, &InvalidConfigError{Field: "laser_ticks", Reason: "must be greater than 2"}
	}
	spinupTicks := uint64(math.Round(p.SpinupTime.Seconds() * crystalHz))
	stableTicks := uint64(math.Round(p.StableTime.Seconds() * crystalHz))
	jitterSyncTicks := uint64(math.Round(0.01 * float64(facetTicks)))
	const jitterExpPerc = 0.2

	if float64(jitterSyncTicks)+1 > float64(facetTicks)*(1-p.EndFrac) {
		return nil, &InvalidConfigError{
			Field:  "end_frac",
			Reason: "end_frac*facet_ticks + jitter_sync_ticks + 1 must be <= facet_ticks",
		}
	}

	scanlineLength := int(math.Round(float64(facetTicks) * (p.EndFrac - p.StartFrac) / float64(laserTicks)))
	if scanlineLength <= 0 {
		return nil, &InvalidConfigError{Field: "scanline_length", Reason: "derived value is not positive"}
	}
	if !testMode {
		scanlineLength = ceilDiv(scanlineLength, 8) * 8
	}

	motorPeriod := uint64(math.Floor(crystalHz / (polyHz * 12)))

	return &LaserTiming{
		FacetTicks:             facetTicks,
		LaserTicks:             laserTicks,
		SpinupTicks:            spinupTicks,
		StableTicks:            stableTicks,
		ScanlineLength:         scanlineLength,
		MotorPeriod:            motorPeriod,
		JitterSyncTicks:        jitterSyncTicks,
		JitterExpPerc:          jitterExpPerc,
		PhotodiodeTriggerTicks: jitterSyncTicks,
		PhotodiodeRearmTicks:   facetTicks - jitterSyncTicks,
	}, nil
}

// MachineConfig bundles the two derived configuration halves. The laser
// timing must be derived first since HardwareConfig.WordsPerScanline
// depends on its scanline_length (rule 11 depends on rule 7).
type MachineConfig struct {
	Hardware *HardwareConfig
	Laser    *LaserTiming
}

// NewMachineConfig runs the full derivation in order: laser timing
// first, then hardware config, which needs the derived scanline length.
func NewMachineConfig(hw HardwareConfigParams, laser LaserTimingParams, testMode bool) (*MachineConfig, error) {
	lt, err := NewLaserTiming(laser, testMode)
	if err != nil {
		return nil, err
	}
	hc, err := NewHardwareConfig(hw, lt.ScanlineLength)
	if err != nil {
		return nil, err
	}
	return &MachineConfig{Hardware: hc, Laser: lt}, nil
}
