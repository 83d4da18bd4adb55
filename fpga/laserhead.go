// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"

	"periph.io/x/periph/conn/i2c"
)

// digipotAddr is the platform-defined I²C address of the laser-current
// digipot.
const digipotAddr = 0x2f

// LaserHead owns enable_components, laser current, and facet-period
// measurement/validation.
type LaserHead struct {
	exch   Exchanger
	pot    i2c.Dev
	facets int
	rpm    float64
}

// NewLaserHead builds a LaserHead. bus may be nil if no digipot is
// wired, in which case SetLaserCurrent returns a TransportError.
func NewLaserHead(exch Exchanger, bus i2c.Bus, facets int, rpm float64) (*LaserHead, error) {
	if facets < 1 {
		return nil, &InvalidArgumentError{Arg: "facets", Reason: "must be positive"}
	}
	if rpm <= 0 {
		return nil, &InvalidArgumentError{Arg: "rpm", Reason: "must be positive"}
	}
	lh := &LaserHead{exch: exch, facets: facets, rpm: rpm}
	if bus != nil {
		lh.pot = i2c.Dev{Bus: bus, Addr: digipotAddr}
	}
	return lh, nil
}

// EnableComponents encodes laser0/laser1/polygon/synchronize/single_facet
// into one write_pin instruction. It is idempotent: issuing the
// same flags twice in a row produces identical observable pin state.
func (h *LaserHead) EnableComponents(ctx context.Context, gate *BackpressureGate, flags PinFlags) error {
	_, err := gate.Send(ctx, EncodeWritePin(flags), false)
	return err
}

// SetLaserCurrent writes ma (0..150) to the digipot.
func (h *LaserHead) SetLaserCurrent(state *MachineState, ma int) error {
	if ma < 0 || ma > maxLaserCurrent {
		return &InvalidArgumentError{Arg: "ma", Reason: "must be in [0, 150]"}
	}
	if h.pot.Bus == nil {
		return &TransportError{Op: "laser current", Err: errNoDigipot}
	}
	if err := h.pot.Tx([]byte{byte(ma)}, nil); err != nil {
		return &TransportError{Op: "laser current", Err: err}
	}
	state.setLaserCurrent(ma)
	return nil
}

var errNoDigipot = &InvalidConfigError{Field: "digipot", Reason: "no I2C bus configured for laser current control"}

// FacetSample is one debug-read observation: the FPGA's most recent
// facet tick count and the facet id it was measured on.
type FacetSample struct {
	PeriodTicks uint64
	FacetID     int
}

// expectedFacetPeriod returns the nominal per-facet rotation period.
func (h *LaserHead) expectedFacetPeriod() time.Duration {
	perFacetHz := h.rpm / 60 * float64(h.facets)
	return time.Duration(float64(time.Second) / perFacetHz)
}

// MeasureFacetPeriod repeatedly issues debug reads until every facet has
// accumulated at least samplesTarget samples or maxTrials reads have
// been issued. Samples are paced with a randomized fraction of
// the expected per-facet period to avoid aliasing with the polygon
// rotation.
func (h *LaserHead) MeasureFacetPeriod(ctx context.Context, samplesTarget, maxTrials int) ([]FacetSample, error) {
	if samplesTarget < 1 {
		return nil, &InvalidArgumentError{Arg: "samplesTarget", Reason: "must be positive"}
	}
	if maxTrials < 1 {
		return nil, &InvalidArgumentError{Arg: "maxTrials", Reason: "must be positive"}
	}

	counts := make([]int, h.facets)
	var samples []FacetSample
	expected := h.expectedFacetPeriod()

	for trial := 0; trial < maxTrials; trial++ {
		if ctx.Err() != nil {
			return samples, ctx.Err()
		}
		resp, err := h.exch.Exchange(EncodeDebug())
		if err != nil {
			return samples, err
		}
		var ticks7 [8]byte
		copy(ticks7[1:], resp[1:8])
		periodTicks := binary.BigEndian.Uint64(ticks7[:])
		facetID := int(resp[8])
		if facetID >= 0 && facetID < h.facets {
			counts[facetID]++
			samples = append(samples, FacetSample{PeriodTicks: periodTicks, FacetID: facetID})
		}

		done := true
		for _, c := range counts {
			if c < samplesTarget {
				done = false
				break
			}
		}
		if done {
			return samples, nil
		}

		pace := time.Duration((0.5 + rand.Float64()) * float64(expected) / 2)
		select {
		case <-ctx.Done():
			return samples, ctx.Err()
		case <-time.After(pace):
		}
	}
	return samples, &TimeoutError{Op: "measure_facet_period"}
}

// TestLaserhead validates the samples returned by MeasureFacetPeriod
// against two checks: minimum observed period, and relative jitter
// below jitterExpPerc.
func TestLaserhead(samples []FacetSample, crystalHz float64, rpm float64, facets int, jitterExpPerc float64) error {
	if len(samples) == 0 {
		return &InvalidArgumentError{Arg: "samples", Reason: "no samples collected"}
	}
	periodsMs := make([]float64, len(samples))
	for i, s := range samples {
		periodsMs[i] = float64(s.PeriodTicks) / crystalHz * 1000
	}

	min, max, sum := periodsMs[0], periodsMs[0], 0.0
	for _, p := range periodsMs {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
		sum += p
	}
	mean := sum / float64(len(periodsMs))

	expectedMs := 60 / (rpm * float64(facets) / 1000)
	if min < expectedMs/2 {
		return &InvalidArgumentError{Arg: "period", Reason: "observed minimum period below half the expected value; motor stalled or mis-synchronized"}
	}

	jitter := (mean - min + max - mean) / mean * 100
	if jitter >= jitterExpPerc {
		return &InvalidArgumentError{Arg: "jitter", Reason: "relative jitter exceeds jitter_exp_perc"}
	}
	return nil
}
