// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"periph.io/x/periph/conn/i2c/i2ctest"
)

type facetExchanger struct {
	ticks   []uint64
	facetID []byte
	i       int
}

func (f *facetExchanger) Exchange(frame CommandFrame) (CommandFrame, error) {
	var resp CommandFrame
	var tick8 [8]byte
	binary.BigEndian.PutUint64(tick8[:], f.ticks[f.i%len(f.ticks)])
	copy(resp[1:8], tick8[1:8])
	resp[8] = f.facetID[f.i%len(f.facetID)]
	f.i++
	return resp, nil
}

func TestLaserHead_EnableComponents(t *testing.T) {
	exch := &scriptedExchanger{responses: []CommandFrame{statusFrame(false, true, false)}}
	gate, err := NewBackpressureGate(exch, 2, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	lh, err := NewLaserHead(exch, nil, 4, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if err := lh.EnableComponents(context.Background(), gate, PinFlags{Laser0: true, Polygon: true}); err != nil {
		t.Fatal(err)
	}
}

func TestLaserHead_SetLaserCurrent_outOfRange(t *testing.T) {
	exch := &scriptedExchanger{}
	lh, err := NewLaserHead(exch, nil, 4, 2000)
	if err != nil {
		t.Fatal(err)
	}
	state := NewMachineState(2)
	if err := lh.SetLaserCurrent(state, 200); err == nil {
		t.Fatal("expected error for current above 150mA")
	}
}

func TestLaserHead_SetLaserCurrent_noDigipot(t *testing.T) {
	exch := &scriptedExchanger{}
	lh, err := NewLaserHead(exch, nil, 4, 2000)
	if err != nil {
		t.Fatal(err)
	}
	state := NewMachineState(2)
	err = lh.SetLaserCurrent(state, 50)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError when no bus is configured, got %v", err)
	}
}

func TestLaserHead_SetLaserCurrent_writesDigipot(t *testing.T) {
	i := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: digipotAddr, W: []byte{75}},
		},
	}
	exch := &scriptedExchanger{}
	lh, err := NewLaserHead(exch, &i, 4, 2000)
	if err != nil {
		t.Fatal(err)
	}
	state := NewMachineState(2)
	if err := lh.SetLaserCurrent(state, 75); err != nil {
		t.Fatal(err)
	}
	if err := i.Close(); err != nil {
		t.Fatalf("digipot write did not match expected I2C traffic: %v", err)
	}
	if got := state.LaserCurrent(); got != 75 {
		t.Fatalf("state.LaserCurrent() = %d, want 75", got)
	}
}

func TestMeasureFacetPeriod(t *testing.T) {
	exch := &facetExchanger{
		ticks:   []uint64{1000, 1010, 990, 1005},
		facetID: []byte{0, 1, 2, 3},
	}
	lh, err := NewLaserHead(exch, nil, 4, 12000)
	if err != nil {
		t.Fatal(err)
	}
	samples, err := lh.MeasureFacetPeriod(context.Background(), 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[int]int{}
	for _, s := range samples {
		counts[s.FacetID]++
	}
	for facet := 0; facet < 4; facet++ {
		if counts[facet] < 1 {
			t.Fatalf("facet %d never sampled", facet)
		}
	}
}

func TestMeasureFacetPeriod_maxTrialsExhausted(t *testing.T) {
	exch := &facetExchanger{ticks: []uint64{1000}, facetID: []byte{0}}
	lh, err := NewLaserHead(exch, nil, 4, 12000)
	if err != nil {
		t.Fatal(err)
	}
	_, err = lh.MeasureFacetPeriod(context.Background(), 5, 3)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestTestLaserhead_stalled(t *testing.T) {
	samples := []FacetSample{{PeriodTicks: 1, FacetID: 0}}
	err := TestLaserhead(samples, 48e6, 2000, 4, 0.2)
	if err == nil {
		t.Fatal("expected error for implausibly short observed period")
	}
}

func TestTestLaserhead_ok(t *testing.T) {
	crystalHz := 48e6
	expectedMs := 60 / (2000.0 * 4 / 1000)
	ticks := uint64(expectedMs / 1000 * crystalHz)
	samples := []FacetSample{{PeriodTicks: ticks}, {PeriodTicks: ticks}, {PeriodTicks: ticks}}
	if err := TestLaserhead(samples, crystalHz, 2000, 4, 0.2); err != nil {
		t.Fatal(err)
	}
}
