// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"context"
	"testing"
)

func testScanlineConfig(t *testing.T) *HardwareConfig {
	t.Helper()
	cfg, err := NewHardwareConfig(testHardwareParams(), 64)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestEncodeScanline_emptyIsSentinel(t *testing.T) {
	cfg := testScanlineConfig(t)
	frames, err := EncodeScanline(cfg, Scanline{})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || InstructionTag(frames[0][1]) != InstrLastScanline {
		t.Fatalf("expected single last_scanline sentinel frame, got %v", frames)
	}
}

func TestEncodeScanline_wrongLength(t *testing.T) {
	cfg := testScanlineConfig(t)
	bits := make([]bool, cfg.ScanlineLengthBits-1)
	if _, err := EncodeScanline(cfg, Scanline{Bits: bits, StepsPerLine: 1}); err == nil {
		t.Fatal("expected InvalidScanlineError for wrong bit length")
	}
}

func TestEncodeScanline_halfPeriodTooSmall(t *testing.T) {
	cfg := testScanlineConfig(t)
	bits := make([]bool, cfg.ScanlineLengthBits)
	// steps_per_line so large that half_period rounds down to zero.
	if _, err := EncodeScanline(cfg, Scanline{Bits: bits, StepsPerLine: float64(cfg.ScanlineLengthBits)}); err == nil {
		t.Fatal("expected error for half_period < 1")
	}
}

func TestEncodeScanline_wordAligned(t *testing.T) {
	cfg := testScanlineConfig(t)
	bits := make([]bool, cfg.ScanlineLengthBits)
	for i := range bits {
		bits[i] = i%2 == 0
	}
	frames, err := EncodeScanline(cfg, Scanline{Bits: bits, StepsPerLine: 1, Direction: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != cfg.WordsPerScanline {
		t.Fatalf("len(frames) = %d, want words_per_scanline = %d", len(frames), cfg.WordsPerScanline)
	}
}

func TestEncodeScanlineCycle_facetGating(t *testing.T) {
	cfg := testScanlineConfig(t)
	bits := make([]bool, cfg.ScanlineLengthBits)
	bits[0] = true
	sl := Scanline{Bits: bits, StepsPerLine: 1}

	frames, err := EncodeScanlineCycle(cfg, sl, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 4*cfg.WordsPerScanline {
		t.Fatalf("len(frames) = %d, want %d", len(frames), 4*cfg.WordsPerScanline)
	}
}

func TestEncodeScanlineCycle_invalidFacet(t *testing.T) {
	cfg := testScanlineConfig(t)
	bits := make([]bool, cfg.ScanlineLengthBits)
	sl := Scanline{Bits: bits, StepsPerLine: 1}
	if _, err := EncodeScanlineCycle(cfg, sl, 4, 4); err == nil {
		t.Fatal("expected error for facet index out of range")
	}
}

func TestWriteLine(t *testing.T) {
	cfg := testScanlineConfig(t)
	bits := make([]bool, cfg.ScanlineLengthBits)
	sl := Scanline{Bits: bits, StepsPerLine: 1}

	wordsPerCycle := cfg.WordsPerScanline * 4
	exch := &scriptedExchanger{responses: []CommandFrame{statusFrame(false, true, false)}}
	gate, err := NewBackpressureGate(exch, cfg.Motors(), nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteLine(context.Background(), gate, cfg, sl, 0, 4, 2, wordsPerCycle); err != nil {
		t.Fatal(err)
	}
	if exch.calls != 2*wordsPerCycle {
		t.Fatalf("exch.calls = %d, want %d", exch.calls, 2*wordsPerCycle)
	}
}
