// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"context"
	"math"
)

// defaultLinesChunk is the number of words the streaming writer issues
// between backpressure waits; it is a hardware-configurable constant.
const defaultLinesChunk = 64

// Scanline is one exposure line: Bits holds one bool per laser sample
// (true = fire), StepsPerLine is the commanded stage speed expressed in
// motor steps per scanline, and Direction selects scan polarity. A nil
// or empty Bits is the end-of-exposure sentinel.
type Scanline struct {
	Bits         []bool
	StepsPerLine float64
	Direction    int
}

// EncodeScanline builds the write-frame sequence for one scanline
// against cfg's derived scanline_length. Bits must be empty
// (end-of-exposure sentinel) or exactly cfg.ScanlineLengthBits long.
func EncodeScanline(cfg *HardwareConfig, sl Scanline) ([]CommandFrame, error) {
	if len(sl.Bits) == 0 {
		return []CommandFrame{EncodeLastScanline()}, nil
	}
	if sl.Direction != 0 && sl.Direction != 1 {
		return nil, &InvalidArgumentError{Arg: "direction", Reason: "must be 0 or 1"}
	}
	if len(sl.Bits) != cfg.ScanlineLengthBits {
		return nil, &InvalidScanlineError{Reason: "bits length must equal the configured scanline_length"}
	}
	if sl.StepsPerLine <= 0 {
		return nil, &InvalidArgumentError{Arg: "steps_per_line", Reason: "must be positive"}
	}

	halfPeriod := int64(math.Floor(float64(cfg.ScanlineLengthBits-1) / (sl.StepsPerLine * 2)))
	if halfPeriod < 1 {
		return nil, &InvalidScanlineError{Reason: "half_period < 1: commanded speed exceeds what this scanline length can emit"}
	}

	// Assemble the raw byte stream in logical order, then split into
	// 8-byte words and reverse each word in place before handing it to
	// EncodeWrite.
	var stream []byte
	stream = append(stream, byte(InstrScanline))
	headerWord := packHeader(sl.Direction, uint64(halfPeriod))
	stream = append(stream, headerWord[:7]...)
	stream = append(stream, packBits(sl.Bits)...)

	for len(stream)%WordBytes != 0 {
		stream = append(stream, 0)
	}

	frames := make([]CommandFrame, 0, len(stream)/WordBytes)
	for off := 0; off < len(stream); off += WordBytes {
		var payload [WordBytes]byte
		copy(payload[:], stream[off:off+WordBytes])
		reverseBytes(payload[:])
		frames = append(frames, EncodeWrite(payload))
	}
	return frames, nil
}

// packHeader lays out the 7-byte little-endian header: bit 0 of byte 0
// is direction, bits 1..55 hold half_period.
func packHeader(direction int, halfPeriod uint64) [7]byte {
	var w [7]byte
	v := halfPeriod << 1
	if direction != 0 {
		v |= 1
	}
	for i := 0; i < 7; i++ {
		w[i] = byte(v >> (8 * uint(i)))
	}
	return w
}

// packBits packs bits into little-endian-bit-order bytes, one bit per
// sample, padding the final byte with zero bits.
func packBits(bits []bool) []byte {
	out := make([]byte, ceilDiv(len(bits), 8))
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// EncodeScanlineCycle builds one full facet-gated cycle: an exposing
// scanline at position facet within the rotation, and
// facets-1 silent (all-zero laser data, same header) scanlines filling
// the remaining positions, so that the k-th scanline consumed by the
// FPGA lands on facet k mod facets.
func EncodeScanlineCycle(cfg *HardwareConfig, sl Scanline, facet, facets int) ([]CommandFrame, error) {
	if facets < 1 {
		return nil, &InvalidArgumentError{Arg: "facets", Reason: "must be positive"}
	}
	if facet < 0 || facet >= facets {
		return nil, &InvalidArgumentError{Arg: "facet", Reason: "out of range"}
	}
	silent := Scanline{Bits: make([]bool, len(sl.Bits)), StepsPerLine: sl.StepsPerLine, Direction: sl.Direction}

	var frames []CommandFrame
	for i := 0; i < facets; i++ {
		line := silent
		if i == facet {
			line = sl
		}
		lineFrames, err := EncodeScanline(cfg, line)
		if err != nil {
			return nil, err
		}
		frames = append(frames, lineFrames...)
	}
	return frames, nil
}

// WriteLine streams repetitions copies of the facet-gated cycle for sl
// through gate, chunked at linesChunk words per backpressure wait.
// A linesChunk <= 0 uses defaultLinesChunk.
func WriteLine(ctx context.Context, gate *BackpressureGate, cfg *HardwareConfig, sl Scanline, facet, facets, repetitions, linesChunk int) error {
	if repetitions < 0 {
		return &InvalidArgumentError{Arg: "repetitions", Reason: "must be non-negative"}
	}
	if linesChunk <= 0 {
		linesChunk = defaultLinesChunk
	}
	cycle, err := EncodeScanlineCycle(cfg, sl, facet, facets)
	if err != nil {
		return err
	}

	sent := 0
	for rep := 0; rep < repetitions; rep++ {
		for _, fr := range cycle {
			awaitSpace := sent > 0 && sent%linesChunk == 0
			if _, err := gate.Send(ctx, fr, awaitSpace); err != nil {
				return err
			}
			sent++
		}
	}
	return nil
}
