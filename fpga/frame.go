// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import "encoding/binary"

// CommandFrame is one 9-byte SPI exchange: [opcode, word[0..7]].
type CommandFrame [FrameBytes]byte

// Opcode returns the frame's command byte.
func (f CommandFrame) Opcode() Opcode { return Opcode(f[0]) }

func newFrame(op Opcode, payload [WordBytes]byte) CommandFrame {
	var f CommandFrame
	f[0] = byte(op)
	copy(f[1:], payload[:])
	return f
}

// EncodeEmpty builds a no-op frame; the FPGA still returns its status.
func EncodeEmpty() CommandFrame { return newFrame(OpEmpty, [WordBytes]byte{}) }

// EncodeRead builds a status-read frame.
func EncodeRead() CommandFrame { return newFrame(OpRead, [WordBytes]byte{}) }

// EncodeDebug builds a frame requesting the facet tick-count/id readout.
func EncodeDebug() CommandFrame { return newFrame(OpDebug, [WordBytes]byte{}) }

// EncodePosition builds a frame requesting the next axis's step counter.
func EncodePosition() CommandFrame { return newFrame(OpPosition, [WordBytes]byte{}) }

// EncodeStart builds a frame enabling FIFO parsing.
func EncodeStart() CommandFrame { return newFrame(OpStart, [WordBytes]byte{}) }

// EncodeStop builds a frame disabling FIFO parsing.
func EncodeStop() CommandFrame { return newFrame(OpStop, [WordBytes]byte{}) }

// EncodeWrite builds a write frame carrying one raw 8-byte payload word.
func EncodeWrite(payload [WordBytes]byte) CommandFrame { return newFrame(OpWrite, payload) }

// PinFlags is the 5-bit flag word latched by a write_pin instruction.
// Effects take hold on the cycle the FPGA consumes the word;
// write_pin is not gated by the `parsing` flag.
type PinFlags struct {
	Laser0      bool
	Laser1      bool
	Polygon     bool
	Synchronize bool
	SingleFacet bool
}

const (
	pinFlagLaser0 = 1 << iota
	pinFlagLaser1
	pinFlagPolygon
	pinFlagSynchronize
	pinFlagSingleFacet
)

func (p PinFlags) pack() byte {
	var b byte
	if p.Laser0 {
		b |= pinFlagLaser0
	}
	if p.Laser1 {
		b |= pinFlagLaser1
	}
	if p.Polygon {
		b |= pinFlagPolygon
	}
	if p.Synchronize {
		b |= pinFlagSynchronize
	}
	if p.SingleFacet {
		b |= pinFlagSingleFacet
	}
	return b
}

// EncodeWritePin builds the single-word write_pin instruction frame: the
// instruction tag occupies the word's LSB byte (frame[8]), the packed
// flag byte sits immediately before it (frame[7]).
func EncodeWritePin(flags PinFlags) CommandFrame {
	var payload [WordBytes]byte
	payload[WordBytes-2] = flags.pack()
	payload[WordBytes-1] = byte(InstrWritePin)
	return EncodeWrite(payload)
}

// MoveSegment is one fixed-tick polynomial move segment: Coeffs is
// indexed [axis][degree] and need not supply every degree for every
// axis — EncodeMove zero-pads missing high-order terms.
type MoveSegment struct {
	Ticks  uint32
	Coeffs [][]int64
}

// EncodeMove builds the instruction-tag frame followed by
// motors*pol_degree signed coefficient frames for one move segment.
// The returned slice always has length cfg.WordsPerMove.
func EncodeMove(cfg *HardwareConfig, seg MoveSegment) ([]CommandFrame, error) {
	if seg.Ticks < 1 || seg.Ticks > cfg.MoveTicks {
		return nil, &InvalidArgumentError{Arg: "ticks", Reason: "must satisfy 0 < ticks <= move_ticks"}
	}
	motors := cfg.Motors()
	if len(seg.Coeffs) != motors {
		return nil, &InvalidArgumentError{Arg: "coeffs", Reason: "must supply one coefficient vector per motor"}
	}

	frames := make([]CommandFrame, 0, cfg.WordsPerMove)

	var header [WordBytes]byte
	var tick7 [8]byte
	binary.BigEndian.PutUint64(tick7[:], uint64(seg.Ticks))
	copy(header[0:7], tick7[1:8]) // 7-byte unsigned tick count in the high bytes
	header[WordBytes-1] = byte(InstrMove)
	frames = append(frames, EncodeWrite(header))

	for axis := 0; axis < motors; axis++ {
		axisCoeffs := seg.Coeffs[axis]
		if len(axisCoeffs) > cfg.PolDegree {
			return nil, &InvalidArgumentError{Arg: "coeffs", Reason: "more coefficients supplied than pol_degree"}
		}
		for deg := 0; deg < cfg.PolDegree; deg++ {
			var c int64
			if deg < len(axisCoeffs) {
				c = axisCoeffs[deg]
			}
			var payload [WordBytes]byte
			binary.BigEndian.PutUint64(payload[:], uint64(c))
			frames = append(frames, EncodeWrite(payload))
		}
	}

	if len(frames) != cfg.WordsPerMove {
		return nil, &InvalidConfigError{Field: "words_per_move", Reason: "encoded frame count does not match derived words_per_move"}
	}
	return frames, nil
}

// EncodeLastScanline builds the end-of-exposure sentinel frame: the tag
// occupies payload byte 0 (the wire's first transmitted byte under the
// scanline byte-reversal convention, see scanline.go), all other bytes
// are zero.
func EncodeLastScanline() CommandFrame {
	var payload [WordBytes]byte
	payload[0] = byte(InstrLastScanline)
	return EncodeWrite(payload)
}
