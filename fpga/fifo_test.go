// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"context"
	"errors"
	"testing"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpiotest"
)

// scriptedExchanger replays a fixed sequence of responses, one per call,
// holding the last response for any extra calls beyond the script.
type scriptedExchanger struct {
	responses []CommandFrame
	calls     int
}

func statusFrame(full, parsing, errBit bool) CommandFrame {
	var f CommandFrame
	var b byte
	if full {
		b |= statusBitFull
	}
	if parsing {
		b |= statusBitParsing
	}
	if errBit {
		b |= statusBitError
	}
	f[8] = b
	return f
}

func (s *scriptedExchanger) Exchange(frame CommandFrame) (CommandFrame, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func TestBackpressureGate_Send_notFull(t *testing.T) {
	exch := &scriptedExchanger{responses: []CommandFrame{statusFrame(false, true, false)}}
	gate, err := NewBackpressureGate(exch, 2, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gate.Send(context.Background(), EncodeEmpty(), true); err != nil {
		t.Fatal(err)
	}
}

func TestBackpressureGate_Send_fpgaError(t *testing.T) {
	exch := &scriptedExchanger{responses: []CommandFrame{statusFrame(false, true, true)}}
	gate, err := NewBackpressureGate(exch, 2, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	_, err = gate.Send(context.Background(), EncodeEmpty(), true)
	var fe *FpgaError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FpgaError, got %v", err)
	}
}

func TestBackpressureGate_Send_pollUntilSpace(t *testing.T) {
	exch := &scriptedExchanger{responses: []CommandFrame{
		statusFrame(true, true, false),
		statusFrame(true, true, false),
		statusFrame(false, true, false),
	}}
	gate, err := NewBackpressureGate(exch, 2, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gate.Send(context.Background(), EncodeEmpty(), true); err != nil {
		t.Fatal(err)
	}
	if exch.calls != 3 {
		t.Fatalf("expected 3 exchanges (1 send + 2 polls), got %d", exch.calls)
	}
}

func TestBackpressureGate_Send_fifoFullExhausted(t *testing.T) {
	exch := &scriptedExchanger{responses: []CommandFrame{statusFrame(true, true, false)}}
	gate, err := NewBackpressureGate(exch, 2, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	_, err = gate.Send(context.Background(), EncodeEmpty(), true)
	var ffe *FifoFullError
	if !errors.As(err, &ffe) {
		t.Fatalf("expected FifoFullError, got %v", err)
	}
}

func TestBackpressureGate_edgeLevelSafe(t *testing.T) {
	pin := &gpiotest.Pin{N: "mem_full", L: gpio.Low, EdgesChan: make(chan gpio.Level, 1)}
	exch := &scriptedExchanger{responses: []CommandFrame{statusFrame(true, true, false)}}
	gate, err := NewBackpressureGate(exch, 2, pin, 5)
	if err != nil {
		t.Fatal(err)
	}
	// pin is already low (space already available) by the time the gate
	// checks; it must not block waiting for an edge that has already
	// happened.
	if _, err := gate.Send(context.Background(), EncodeEmpty(), true); err != nil {
		t.Fatal(err)
	}
}

func TestNewBackpressureGate_invalidMaxTrials(t *testing.T) {
	if _, err := NewBackpressureGate(&scriptedExchanger{}, 2, nil, 0); err == nil {
		t.Fatal("expected error for non-positive maxTrials")
	}
}
