// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import "testing"

func TestDecodeStatus_allOnes(t *testing.T) {
	var frame [FrameBytes]byte
	frame[7] = 0xFF
	frame[8] = 0xFF
	got, err := DecodeStatus(frame, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Full || !got.Parsing || !got.Error {
		t.Fatalf("status bits not all set: %+v", got)
	}
	if !got.Pins.PhotodiodeTrigger || !got.Pins.Synchronized {
		t.Fatalf("pin flags not all set: %+v", got)
	}
	for i, e := range got.Pins.Endstop {
		if !e {
			t.Fatalf("endstop[%d] not set", i)
		}
	}
}

func TestDecodeStatus_zero(t *testing.T) {
	var frame [FrameBytes]byte
	got, err := DecodeStatus(frame, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Full || got.Parsing || got.Error || got.Pins.PhotodiodeTrigger || got.Pins.Synchronized {
		t.Fatalf("expected all-clear status, got %+v", got)
	}
}

func TestDecodeStatus_tooManyMotors(t *testing.T) {
	var frame [FrameBytes]byte
	if _, err := DecodeStatus(frame, 7); err == nil {
		t.Fatal("expected error for motors > 6")
	}
}

func TestDecodeStatus_oneAxisEndstop(t *testing.T) {
	var frame [FrameBytes]byte
	frame[7] = 1 << 1 // axis 1's endstop bit
	got, err := DecodeStatus(frame, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{false, true, false}
	for i := range want {
		if got.Pins.Endstop[i] != want[i] {
			t.Fatalf("endstop[%d] = %v, want %v", i, got.Pins.Endstop[i], want[i])
		}
	}
}
