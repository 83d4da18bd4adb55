// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import "fmt"

// PinState is the decoded contents of a response's pin-state byte: one
// endstop bit per axis, plus the photodiode trigger and synchronized
// flags.
type PinState struct {
	Endstop           []bool // len == motors, axis order == HardwareConfig.Axes
	PhotodiodeTrigger bool
	Synchronized      bool
}

// Status is the fully decoded tail of any SPI response frame.
type Status struct {
	Full    bool
	Parsing bool
	Error   bool
	Pins    PinState
}

func (s Status) String() string {
	return fmt.Sprintf("Status{full:%v parsing:%v error:%v endstop:%v photodiode:%v sync:%v}",
		s.Full, s.Parsing, s.Error, s.Pins.Endstop, s.Pins.PhotodiodeTrigger, s.Pins.Synchronized)
}

// DecodeStatus parses the 2 trailing bytes of a 9-byte response frame
// into a structured Status. motors must match the HardwareConfig the
// frame was produced against; it determines where the photodiode and
// synchronized bits fall in the pin-state byte.
//
// frame[7] is the pin-state byte, frame[8] is the status byte. All
// bits beyond what motors defines are reserved and ignored.
func DecodeStatus(frame [FrameBytes]byte, motors int) (Status, error) {
	if motors < 0 || motors > 6 {
		return Status{}, &InvalidArgumentError{Arg: "motors", Reason: "must be in [0, 6] to fit the pin-state byte"}
	}
	pinByte := frame[7]
	statusByte := frame[8]

	endstop := make([]bool, motors)
	for i := 0; i < motors; i++ {
		endstop[i] = pinByte&pinBitEndstop(i) != 0
	}
	return Status{
		Full:    statusByte&statusBitFull != 0,
		Parsing: statusByte&statusBitParsing != 0,
		Error:   statusByte&statusBitError != 0,
		Pins: PinState{
			Endstop:           endstop,
			PhotodiodeTrigger: pinByte&pinBitPhotodiode(motors) != 0,
			Synchronized:      pinByte&pinBitSynchronized(motors) != 0,
		},
	}, nil
}
