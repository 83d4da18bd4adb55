// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpga

import (
	"testing"

	"periph.io/x/periph/conn/conntest"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpiotest"
	"periph.io/x/periph/conn/spi/spitest"
)

func TestNewTransport_speedTooLow(t *testing.T) {
	s := spitest.Playback{}
	if _, err := NewTransport(&s, 500000); err == nil {
		t.Fatal("expected error for sub-1MHz clock")
	}
}

func TestTransport_Exchange(t *testing.T) {
	req := EncodeRead()
	resp := statusFrame(false, true, false)
	s := spitest.Playback{
		Playback: conntest.Playback{
			Ops: []conntest.IO{{W: req[:], R: resp[:]}},
		},
	}
	tr, err := NewTransport(&s, 1000000)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tr.Exchange(req)
	if err != nil {
		t.Fatal(err)
	}
	if got != resp {
		t.Fatalf("Exchange() = %v, want %v", got, resp)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestResetFPGA(t *testing.T) {
	pin := &gpiotest.Pin{N: "fpga_reset"}
	if err := ResetFPGA(pin); err != nil {
		t.Fatal(err)
	}
	if pin.Read() != gpio.High {
		t.Fatalf("reset pin left at %v, want released high", pin.Read())
	}
}
