// Copyright 2024 The scanmill Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// fpgahostctl drives the laser engraver's FPGA controller from the
// command line: it brings up the SPI/I²C/GPIO buses (or a software
// simulator with -fake), derives the machine configuration, and runs
// one operation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strings"
	"time"

	"github.com/maruel/interrupt"
	"github.com/scanmill/fpgahost/fpga"
	"github.com/scanmill/fpgahost/fpgasim"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// Stand-in machine parameters. A real deployment would load these from
// a config file; fpgahostctl is a demo/ops tool, not the configuration
// authority.
const (
	demoFacets = 4
	demoRPM    = 2000
)

func defaultMachineConfig() (*fpga.MachineConfig, error) {
	return fpga.NewMachineConfig(
		fpga.HardwareConfigParams{
			Axes: []fpga.AxisConfig{
				{Name: "x", StepsPerMM: 76.2},
				{Name: "y", StepsPerMM: 76.2},
			},
			OrthToLaserline: "y",
			PolDegree:       2,
			MemDepth:        256,
			MoveTicks:       10000,
			MotorFreq:       1 * physic.MegaHertz,
			MemWidthBits:    64,
		},
		fpga.LaserTimingParams{
			RPM:         demoRPM,
			SpinupTime:  1500 * time.Millisecond,
			StableTime:  125 * time.Millisecond,
			LaserFreq:   10 * physic.MegaHertz,
			StartFrac:   0.1,
			EndFrac:     0.9,
			Facets:      demoFacets,
			CrystalFreq: 48 * physic.MegaHertz,
		},
		false,
	)
}

func mainImpl() error {
	spiName := flag.String("spi", "", "SPI bus to use")
	spiHz := flag.Int64("spihz", 2000000, "SPI clock speed")
	i2cName := flag.String("i2c", "", "I²C bus for the laser-current digipot")
	resetName := flag.String("reset", "", "GPIO pin for fpga_reset")
	memFullName := flag.String("mem-full", "", "GPIO pin for mem_full")
	steppersName := flag.String("steppers-enable", "", "GPIO pin for the stepper driver enable line")
	fake := flag.Bool("fake", false, "simulate the FPGA instead of driving real hardware")
	gotoFlag := flag.String("goto", "", "comma-separated per-axis millimetre displacement, e.g. 10,-5")
	home := flag.Bool("home", false, "home every axis before any other operation")
	current := flag.Int("current", -1, "set laser current in mA (0-150)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	mc, err := defaultMachineConfig()
	if err != nil {
		return err
	}

	var exch fpga.Exchanger
	var memFull gpio.PinIn
	var steppers gpio.PinOut
	var i2cBus i2c.Bus

	if *fake {
		exch = fpgasim.New(mc.Hardware)
	} else {
		if _, err := host.Init(); err != nil {
			return err
		}
		spiBus, err := spireg.Open(*spiName)
		if err != nil {
			return err
		}
		defer spiBus.Close()

		if *resetName != "" {
			resetPin := gpioreg.ByName(*resetName)
			if resetPin == nil {
				return fmt.Errorf("no such GPIO pin: %s", *resetName)
			}
			if err := fpga.ResetFPGA(resetPin); err != nil {
				return err
			}
		}

		transport, err := fpga.NewTransport(spiBus, *spiHz)
		if err != nil {
			return err
		}
		exch = transport

		if *memFullName != "" {
			memFull = gpioreg.ByName(*memFullName)
		}
		if *steppersName != "" {
			steppers = gpioreg.ByName(*steppersName)
		}
		if *i2cName != "" {
			bus, err := i2creg.Open(*i2cName)
			if err != nil {
				return err
			}
			defer bus.Close()
			i2cBus = bus
		}
	}

	gate, err := fpga.NewBackpressureGate(exch, mc.Hardware.Motors(), memFull, 100000)
	if err != nil {
		return err
	}
	state := fpga.NewMachineState(mc.Hardware.Motors())
	coord := fpga.NewCoordinator(mc.Hardware, gate, state, steppers)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	interrupt.HandleCtrlC()
	go func() {
		<-interrupt.Channel
		cancel()
	}()

	if *home {
		mask := make([]bool, mc.Hardware.Motors())
		for i := range mask {
			mask[i] = true
		}
		if err := coord.Home(ctx, mask, nil); err != nil {
			return err
		}
		fmt.Println("homed:", state.PositionMM())
	}

	if *gotoFlag != "" {
		target, err := parseFloats(*gotoFlag, mc.Hardware.Motors())
		if err != nil {
			return err
		}
		if err := coord.Goto(ctx, target, nil, false); err != nil {
			return err
		}
		fmt.Println("position:", state.PositionMM())
	}

	if *current >= 0 {
		if i2cBus == nil && !*fake {
			return errors.New("-current requires -i2c (or -fake)")
		}
		lh, err := fpga.NewLaserHead(exch, i2cBus, demoFacets, demoRPM)
		if err != nil {
			return err
		}
		if i2cBus != nil {
			if err := lh.SetLaserCurrent(state, *current); err != nil {
				return err
			}
			fmt.Println("laser current set to", *current, "mA")
		}
	}

	for !interrupt.IsSet() && ctx.Err() == nil {
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func parseFloats(s string, want int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("-goto expects %d comma-separated values, got %d", want, len(parts))
	}
	out := make([]float64, want)
	for i, p := range parts {
		if _, err := fmt.Sscanf(p, "%g", &out[i]); err != nil {
			return nil, fmt.Errorf("-goto: invalid value %q", p)
		}
	}
	return out, nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nfpgahostctl: %s.\n", err)
		os.Exit(1)
	}
}
