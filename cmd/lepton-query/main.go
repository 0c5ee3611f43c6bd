// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// lepton-query uses its the I²C interface to query its internal state.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/maruel/go-thermal/lepton/cci"

	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// query prints the state of the camera.
func query(w io.Writer, dev *cci.Dev) error {
	status, err := dev.GetStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Status.CameraStatus: %s\n", status.CameraStatus)
	fmt.Fprintf(w, "Status.CommandCount: %d\n", status.CommandCount)
	model, err := dev.GetModel()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Model:               %s\n", model)
	serial, err := dev.GetSerial()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Serial:              0x%x\n", serial)
	uptime, err := dev.GetUptime()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Uptime:              %s\n", uptime)
	temp, err := dev.GetFPATemp()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Temp:                %s\n", temp)
	temp, err = dev.GetTempHousing()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Temp housing:        %s\n", temp)
	pos, err := dev.GetShutterPos()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ShutterPos:          %s\n", pos)
	mode, err := dev.GetFFCMode()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "FCCMode.FFCShutterMode:          %s\n", mode.FFCShutterMode)
	fmt.Fprintf(w, "FCCMode.ShutterTempLockoutState: %d\n", mode.ShutterTempLockoutState)
	fmt.Fprintf(w, "FCCMode.VideoFreezeDuringFFC:    %t\n", mode.VideoFreezeDuringFFC)
	fmt.Fprintf(w, "FCCMode.FFCDesired:              %t\n", mode.FFCDesired)
	fmt.Fprintf(w, "FCCMode.ElapsedTimeSinceLastFFC: %s\n", mode.ElapsedTimeSinceLastFFC)
	fmt.Fprintf(w, "FCCMode.DesiredFFCPeriod:        %s\n", mode.DesiredFFCPeriod)
	fmt.Fprintf(w, "FCCMode.ExplicitCommandToOpen:   %t\n", mode.ExplicitCommandToOpen)
	fmt.Fprintf(w, "FCCMode.DesiredFFCTempDelta:     %s\n", mode.DesiredFFCTempDelta)
	fmt.Fprintf(w, "FCCMode.ImminentDelay:           %d\n", mode.ImminentDelay)
	return nil
}

func mainImpl() error {
	i2cName := flag.String("i2c", "", "I²C bus to use")
	i2cHz := flag.Int("hz", 0, "I²C bus speed")
	ffc := flag.Bool("ffc", false, "trigger FFC")
	shutter := flag.String("shutter", "", "move the shutter: open or closed")
	reboot := flag.Bool("reboot", false, "reboot the camera")
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	i2cBus, err := i2creg.Open(*i2cName)
	if err != nil {
		return err
	}
	defer i2cBus.Close()
	if *i2cHz != 0 {
		if err := i2cBus.SetSpeed(physic.Frequency(*i2cHz) * physic.Hertz); err != nil {
			return err
		}
	}
	dev, err := cci.New(i2cBus)
	if err != nil {
		return err
	}
	if *reboot {
		return dev.Reboot()
	}
	if err := query(os.Stdout, dev); err != nil {
		return err
	}
	switch *shutter {
	case "":
	case "open":
		if err := dev.SetShutterPos(cci.ShutterPosOpen); err != nil {
			return err
		}
	case "closed":
		if err := dev.SetShutterPos(cci.ShutterPosClosed); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown shutter position %q", *shutter)
	}
	if *ffc {
		return dev.RunFFC()
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nlepton-query: %s.\n", err)
		os.Exit(1)
	}
}
