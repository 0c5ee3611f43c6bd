// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// lepton-grab captures a single image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"time"

	"github.com/maruel/go-thermal/gray14"
	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/leptontest"
	"github.com/maruel/go-thermal/palette"
	"github.com/maruel/interrupt"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// sceneRange returns the coldest and hottest samples of a 16 bits export.
// Missing samples are ignored.
func sceneRange(img *image.Gray16) (lo, hi physic.Temperature) {
	return lepton.RawToTemperature(gray14.Min(img) >> 2), lepton.RawToTemperature(gray14.Max(img) >> 2)
}

// grab returns the first complete frame.
func grab(ctx context.Context, src lepton.PacketSource, cp lepton.ControlPlane, cfg *lepton.Config) (lepton.Event, error) {
	l, err := lepton.NewLoop(src, cp, cfg)
	if err != nil {
		src.Close()
		return lepton.Event{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- l.Run(ctx)
	}()
	var frame lepton.Event
	for ev := range l.Events() {
		switch ev.Kind {
		case lepton.EventFrame:
			if frame.Frame == nil {
				frame = ev
				cancel()
			}
		case lepton.EventStatus:
			log.Printf("%s", ev.Status)
		}
	}
	if err := <-errc; err != nil {
		return lepton.Event{}, err
	}
	if frame.Frame == nil {
		return lepton.Event{}, errors.New("timed out waiting for a frame")
	}
	return frame, nil
}

func mainImpl() error {
	i2cName := flag.String("i2c", "", "I²C bus to use")
	spiName := flag.String("spi", "", "SPI bus to use")
	i2cHz := flag.Int("i2chz", 0, "I²C bus speed")
	spiHz := flag.Int("spihz", 0, "SPI bus speed")
	agc := flag.Bool("agc", false, "Save a 8 bit PNG instead of the default 16 bits")
	pal := flag.String("palette", "grey", "palette to use with -agc: grey, iron or rainbow")
	telemetry := flag.Bool("meta", false, "enable telemetry and print metadata")
	fake := flag.Bool("fake", false, "use a fake camera, to test without hardware")
	timeout := flag.Duration("timeout", 10*time.Second, "maximum time to wait for a frame")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 1 {
		return errors.New("supply path to PNG to save")
	}
	p, err := palette.Parse(*pal)
	if err != nil {
		return err
	}
	cfg := lepton.DefaultConfig()
	cfg.Palette = p
	cfg.VerifyCRC = true
	if *telemetry {
		cfg.TelemetryRow = 0
	}

	var src lepton.PacketSource
	var cp lepton.ControlPlane
	if *fake {
		c := leptontest.New()
		src, cp = c, c
	} else {
		if _, err := host.Init(); err != nil {
			return err
		}
		spiBus, err := spireg.Open(*spiName)
		if err != nil {
			return err
		}
		if *spiHz != 0 {
			if err := spiBus.LimitSpeed(physic.Frequency(*spiHz) * physic.Hertz); err != nil {
				spiBus.Close()
				return err
			}
		}
		i2cBus, err := i2creg.Open(*i2cName)
		if err != nil {
			spiBus.Close()
			return err
		}
		if *i2cHz != 0 {
			if err := i2cBus.SetSpeed(physic.Frequency(*i2cHz) * physic.Hertz); err != nil {
				spiBus.Close()
				i2cBus.Close()
				return err
			}
		}
		s, err := lepton.OpenSession(spiBus, i2cBus, &lepton.SessionOpts{Telemetry: *telemetry})
		if err != nil {
			return fmt.Errorf("%w\nIf testing without hardware, use -fake to simulate a camera", err)
		}
		src, cp = s, s.Control()
	}

	interrupt.HandleCtrlC()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	go func() {
		select {
		case <-interrupt.Channel:
			cancel()
		case <-ctx.Done():
		}
	}()
	ev, err := grab(ctx, src, cp, cfg)
	if err != nil {
		return err
	}
	raw := gray14.ToGray16(ev.Geometry.Samples(nil, ev.Frame), ev.Geometry.Bounds())
	if *telemetry {
		m := &ev.Frame.Metadata
		fmt.Printf("SinceStartup: %s\n", m.SinceStartup)
		fmt.Printf("FrameCount:   %d\n", m.FrameCount)
		fmt.Printf("Temp:         %s\n", m.Temp)
		fmt.Printf("TempHousing:  %s\n", m.TempHousing)
		fmt.Printf("FFCSince:     %s\n", m.FFCSince)
		fmt.Printf("FFCState:     %s\n", m.FFCState)
		fmt.Printf("FFCDesired:   %t\n", m.FFCDesired)
		fmt.Printf("Overtemp:     %t\n", m.Overtemp)
		lo, hi := sceneRange(raw)
		fmt.Printf("Scene:        %.2f°C to %.2f°C\n", lepton.Celsius(lo), lepton.Celsius(hi))
	}
	var img image.Image = raw
	if *agc {
		img = ev.Image
	}
	f, err := os.Create(flag.Args()[0])
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nlepton-grab: %s.\n", err)
		os.Exit(1)
	}
}
