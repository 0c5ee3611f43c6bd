// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// lepton streams a FLIR Lepton over HTTP and optionally MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/maruel/go-thermal/config"
	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/leptontest"
	"github.com/maruel/interrupt"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// open returns the packet source and control plane, either real or fake.
func open(cfg *config.File, fake bool) (lepton.PacketSource, lepton.ControlPlane, error) {
	if fake {
		c := leptontest.New()
		return c, c, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	port, err := spireg.Open(cfg.SPI.Name)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SPI.Hz != 0 {
		if err := port.LimitSpeed(physic.Frequency(cfg.SPI.Hz) * physic.Hertz); err != nil {
			port.Close()
			return nil, nil, err
		}
	}
	var bus i2c.BusCloser
	if !cfg.I2C.Disabled {
		if bus, err = i2creg.Open(cfg.I2C.Name); err != nil {
			port.Close()
			return nil, nil, err
		}
		if cfg.I2C.Hz != 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.I2C.Hz) * physic.Hertz); err != nil {
				port.Close()
				bus.Close()
				return nil, nil, err
			}
		}
	}
	opts := cfg.SessionOpts()
	if cfg.ResetPin != "" {
		p := gpioreg.ByName(cfg.ResetPin)
		if p == nil {
			port.Close()
			if bus != nil {
				bus.Close()
			}
			return nil, nil, fmt.Errorf("unknown reset pin %q", cfg.ResetPin)
		}
		opts.ResetPin = p
	}
	var b i2c.Bus
	if bus != nil {
		b = bus
	}
	s, err := lepton.OpenSession(port, b, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%w\nIf testing without hardware, use -fake to simulate a camera", err)
	}
	log.Printf("%s", s)
	return s, s.Control(), nil
}

// consume dispatches the loop's events until the channel is closed.
func consume(events <-chan lepton.Event, s *WebServer, m *mqttBridge, dir string) {
	for ev := range events {
		switch ev.Kind {
		case lepton.EventFrame:
			s.AddFrame(ev)
			if m != nil {
				m.AddFrame(ev)
			}
			if ev.Frame.Seq%9 == 0 {
				st := ev.Stats
				fmt.Printf("\r%d frames %d discard %d badsync %d resync %d crc %d reboots %d fail ", st.GoodFrames, st.DiscardLines, st.BadSyncLines, st.Resyncs, st.CRCFails, st.Reboots, st.TransferFails)
			}
		case lepton.EventStatus:
			if ev.Err != nil {
				log.Printf("status: %s: %s", ev.Status, ev.Err)
			} else {
				log.Printf("status: %s", ev.Status)
			}
			s.SetStatus(ev)
			if m != nil {
				m.PublishStatus(ev)
			}
		case lepton.EventSnapshot:
			if p, err := saveSnapshot(dir, time.Now(), ev); err != nil {
				log.Printf("snapshot: %s", err)
			} else {
				fmt.Printf("\nSaved %s\n", p)
			}
		}
	}
}

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file")
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	port := flag.Int("port", 0, "http port to listen on; overrides the configuration")
	pal := flag.String("palette", "", "palette: grey, iron or rainbow; overrides the configuration")
	fake := flag.Bool("fake", false, "use a fake camera, to test without hardware")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()

	log.SetFlags(log.Lmicroseconds)
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return err
		}
	}
	if *port != 0 {
		cfg.Web.Port = *port
	}
	if *pal != "" {
		cfg.Display.Palette = *pal
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loopCfg, err := cfg.LoopConfig()
	if err != nil {
		return err
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-interrupt.Channel:
			cancel()
		case <-ctx.Done():
		}
	}()

	src, cp, err := open(cfg, *fake)
	if err != nil {
		return err
	}
	l, err := lepton.NewLoop(src, cp, loopCfg)
	if err != nil {
		src.Close()
		return err
	}
	s, err := StartWebServer(ctx, cfg.Web.Port, l)
	if err != nil {
		src.Close()
		return err
	}
	var m *mqttBridge
	if cfg.MQTT.Broker != "" {
		if m, err = newMQTTBridge(&cfg.MQTT, l); err != nil {
			src.Close()
			return err
		}
	}

	var restart atomic.Bool
	go func() {
		if err := watchFile(ctx); err != nil {
			log.Printf("watch: %s", err)
			return
		}
		if ctx.Err() == nil {
			restart.Store(true)
			cancel()
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(l.Events(), s, m, cfg.Snapshots.Dir)
	}()
	err = l.Run(ctx)
	<-done
	cancel()
	if m != nil {
		m.Close()
	}
	fmt.Print("\n")
	if err != nil {
		var d *lepton.DesyncError
		if errors.As(err, &d) {
			return fmt.Errorf("%w; counters %+v", err, d.Counters)
		}
		return err
	}
	if restart.Load() {
		return reexec()
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nlepton: %s.\n", err)
		os.Exit(1)
	}
}
