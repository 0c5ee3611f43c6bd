// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"errors"
	"testing"

	"periph.io/x/periph/conn/physic"
)

func TestRawToTemperature(t *testing.T) {
	data := []struct {
		raw      uint16
		expected physic.Temperature
		celsius  float64
	}{
		{0, 0, -273.15},
		{1, 21700 * physic.MicroKelvin, -273.1283},
		{13700, 297290 * physic.MilliKelvin, 24.14},
	}
	for _, line := range data {
		v := RawToTemperature(line.raw)
		if v != line.expected {
			t.Fatalf("%d: %s != %s", line.raw, v, line.expected)
		}
		if c := Celsius(v); c != line.celsius {
			t.Fatalf("%d: %f != %f", line.raw, c, line.celsius)
		}
	}
}

func TestPacket(t *testing.T) {
	p := testPacket(59, 0x3FFF, 7)
	if p.Seq() != 59 || p.Flags() != 0 || p.IsDiscard() {
		t.Fatal(p.ID())
	}
	if !p.ValidCRC() {
		t.Fatal("bad CRC")
	}
	if p.Sample(0) != 0x3FFF || p.Sample(1) != 7 || p.Sample(79) != 0 {
		t.Fatal(p.Sample(0))
	}
	// The flag nibble is not part of the sequence nor of the CRC.
	p[0] |= 0x70
	if p.Seq() != 59 || p.Flags() != 7 || !p.ValidCRC() {
		t.Fatal(p.ID())
	}
	d := discardPacket()
	if !d.IsDiscard() {
		t.Fatal("expected discard")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	data := []func(c *Config){
		func(c *Config) { c.SegmentResetThreshold = -1 },
		func(c *Config) { c.RebootInterval = -1 },
		func(c *Config) { c.TelemetryRow = -2 },
		func(c *Config) { c.TelemetryRow = PacketsPerFrame },
		func(c *Config) { c.ScaleMin, c.ScaleMax = 10, 10 },
		func(c *Config) { c.ScaleMin = 10 },
		func(c *Config) { c.CommandQueue = 0 },
	}
	for i, f := range data {
		c := DefaultConfig()
		f(c)
		if err := c.Validate(); err == nil {
			t.Fatal(i)
		}
	}
	c := DefaultConfig()
	c.ScaleMax = 100
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestErrors(t *testing.T) {
	errBus := errors.New("bus")
	data := []struct {
		err      error
		expected string
	}{
		{&TransportError{Op: "read", Err: errBus}, "lepton: spi read: bus"},
		{&ControlError{Op: "TriggerFFC", Err: errBus}, "lepton: TriggerFFC: bus"},
		{&DesyncError{Counters: ResetCounters{RebootCount: 3}, Err: errBus}, "lepton: reboot after 3 resync escalations failed: bus"},
	}
	for _, line := range data {
		if s := line.err.Error(); s != line.expected {
			t.Fatal(s)
		}
		if !errors.Is(line.err, errBus) {
			t.Fatal(line.err)
		}
	}
}
