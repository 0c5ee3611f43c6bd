// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/lepton/cci"
	"github.com/maruel/go-thermal/palette"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
)

func TestParse_empty(t *testing.T) {
	f, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), f); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	c, err := f.LoopConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := lepton.DefaultConfig()
	want.VerifyCRC = true
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lepton.yaml")
	data := `
spi:
  name: SPI0.0
  hz: 15600000
telemetry:
  enabled: true
  location: footer
sync:
  reboot_threshold: 5
  reboot_interval: 1s
display:
  palette: iron
  scale_min: 8000
  scale_max: 8400
mqtt:
  broker: localhost:1883
`
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	c, err := f.LoopConfig()
	if err != nil {
		t.Fatal(err)
	}
	if c.Palette != palette.Iron || c.ScaleMin != 8000 || c.ScaleMax != 8400 {
		t.Fatalf("%+v", c)
	}
	if c.RebootThreshold != 5 || c.RebootInterval != time.Second || c.FrameResetThreshold != 30 {
		t.Fatalf("%+v", c)
	}
	if c.TelemetryRow != lepton.PacketsPerFrame-1 {
		t.Fatal(c.TelemetryRow)
	}
	o := f.SessionOpts()
	if o.Speed != 15600*physic.KiloHertz || o.Mode == nil || *o.Mode != spi.Mode3 || !o.Telemetry || o.TelemetryLocation != cci.Footer {
		t.Fatalf("%+v", o)
	}
	if f.MQTT.Topic != "lepton" || f.Web.Port != 8010 {
		t.Fatalf("%+v", f)
	}
}

func TestParse_mode0(t *testing.T) {
	f, err := Parse([]byte("spi: {mode: 0}"))
	if err != nil {
		t.Fatal(err)
	}
	if o := f.SessionOpts(); o.Mode == nil || *o.Mode != spi.Mode0 {
		t.Fatal(o.Mode)
	}
}

func TestLoad_missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParse_invalid(t *testing.T) {
	data := []string{
		"spi: {mode: 4}",
		"spi: {mode: -1}",
		"display: {scale_min: 10}",
		"display: {palette: sepia}",
		"display: {scale_min: 10, scale_max: 5}",
		"telemetry: {location: middle}",
		"sync: {reset_interval: -1ms}",
		"web: {port: 70000}",
		"mqtt: {qos: 3}",
		"mqtt: {broker: localhost, topic: ''}",
		"unknown_key: 1",
		"spi: [",
	}
	for _, line := range data {
		if _, err := Parse([]byte(line)); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
}
