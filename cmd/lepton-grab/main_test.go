// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/maruel/go-thermal/gray14"
	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/leptontest"
)

func TestGrab(t *testing.T) {
	c := leptontest.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, err := grab(ctx, c, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != lepton.EventFrame || ev.Frame == nil {
		t.Fatalf("%+v", ev)
	}
	if ev.Image.Bounds() != image.Rect(0, 0, 80, 60) {
		t.Fatal(ev.Image.Bounds())
	}
	var p lepton.Packet
	if err := c.ReadPacket(&p); err == nil {
		t.Fatal("source not closed")
	}
}

func TestGrab_timeout(t *testing.T) {
	s := &leptontest.Script{Packets: leptontest.Discards(10)}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := grab(ctx, s, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestSceneRange(t *testing.T) {
	// The zero sample is missing.
	img := gray14.ToGray16([]uint16{0, 13700, 8000}, image.Rect(0, 0, 3, 1))
	lo, hi := sceneRange(img)
	if lo != lepton.RawToTemperature(8000) || hi != lepton.RawToTemperature(13700) {
		t.Fatal(lo, hi)
	}
}
